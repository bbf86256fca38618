// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, device, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePinTooShort        = "PIN_TOO_SHORT"
	ErrCodeAuthRejected       = "AUTH_REJECTED"
	ErrCodeTempPinReuse       = "TEMP_PIN_REUSE"
	ErrCodePinMismatch        = "PIN_MISMATCH"
	ErrCodeSubmissionInFlight = "SUBMISSION_IN_FLIGHT"
	ErrCodeNotTerminalMode    = "NOT_TERMINAL_MODE"
	ErrCodeIdentityIncomplete = "IDENTITY_INCOMPLETE"
	ErrCodePasscodeRequired   = "PASSCODE_REQUIRED"
	ErrCodePasscodeRejected   = "PASSCODE_REJECTED"
	ErrCodeBackendUnreachable = "BACKEND_UNREACHABLE"
	ErrCodeTerminalNotFound   = "TERMINAL_NOT_FOUND"
	ErrCodeInvalidDigit       = "INVALID_DIGIT"
)

// NewPinTooShortError はPINの桁数不足エラーを生成する。
// ネットワーク呼び出し前のバリデーションで返される。
func NewPinTooShortError(min int) *APIError {
	return &APIError{
		Code:     ErrCodePinTooShort,
		Message:  fmt.Sprintf("PIN must be at least %d digits.", min),
		Category: "validation",
		Action:   "Enter your full PIN before submitting.",
	}
}

// NewAuthRejectedError は認証拒否エラーを生成する。
// messageが空の場合は汎用メッセージで補完する。
func NewAuthRejectedError(message string) *APIError {
	if message == "" {
		message = "Authentication failed. Please try again."
	}
	return &APIError{
		Code:     ErrCodeAuthRejected,
		Message:  message,
		Category: "auth",
		Action:   "Check your PIN and try again.",
	}
}

// NewTempPinReuseError は一時PIN再利用エラーを生成する。
func NewTempPinReuseError() *APIError {
	return &APIError{
		Code:     ErrCodeTempPinReuse,
		Message:  "You cannot reuse the temporary PIN.",
		Category: "validation",
		Action:   "Choose a new PIN that differs from the temporary one.",
	}
}

// NewPinMismatchError はPIN確認不一致エラーを生成する。
func NewPinMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePinMismatch,
		Message:  "PINs do not match.",
		Category: "validation",
		Action:   "Enter the same new PIN twice.",
	}
}

// NewSubmissionInFlightError は送信中の再送信エラーを生成する。
func NewSubmissionInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionInFlight,
		Message:  "A submission is already in progress.",
		Category: "system",
		Action:   "Wait for the current request to finish.",
	}
}

// NewNotTerminalModeError はterminalモード以外でのPIN操作エラーを生成する。
func NewNotTerminalModeError() *APIError {
	return &APIError{
		Code:     ErrCodeNotTerminalMode,
		Message:  "This device is not bound as a POS terminal.",
		Category: "device",
		Action:   "Bind the device to a terminal from the provisioning screen.",
	}
}

// NewIdentityIncompleteError は端末識別情報の不足エラーを生成する。
func NewIdentityIncompleteError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityIncomplete,
		Message:  "Terminal identity is incomplete.",
		Category: "validation",
		Action:   "Provide terminal ID, code, name, tenant and branch.",
	}
}

// NewPasscodeRequiredError はデバイスパスコード未入力エラーを生成する。
func NewPasscodeRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodePasscodeRequired,
		Message:  "A device passcode is required for this action.",
		Category: "auth",
		Action:   "Enter the device passcode set during provisioning.",
	}
}

// NewPasscodeRejectedError はデバイスパスコード不一致エラーを生成する。
func NewPasscodeRejectedError() *APIError {
	return &APIError{
		Code:     ErrCodePasscodeRejected,
		Message:  "Device passcode is incorrect.",
		Category: "auth",
		Action:   "Check the passcode and try again.",
	}
}

// NewBackendUnreachableError はバックエンド到達不能エラーを生成する。
func NewBackendUnreachableError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnreachable,
		Message:  "Could not reach the POS backend.",
		Category: "system",
		Action:   "Check the network connection and try again.",
	}
}

// NewTerminalNotFoundError は端末が見つからない場合のエラーを生成する。
// 再確認（re-verification）で紐付け先端末が消えていた場合に返される。
func NewTerminalNotFoundError(terminalID string) *APIError {
	return &APIError{
		Code:     ErrCodeTerminalNotFound,
		Message:  fmt.Sprintf("Terminal %s is no longer registered.", terminalID),
		Category: "device",
		Action:   "Rebind the device or contact an administrator.",
	}
}

// NewInvalidDigitError は数字以外の入力エラーを生成する。
func NewInvalidDigitError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDigit,
		Message:  "Only digits 0-9 are accepted.",
		Category: "validation",
		Action:   "Use the numeric keypad.",
	}
}
