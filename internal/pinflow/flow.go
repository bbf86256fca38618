// Package pinflow はterminalモードのPIN認証フロー（LOGIN → NEW_PIN → CONFIRM_PIN）の
// ステートマシンを提供する。
// 画面キーパッドと物理キーボードの両入力経路は同一のコマンドディスパッチャ
// （Digit / Backspace / Submit / Cancel）を通る。
package pinflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/linearpos/posagent/internal/backend"
	"github.com/linearpos/posagent/internal/model"
)

// State はフローの状態を表す。
type State string

const (
	// StateLogin は通常のPIN入力状態。
	StateLogin State = "LOGIN"
	// StateNewPin は強制リセット時の新PIN入力状態。
	StateNewPin State = "NEW_PIN"
	// StateConfirmPin は新PINの確認入力状態。
	StateConfirmPin State = "CONFIRM_PIN"
)

const (
	// minPinLength は全状態共通の最小桁数。
	// NEW_PIN/CONFIRM_PINの最大桁数は6だが最小は4のままで、5桁の新PINも受理される。
	minPinLength = 4
	// loginMaxPinLength はLOGIN状態の最大桁数。
	loginMaxPinLength = 4
	// resetMaxPinLength はNEW_PIN/CONFIRM_PIN状態の最大桁数。
	resetMaxPinLength = 6
)

// Authenticator はPIN認証・PINリセットのバックエンド呼び出しインターフェース。
type Authenticator interface {
	CashierAuth(ctx context.Context, req backend.AuthRequest) (*backend.AuthResult, error)
	ResetPIN(ctx context.Context, req backend.ResetPINRequest) (*backend.AuthResult, error)
}

// SessionWriter は認証成功時のセッション書き込みインターフェース。
type SessionWriter interface {
	SetAuth(user model.User, token string) error
}

// MetricsRecorder はPIN認証メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordPinAuthSuccess()
	RecordPinAuthFailure()
	RecordPinReset()
}

// Snapshot はUIが描画するフロー状態のスナップショット。
// 入力中のPINそのものは含めず、桁数のみを公開する。
type Snapshot struct {
	State         State           `json:"state"`
	PinLength     int             `json:"pinLength"`
	MaxPinLength  int             `json:"maxPinLength"`
	Error         *model.APIError `json:"error,omitempty"`
	ShakeCount    int             `json:"shakeCount"`
	Busy          bool            `json:"busy"`
	Authenticated bool            `json:"authenticated"`
}

// Flow はPIN認証フローの1インスタンス。
// キオスクオーバーレイごとに1つだけ生成され、認証成功で破棄される。
type Flow struct {
	mu sync.Mutex

	state           State
	pin             string
	tempPin         string
	newPinCandidate string
	cashierID       string

	err        *model.APIError
	shakeCount int
	inFlight   bool
	done       bool

	identity model.TerminalIdentity

	auth     Authenticator
	sessions SessionWriter
	metrics  MetricsRecorder
	logger   *slog.Logger

	// onAuthenticated は認証成功時に1回だけ呼ばれる（オーバーレイ解除用）。
	onAuthenticated func(user model.User)
}

// Config はFlow生成時の依存関係。
type Config struct {
	Identity        model.TerminalIdentity
	Authenticator   Authenticator
	Sessions        SessionWriter
	Metrics         MetricsRecorder
	Logger          *slog.Logger
	OnAuthenticated func(user model.User)
}

// NewFlow はLOGIN状態のFlowを生成する。
func NewFlow(cfg Config) *Flow {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		state:           StateLogin,
		identity:        cfg.Identity,
		auth:            cfg.Authenticator,
		sessions:        cfg.Sessions,
		metrics:         cfg.Metrics,
		logger:          logger,
		onAuthenticated: cfg.OnAuthenticated,
	}
}

// Snapshot は現在のフロー状態のスナップショットを返す。
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Digit は数字1桁を追加する。最大桁数に達している場合は無視する。
// 送信中は入力面が無効化されているため何もしない。
// 入力は表示中のエラーをクリアする。
func (f *Flow) Digit(d rune) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done || f.inFlight {
		return f.snapshotLocked()
	}
	if d < '0' || d > '9' {
		f.err = model.NewInvalidDigitError()
		return f.snapshotLocked()
	}

	f.err = nil
	if len(f.pin) < f.maxLenLocked() {
		f.pin += string(d)
	}
	return f.snapshotLocked()
}

// Backspace は末尾1桁を削除する。入力は表示中のエラーをクリアする。
func (f *Flow) Backspace() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done || f.inFlight {
		return f.snapshotLocked()
	}

	f.err = nil
	if len(f.pin) > 0 {
		f.pin = f.pin[:len(f.pin)-1]
	}
	return f.snapshotLocked()
}

// Cancel はEscape/明示キャンセルに対応する。
// 入力中のPINとエラーをクリアし、状態は変更しない。
func (f *Flow) Cancel() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done || f.inFlight {
		return f.snapshotLocked()
	}

	f.pin = ""
	f.err = nil
	return f.snapshotLocked()
}

// Submit は現在の状態に応じてPINを送信する。
// ネットワーク呼び出し中の再送信は同期的な送信中フラグで弾く。
// 失敗時は状態を進めず、入力済みの桁を必ずクリアする。
func (f *Flow) Submit(ctx context.Context) Snapshot {
	f.mu.Lock()

	if f.done {
		defer f.mu.Unlock()
		return f.snapshotLocked()
	}
	if f.inFlight {
		defer f.mu.Unlock()
		f.err = model.NewSubmissionInFlightError()
		return f.snapshotLocked()
	}
	if len(f.pin) < minPinLength {
		defer f.mu.Unlock()
		f.err = model.NewPinTooShortError(minPinLength)
		return f.snapshotLocked()
	}

	switch f.state {
	case StateLogin:
		return f.submitLogin(ctx)
	case StateNewPin:
		defer f.mu.Unlock()
		f.submitNewPinLocked()
		return f.snapshotLocked()
	case StateConfirmPin:
		return f.submitConfirmPin(ctx)
	default:
		defer f.mu.Unlock()
		return f.snapshotLocked()
	}
}

// submitLogin はLOGIN状態の送信を処理する。呼び出し時点でロックを保持しており、
// ネットワーク呼び出しの間だけ解放する。
func (f *Flow) submitLogin(ctx context.Context) Snapshot {
	pin := f.pin
	f.inFlight = true
	f.err = nil
	f.mu.Unlock()

	result, err := f.auth.CashierAuth(ctx, backend.AuthRequest{
		TenantID:   f.identity.TenantID,
		BranchID:   f.identity.BranchID,
		TerminalID: f.identity.TerminalID,
		PIN:        pin,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false

	if f.done {
		return f.snapshotLocked()
	}

	if err != nil {
		f.rejectLocked(err)
		return f.snapshotLocked()
	}

	if result.RequiresPinReset {
		// 一時PINでのログイン: 恒久PINの設定を強制する
		f.tempPin = pin
		f.cashierID = result.User.ID
		f.state = StateNewPin
		f.pin = ""
		f.err = nil
		f.logger.Info("pin reset required, entering reset flow",
			slog.String("cashier_id", result.User.ID),
			slog.String("terminal_id", f.identity.TerminalID),
		)
		return f.snapshotLocked()
	}

	f.completeLocked(result.User, result.Token)
	if f.metrics != nil {
		f.metrics.RecordPinAuthSuccess()
	}
	return f.snapshotLocked()
}

// submitNewPinLocked はNEW_PIN状態の送信を処理する。ネットワーク呼び出しはない。
// 呼び出し元でロックを保持すること。
func (f *Flow) submitNewPinLocked() {
	if f.pin == f.tempPin {
		// 一時PINの再利用は拒否し、NEW_PINからやり直す
		f.err = model.NewTempPinReuseError()
		f.pin = ""
		f.shakeCount++
		return
	}

	f.newPinCandidate = f.pin
	f.state = StateConfirmPin
	f.pin = ""
	f.err = nil
}

// submitConfirmPin はCONFIRM_PIN状態の送信を処理する。
// 確認入力が候補とバイト単位で一致した場合のみリセットAPIを呼ぶ。
func (f *Flow) submitConfirmPin(ctx context.Context) Snapshot {
	if f.pin != f.newPinCandidate {
		defer f.mu.Unlock()
		// 不一致: 候補を破棄してNEW_PINからやり直す
		f.err = model.NewPinMismatchError()
		f.pin = ""
		f.newPinCandidate = ""
		f.state = StateNewPin
		f.shakeCount++
		return f.snapshotLocked()
	}

	newPin := f.pin
	cashierID := f.cashierID
	tempPin := f.tempPin
	f.inFlight = true
	f.err = nil
	f.mu.Unlock()

	result, err := f.auth.ResetPIN(ctx, backend.ResetPINRequest{
		TenantID:   f.identity.TenantID,
		BranchID:   f.identity.BranchID,
		TerminalID: f.identity.TerminalID,
		CashierID:  cashierID,
		TempPIN:    tempPin,
		NewPIN:     newPin,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false

	if f.done {
		return f.snapshotLocked()
	}

	if err != nil {
		// リセット呼び出しの失敗: CONFIRM_PINに留まり再試行できる。
		// tempPin/cashierID/newPinCandidateは保持する。
		f.rejectLocked(err)
		return f.snapshotLocked()
	}

	f.completeLocked(result.User, result.Token)
	if f.metrics != nil {
		f.metrics.RecordPinReset()
		f.metrics.RecordPinAuthSuccess()
	}
	f.logger.Info("pin reset completed",
		slog.String("cashier_id", f.cashierID),
		slog.String("terminal_id", f.identity.TerminalID),
	)
	return f.snapshotLocked()
}

// rejectLocked は送信失敗を現在の状態に反映する。
// 状態は進めず、入力済みの桁をクリアし、shakeカウンタを進める。
// 桁のクリアは機能要件であり、同じ入力の再送信を不可能にする。
func (f *Flow) rejectLocked(err error) {
	var remote *backend.RemoteError
	if errors.As(err, &remote) {
		f.err = model.NewAuthRejectedError(remote.Message)
	} else {
		f.err = model.NewBackendUnreachableError()
	}

	f.pin = ""
	f.shakeCount++
	// 認証失敗カウンタにはLOGINの失敗のみ数える。
	// CONFIRM_PINでのリセット呼び出し失敗は認証試行ではない。
	if f.metrics != nil && f.state == StateLogin {
		f.metrics.RecordPinAuthFailure()
	}
	f.logger.Warn("pin submission rejected",
		slog.String("state", string(f.state)),
		slog.String("terminal_id", f.identity.TerminalID),
		slog.String("error", err.Error()),
	)
}

// completeLocked は認証成功でフローを終了させる。
// セッションを書き込み、onAuthenticatedを1回だけ呼び、以後のコマンドを無効化する。
func (f *Flow) completeLocked(user model.User, token string) {
	if err := f.sessions.SetAuth(user, token); err != nil {
		f.err = model.NewBackendUnreachableError()
		f.pin = ""
		f.logger.Error("failed to persist auth session",
			slog.String("error", err.Error()),
		)
		return
	}

	f.done = true
	f.pin = ""
	f.tempPin = ""
	f.newPinCandidate = ""
	f.err = nil

	if f.onAuthenticated != nil {
		f.onAuthenticated(user)
	}
}

// maxLenLocked は現在の状態の最大桁数を返す。呼び出し元でロックを保持すること。
func (f *Flow) maxLenLocked() int {
	if f.state == StateLogin {
		return loginMaxPinLength
	}
	return resetMaxPinLength
}

// snapshotLocked は現在状態のスナップショットを生成する。呼び出し元でロックを保持すること。
func (f *Flow) snapshotLocked() Snapshot {
	return Snapshot{
		State:         f.state,
		PinLength:     len(f.pin),
		MaxPinLength:  f.maxLenLocked(),
		Error:         f.err,
		ShakeCount:    f.shakeCount,
		Busy:          f.inFlight,
		Authenticated: f.done,
	}
}
