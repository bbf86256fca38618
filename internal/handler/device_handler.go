package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/linearpos/posagent/internal/backend"
	"github.com/linearpos/posagent/internal/model"
)

// DeviceServiceInterface はデバイスモードハンドラーが必要とするサービスインターフェース。
type DeviceServiceInterface interface {
	// Mode は現在のモードレコードと再確認要否フラグを返す。
	Mode() (model.DeviceModeRecord, bool)
	// SetManagementMode はmanagementモードへ切り替える。
	SetManagementMode(ctx context.Context, passcode string) error
	// SetTerminalMode は端末識別情報を紐付けてterminalモードへ切り替える。
	SetTerminalMode(ctx context.Context, passcode string, identity model.TerminalIdentity) error
	// ClearMode はuninitializedへ戻す。
	ClearMode(ctx context.Context, passcode string) error
	// VerifyTerminal は紐付け済み端末をバックエンドと照合する。
	VerifyTerminal(ctx context.Context) (model.DeviceModeRecord, error)
	// ListTerminals はバックエンドの端末一覧を中継する。
	ListTerminals(ctx context.Context) ([]backend.Terminal, error)
}

// DeviceHandler はデバイスモード管理のHTTPハンドラー。
type DeviceHandler struct {
	service DeviceServiceInterface
}

// NewDeviceHandler はDeviceHandlerを生成する。
func NewDeviceHandler(service DeviceServiceInterface) *DeviceHandler {
	return &DeviceHandler{service: service}
}

// modeChangeRequest はパスコードゲート付きモード切替リクエストのボディ。
type modeChangeRequest struct {
	Passcode string `json:"passcode"`
}

// terminalModeRequest はterminalモード切替リクエストのボディ。
type terminalModeRequest struct {
	Passcode     string `json:"passcode"`
	TerminalID   string `json:"terminalId"`
	TerminalCode string `json:"terminalCode"`
	TerminalName string `json:"terminalName"`
	TenantID     string `json:"tenantId"`
	BranchID     string `json:"branchId"`
}

// deviceModeResponse はデバイスモードのAPIレスポンス。
type deviceModeResponse struct {
	Mode  model.DeviceModeRecord `json:"mode"`
	Stale bool                   `json:"stale"`
}

// terminalListResponse は端末一覧のAPIレスポンス。
type terminalListResponse struct {
	Terminals []backend.Terminal `json:"terminals"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// GetMode は現在のデバイスモードを返す。
// GET /api/device/mode
func (h *DeviceHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	rec, stale := h.service.Mode()
	writeJSON(w, http.StatusOK, deviceModeResponse{Mode: rec, Stale: stale})
}

// SetManagementMode はmanagementモードへの切り替えを処理する。
// POST /api/device/mode/management
func (h *DeviceHandler) SetManagementMode(w http.ResponseWriter, r *http.Request) {
	var req modeChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.SetManagementMode(r.Context(), req.Passcode); err != nil {
		handleServiceError(w, err)
		return
	}

	rec, stale := h.service.Mode()
	writeJSON(w, http.StatusOK, deviceModeResponse{Mode: rec, Stale: stale})
}

// SetTerminalMode はterminalモードへの切り替えを処理する。
// POST /api/device/mode/terminal
func (h *DeviceHandler) SetTerminalMode(w http.ResponseWriter, r *http.Request) {
	var req terminalModeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	identity := model.TerminalIdentity{
		TerminalID:   req.TerminalID,
		TerminalCode: req.TerminalCode,
		TerminalName: req.TerminalName,
		TenantID:     req.TenantID,
		BranchID:     req.BranchID,
	}
	if err := h.service.SetTerminalMode(r.Context(), req.Passcode, identity); err != nil {
		handleServiceError(w, err)
		return
	}

	rec, stale := h.service.Mode()
	writeJSON(w, http.StatusOK, deviceModeResponse{Mode: rec, Stale: stale})
}

// ClearMode は端末の紐付け解除を処理する。
// POST /api/device/mode/clear
func (h *DeviceHandler) ClearMode(w http.ResponseWriter, r *http.Request) {
	var req modeChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.ClearMode(r.Context(), req.Passcode); err != nil {
		handleServiceError(w, err)
		return
	}

	rec, stale := h.service.Mode()
	writeJSON(w, http.StatusOK, deviceModeResponse{Mode: rec, Stale: stale})
}

// VerifyTerminal は紐付け済み端末の再確認を処理する。
// POST /api/device/mode/verify
func (h *DeviceHandler) VerifyTerminal(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.VerifyTerminal(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceModeResponse{Mode: rec, Stale: false})
}

// ListTerminals は端末プロビジョニング画面向けの端末一覧を返す。
// GET /api/device/terminals
func (h *DeviceHandler) ListTerminals(w http.ResponseWriter, r *http.Request) {
	terminals, err := h.service.ListTerminals(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, terminalListResponse{Terminals: terminals})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// decodeBody はJSONリクエストボディをデコードする。
// 失敗した場合はエラーレスポンスを書き込み、falseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "Could not parse the request body.",
			Category: "validation",
			Action:   "Send a well-formed JSON body.",
		})
		return false
	}
	return true
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodePasscodeRequired:
		return http.StatusUnauthorized
	case model.ErrCodePasscodeRejected:
		return http.StatusForbidden
	case model.ErrCodeIdentityIncomplete, model.ErrCodeInvalidDigit, model.ErrCodePinTooShort:
		return http.StatusBadRequest
	case model.ErrCodeNotTerminalMode, model.ErrCodeSubmissionInFlight:
		return http.StatusConflict
	case model.ErrCodeTerminalNotFound:
		return http.StatusNotFound
	case model.ErrCodeAuthRejected:
		return http.StatusUnauthorized
	case model.ErrCodeBackendUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
