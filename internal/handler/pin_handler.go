package handler

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/linearpos/posagent/internal/model"
	"github.com/linearpos/posagent/internal/pinflow"
)

// PinServiceInterface はPINフローハンドラーが必要とするサービスインターフェース。
// terminalモード以外では全コマンドがNOT_TERMINAL_MODEエラーを返す。
type PinServiceInterface interface {
	Digit(d rune) (pinflow.Snapshot, error)
	Backspace() (pinflow.Snapshot, error)
	Submit(ctx context.Context) (pinflow.Snapshot, error)
	Cancel() (pinflow.Snapshot, error)
	Snapshot() (pinflow.Snapshot, error)
}

// PinHandler はPIN認証フローのHTTPハンドラー。
// 各コマンドはUIが描画するフロースナップショットを返す。
type PinHandler struct {
	service PinServiceInterface
}

// NewPinHandler はPinHandlerを生成する。
func NewPinHandler(service PinServiceInterface) *PinHandler {
	return &PinHandler{service: service}
}

// digitRequest は数字キー入力リクエストのボディ。
type digitRequest struct {
	Digit string `json:"digit"`
}

// Digit は数字キー入力を処理する。
// POST /api/pin/digit
func (h *PinHandler) Digit(w http.ResponseWriter, r *http.Request) {
	var req digitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if utf8.RuneCountInString(req.Digit) != 1 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDigitError())
		return
	}
	d, _ := utf8.DecodeRuneInString(req.Digit)

	snap, err := h.service.Digit(d)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Backspace は末尾1桁の削除を処理する。
// POST /api/pin/backspace
func (h *PinHandler) Backspace(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Backspace()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Submit はPINの送信を処理する。
// POST /api/pin/submit
func (h *PinHandler) Submit(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Submit(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Cancel はフローのキャンセルを処理する。
// POST /api/pin/cancel
func (h *PinHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Cancel()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Snapshot は現在のフロー状態を返す。
// GET /api/pin
func (h *PinHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
