package handler

import (
	"context"
	"net/http"

	"github.com/linearpos/posagent/internal/idle"
	"github.com/linearpos/posagent/internal/model"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	// Current は現在のセッションを返す。未認証の場合はnil。
	Current() *model.AuthSession
	// IsAuthenticated はセッションが存在しトークンが失効していないことを返す。
	IsAuthenticated() bool
	// Logout は明示的なログアウトを処理する。
	Logout(ctx context.Context) error
	// RecordActivity はUIからの操作シグナルを記録する。
	RecordActivity()
	// SetHidden はアプリの表示状態の変化を記録する。
	SetHidden(hidden bool)
	// Extend は警告ダイアログの「続行」を処理する。
	Extend()
	// MonitorState は無操作モニターの状態を返す。未起動の場合はnil。
	MonitorState() *idle.State
}

// SessionHandler は認証セッションと無操作モニターのHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// visibilityRequest は表示状態変更リクエストのボディ。
type visibilityRequest struct {
	Hidden bool `json:"hidden"`
}

// sessionResponse はセッションスナップショットのAPIレスポンス。
// バックエンドトークンはUIへ出さない。
type sessionResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user,omitempty"`
	Monitor       *idle.State `json:"monitor,omitempty"`
}

// GetSession は現在のセッションスナップショットを返す。
// authenticatedはトークン失効チェックを通したIsAuthenticatedに従い、
// ルーティングゲートの判定と食い違わないようにする。
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{Monitor: h.service.MonitorState()}
	if h.service.IsAuthenticated() {
		if sess := h.service.Current(); sess != nil {
			resp.Authenticated = true
			user := sess.User
			resp.User = &user
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout は明示的なログアウトを処理する。
// POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordActivity はUIからの操作シグナルを処理する。
// POST /api/session/activity
func (h *SessionHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	h.service.RecordActivity()
	w.WriteHeader(http.StatusNoContent)
}

// SetVisibility はアプリの表示状態の変化を処理する。
// POST /api/session/visibility
func (h *SessionHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.service.SetHidden(req.Hidden)
	w.WriteHeader(http.StatusNoContent)
}

// Extend は警告ダイアログの「続行」を処理する。
// POST /api/session/extend
func (h *SessionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	h.service.Extend()
	w.WriteHeader(http.StatusNoContent)
}
