package handler

import (
	"net/http"
)

// HealthChecker は死活監視で疎通確認する依存のインターフェース。
// 監査用DBが設定されている場合は*sql.DBが渡される。
type HealthChecker interface {
	Ping() error
}

// HealthHandler は死活監視のHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。checkerはnilでもよい。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// healthResponse は死活監視のAPIレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// Check は死活監視リクエストを処理する。
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		if err := h.checker.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
