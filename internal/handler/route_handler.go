package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/linearpos/posagent/internal/gate"
	"github.com/linearpos/posagent/internal/model"
)

// GateServiceInterface はルーティングゲートハンドラーが必要とするサービスインターフェース。
type GateServiceInterface interface {
	// Evaluate は現在のデバイスモードとセッションに基づきルートの扱いを判定する。
	Evaluate(route gate.Route) gate.Decision
}

// RouteHandler は画面遷移ごとのゲート判定を返すHTTPハンドラー。
// UIはルート定義（必要ロール、管理画面フラグ）をクエリで渡し、判定結果に従う。
type RouteHandler struct {
	service GateServiceInterface
}

// NewRouteHandler はRouteHandlerを生成する。
func NewRouteHandler(service GateServiceInterface) *RouteHandler {
	return &RouteHandler{service: service}
}

// Evaluate はルートのゲート判定を処理する。
// GET /api/route?path=/dashboard&roles=BRANCH_MANAGER&managerArea=true
func (h *RouteHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	route := gate.Route{
		Path:          q.Get("path"),
		RequiredRoles: parseRoles(q.Get("roles")),
	}
	if v := q.Get("managerArea"); v != "" {
		managerArea, err := strconv.ParseBool(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "The managerArea parameter must be a boolean.",
				Category: "validation",
				Action:   "Pass true or false.",
			})
			return
		}
		route.ManagerArea = managerArea
	}

	writeJSON(w, http.StatusOK, h.service.Evaluate(route))
}

// parseRoles はカンマ区切りのロール一覧を解析する。空要素は無視する。
func parseRoles(raw string) []model.Role {
	if raw == "" {
		return nil
	}
	var roles []model.Role
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			roles = append(roles, model.Role(part))
		}
	}
	return roles
}
