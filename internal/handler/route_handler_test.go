package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/linearpos/posagent/internal/gate"
	"github.com/linearpos/posagent/internal/model"
)

// mockGateService はGateServiceInterfaceのモック実装。
type mockGateService struct {
	evaluateFn func(route gate.Route) gate.Decision
}

func (m *mockGateService) Evaluate(route gate.Route) gate.Decision {
	if m.evaluateFn != nil {
		return m.evaluateFn(route)
	}
	return gate.Decision{Action: gate.ActionRender}
}

var _ GateServiceInterface = (*mockGateService)(nil)

func TestRouteHandler_Evaluate_PassesRouteDefinition(t *testing.T) {
	var gotRoute gate.Route
	svc := &mockGateService{
		evaluateFn: func(route gate.Route) gate.Decision {
			gotRoute = route
			return gate.Decision{Action: gate.ActionRedirect, RedirectTo: "/pos"}
		},
	}
	h := NewRouteHandler(svc)

	req := httptest.NewRequest(http.MethodGet,
		"/api/route?path=/dashboard&roles=BRANCH_MANAGER,SYSTEM_ADMIN&managerArea=true", nil)
	w := httptest.NewRecorder()
	h.Evaluate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	want := gate.Route{
		Path:          "/dashboard",
		RequiredRoles: []model.Role{model.RoleBranchManager, model.RoleSystemAdmin},
		ManagerArea:   true,
	}
	if !reflect.DeepEqual(gotRoute, want) {
		t.Errorf("route = %+v, want %+v", gotRoute, want)
	}

	var decision gate.Decision
	if err := json.NewDecoder(w.Body).Decode(&decision); err != nil {
		t.Fatalf("failed to decode decision: %v", err)
	}
	if decision.Action != gate.ActionRedirect || decision.RedirectTo != "/pos" {
		t.Errorf("decision = %+v, want redirect to /pos", decision)
	}
}

func TestRouteHandler_Evaluate_EmptyQuery(t *testing.T) {
	var gotRoute gate.Route
	svc := &mockGateService{
		evaluateFn: func(route gate.Route) gate.Decision {
			gotRoute = route
			return gate.Decision{Action: gate.ActionRender}
		},
	}
	h := NewRouteHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/route", nil)
	w := httptest.NewRecorder()
	h.Evaluate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotRoute.Path != "" || gotRoute.RequiredRoles != nil || gotRoute.ManagerArea {
		t.Errorf("route = %+v, want zero value", gotRoute)
	}
}

func TestRouteHandler_Evaluate_InvalidManagerArea(t *testing.T) {
	h := NewRouteHandler(&mockGateService{})

	req := httptest.NewRequest(http.MethodGet, "/api/route?managerArea=banana", nil)
	w := httptest.NewRecorder()
	h.Evaluate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestParseRoles(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []model.Role
	}{
		{"empty", "", nil},
		{"single", "CASHIER", []model.Role{model.RoleCashier}},
		{"multiple", "CASHIER,SUPERVISOR", []model.Role{model.RoleCashier, model.RoleSupervisor}},
		{"whitespace and empty entries", " CASHIER , ,BRANCH_MANAGER", []model.Role{model.RoleCashier, model.RoleBranchManager}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRoles(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseRoles(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
