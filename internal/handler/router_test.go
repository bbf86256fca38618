package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linearpos/posagent/internal/metrics"
	"github.com/linearpos/posagent/internal/middleware"
	"github.com/linearpos/posagent/internal/pinflow"
)

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	pingFn func() error
}

func (m *mockHealthChecker) Ping() error {
	if m.pingFn != nil {
		return m.pingFn()
	}
	return nil
}

func newTestRouter(t *testing.T, mutate func(deps *RouterDeps)) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       rl,
		Metrics:           metrics.NewCollector(reg),
		Gatherer:          reg,
		HealthChecker:     &mockHealthChecker{},
		DeviceService:     &mockDeviceService{},
		PinService:        &mockPinService{},
		SessionService:    &mockSessionService{},
		GateService:       &mockGateService{},
	}
	if mutate != nil {
		mutate(deps)
	}
	return NewRouter(deps)
}

func TestRouter_RoutesResolve(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, "/api/device/mode"},
		{http.MethodPost, "/api/device/mode/verify"},
		{http.MethodGet, "/api/device/terminals"},
		{http.MethodGet, "/api/pin"},
		{http.MethodPost, "/api/pin/backspace"},
		{http.MethodPost, "/api/pin/submit"},
		{http.MethodPost, "/api/pin/cancel"},
		{http.MethodGet, "/api/session"},
		{http.MethodPost, "/api/session/logout"},
		{http.MethodPost, "/api/session/activity"},
		{http.MethodPost, "/api/session/extend"},
		{http.MethodGet, "/api/route"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.RemoteAddr = "127.0.0.1:54321"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code == http.StatusNotFound || w.Code == http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, route should resolve", tt.method, tt.path, w.Code)
		}
	}
}

func TestRouter_UnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestRouter_BlocksCrossSiteStateChange(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/session/logout", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRouter_HealthDegradedWhenPingFails(t *testing.T) {
	router := newTestRouter(t, func(deps *RouterDeps) {
		deps.HealthChecker = &mockHealthChecker{
			pingFn: func() error { return errors.New("connection refused") },
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_HealthOKWithoutChecker(t *testing.T) {
	router := newTestRouter(t, func(deps *RouterDeps) {
		deps.HealthChecker = nil
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_PinSubmitHasDedicatedRateLimit(t *testing.T) {
	router := newTestRouter(t, func(deps *RouterDeps) {
		rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			GeneralRate:     1000,
			GeneralBurst:    1000,
			PinRate:         1,
			PinBurst:        1,
			CleanupInterval: time.Minute,
		})
		t.Cleanup(rl.Stop)
		deps.RateLimiter = rl
	})

	submit := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/pin/submit", nil)
		req.RemoteAddr = "127.0.0.1:54321"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := submit(); code != http.StatusOK {
		t.Fatalf("first submit: status = %d, want %d", code, http.StatusOK)
	}
	if code := submit(); code != http.StatusTooManyRequests {
		t.Fatalf("second submit: status = %d, want %d", code, http.StatusTooManyRequests)
	}

	// 一般APIは専用制限の影響を受けない
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("general route: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_MetricsEndpointCountsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newTestRouter(t, func(deps *RouterDeps) {
		deps.Metrics = metrics.NewCollector(reg)
		deps.Gatherer = reg
	})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	router.ServeHTTP(httptest.NewRecorder(), req)

	mreq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, mreq)

	if w.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "posagent_http_status_total") {
		t.Error("metrics output should include posagent_http_status_total")
	}
}

func TestRouter_RecoveryCatchesHandlerPanic(t *testing.T) {
	router := newTestRouter(t, func(deps *RouterDeps) {
		deps.PinService = &mockPinService{
			snapshotFn: func() (pinflow.Snapshot, error) {
				panic("boom")
			},
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/pin", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRouter_SubmitPropagatesRequestContext(t *testing.T) {
	var gotCtx context.Context
	router := newTestRouter(t, func(deps *RouterDeps) {
		deps.PinService = &mockPinService{
			submitFn: func(ctx context.Context) (pinflow.Snapshot, error) {
				gotCtx = ctx
				return pinflow.Snapshot{}, nil
			},
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/api/pin/submit", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	router.ServeHTTP(httptest.NewRecorder(), req)

	if gotCtx == nil {
		t.Fatal("submit did not receive the request context")
	}
}
