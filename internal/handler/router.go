package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linearpos/posagent/internal/metrics"
	"github.com/linearpos/posagent/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 観測
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// 死活監視（nil可）
	HealthChecker HealthChecker

	// ドメインサービス
	DeviceService  DeviceServiceInterface
	PinService     PinServiceInterface
	SessionService SessionServiceInterface
	GateService    GateServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → CORS → CSRF → SecurityHeaders → Logging → Metrics
//
// 運用エンドポイント（/health, /metrics）はレート制限の対象外に置く。
// PIN送信にはブルートフォース対策の専用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics.RecordHTTPStatus))
	}

	deviceHandler := NewDeviceHandler(deps.DeviceService)
	pinHandler := NewPinHandler(deps.PinService)
	sessionHandler := NewSessionHandler(deps.SessionService)
	routeHandler := NewRouteHandler(deps.GateService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- 運用エンドポイント ---

	r.Get("/health", healthHandler.Check)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- UI向けAPI ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// デバイスモード管理
		r.Route("/api/device", func(r chi.Router) {
			r.Get("/mode", deviceHandler.GetMode)
			r.Post("/mode/management", deviceHandler.SetManagementMode)
			r.Post("/mode/terminal", deviceHandler.SetTerminalMode)
			r.Post("/mode/clear", deviceHandler.ClearMode)
			r.Post("/mode/verify", deviceHandler.VerifyTerminal)
			r.Get("/terminals", deviceHandler.ListTerminals)
		})

		// PIN認証フロー
		r.Route("/api/pin", func(r chi.Router) {
			r.Get("/", pinHandler.Snapshot)
			r.Post("/digit", pinHandler.Digit)
			r.Post("/backspace", pinHandler.Backspace)
			r.Post("/cancel", pinHandler.Cancel)

			// POST /api/pin/submit - PIN送信（ブルートフォース対策の専用レート制限を追加）
			r.With(deps.RateLimiter.PinSubmitMiddleware()).Post("/submit", pinHandler.Submit)
		})

		// セッションと無操作モニター
		r.Route("/api/session", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)
			r.Post("/logout", sessionHandler.Logout)
			r.Post("/activity", sessionHandler.RecordActivity)
			r.Post("/visibility", sessionHandler.SetVisibility)
			r.Post("/extend", sessionHandler.Extend)
		})

		// ルーティングゲート判定
		r.Get("/api/route", routeHandler.Evaluate)
	})

	return r
}
