package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/linearpos/posagent/internal/audit"
	"github.com/linearpos/posagent/internal/backend"
	"github.com/linearpos/posagent/internal/config"
	"github.com/linearpos/posagent/internal/database"
	"github.com/linearpos/posagent/internal/devicemode"
	"github.com/linearpos/posagent/internal/handler"
	"github.com/linearpos/posagent/internal/idle"
	"github.com/linearpos/posagent/internal/logger"
	"github.com/linearpos/posagent/internal/metrics"
	"github.com/linearpos/posagent/internal/middleware"
	"github.com/linearpos/posagent/internal/pinflow"
	"github.com/linearpos/posagent/internal/repository"
	"github.com/linearpos/posagent/internal/session"
	"github.com/linearpos/posagent/internal/storage"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting terminal agent",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("backend_base_url", cfg.BackendBaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はエージェントサーバーモードで起動する。
// ローカルストレージと全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ローカルストレージ
	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open local storage: %w", err)
	}

	modeStore, err := devicemode.NewStore(store)
	if err != nil {
		return fmt.Errorf("failed to load device mode: %w", err)
	}

	guard := devicemode.NewPasscodeGuard(store)
	if err := guard.Provision(cfg.DevicePasscode); err != nil {
		return fmt.Errorf("failed to provision device passcode: %w", err)
	}

	sessionStore, err := session.NewStore(store)
	if err != nil {
		return fmt.Errorf("failed to load auth session: %w", err)
	}

	// 2. 監査ジャーナル（DATABASE_URLが設定されている場合のみDBへ永続化）
	var db *sql.DB
	var auditRepo repository.AuditRepository
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to audit database: %w", err)
		}
		auditRepo = repository.NewPostgresAuditRepo(db)
		slog.Info("audit journal persistence enabled")
	}
	recorder := audit.NewRecorder(auditRepo, slog.Default())

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. バックエンドクライアント
	backendClient := backend.NewClient(
		&http.Client{Timeout: cfg.BackendTimeout},
		slog.Default(),
		cfg.BackendBaseURL,
	)

	// 5. ドメインサービスの初期化
	deviceService := devicemode.NewService(modeStore, guard, backendClient, recorder, slog.Default())

	sessionCoord := session.NewCoordinator(sessionStore, modeStore, recorder, idle.Config{
		IdleTimeout:       cfg.IdleTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		WarningTime:       cfg.WarningTime,
		MonitorVisibility: cfg.MonitorVisibility,
		// ハートビートはバックエンドへのキープアライブを兼ねる。失敗しても
		// カウントダウンには影響しない。
		OnHeartbeat: func(ctx context.Context) error {
			_, err := backendClient.ListTerminals(ctx)
			return err
		},
		Metrics: collector,
	}, slog.Default())

	// 再起動をまたいで認証済みセッションが残っていればモニターを再開する
	sessionCoord.Resume()

	pinCoord := pinflow.NewCoordinator(pinflow.CoordinatorConfig{
		Modes:           modeStore,
		Authenticator:   backendClient,
		Sessions:        sessionStore,
		Metrics:         collector,
		Recorder:        recorder,
		OnAuthenticated: sessionCoord.OnAuthenticated,
	})

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	var healthChecker handler.HealthChecker
	if db != nil {
		healthChecker = db
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		Metrics:  collector,
		Gatherer: registry,

		HealthChecker: healthChecker,

		DeviceService:  deviceService,
		PinService:     pinCoord,
		SessionService: sessionCoord,
		GateService:    handler.NewGateServiceAdapter(modeStore, sessionCoord),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         "127.0.0.1:" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("agent server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down agent server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("agent server stopped gracefully")
	return nil
}

// rateLimiterConfig は設定のreq/min値をレートリミッターの設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	limiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		limiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		limiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitPin > 0 {
		limiterCfg.PinRate = rate.Limit(float64(cfg.RateLimitPin) / 60.0)
		limiterCfg.PinBurst = cfg.RateLimitPin
	}
	return limiterCfg
}

// runMigrate は監査ジャーナルDBのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the migrate command")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
