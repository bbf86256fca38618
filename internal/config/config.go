package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Agent
	DataDir string

	// Backend
	BackendBaseURL string
	BackendTimeout time.Duration

	// Idle Session
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
	WarningTime       time.Duration
	MonitorVisibility bool

	// Rate Limit
	RateLimitGeneral int
	RateLimitPin     int

	// Audit (任意。未設定の場合は監査レコードを永続化しない)
	DatabaseURL string

	// Device Passcode (任意。初回起動時にハッシュ化して保存し、モード切替を保護する)
	DevicePasscode string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DataDir = os.Getenv("AGENT_DATA_DIR")
	if cfg.DataDir == "" {
		missing = append(missing, "AGENT_DATA_DIR")
	}

	cfg.BackendBaseURL = os.Getenv("BACKEND_BASE_URL")
	if cfg.BackendBaseURL == "" {
		missing = append(missing, "BACKEND_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", 10*time.Second)
	cfg.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", 15*time.Minute)
	cfg.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL", 60*time.Second)
	cfg.WarningTime = getEnvDuration("WARNING_TIME", 60*time.Second)
	cfg.MonitorVisibility = getEnvBool("MONITOR_VISIBILITY", true)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPin = getEnvInt("RATE_LIMIT_PIN", 10)
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.DevicePasscode = getEnvString("DEVICE_PASSCODE", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
