// Package idle は無操作検出とセッションタイムアウトの監視を提供する。
// 1秒間隔のティックとハートビートを単一のゴルーチンで多重化し、
// タイムアウトコールバックをセッションごとに1回だけ発火させる。
package idle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeoutReason はタイムアウト発火の理由を表す。
type TimeoutReason string

const (
	// ReasonIdle は無操作時間の超過を示す。
	ReasonIdle TimeoutReason = "idle"
	// ReasonHidden はアプリ非表示による即時タイムアウトを示す。
	ReasonHidden TimeoutReason = "hidden"
)

// デフォルト設定値
const (
	DefaultIdleTimeout       = 15 * time.Minute
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultWarningTime       = 60 * time.Second
	tickInterval             = 1 * time.Second
)

// MetricsRecorder はモニターのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordIdleTimeout()
	RecordForcedTimeout()
	RecordHeartbeat()
	RecordHeartbeatFailure()
}

// Config はモニターの設定。ゼロ値のフィールドにはデフォルトが適用される。
type Config struct {
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
	WarningTime       time.Duration
	// MonitorVisibility が有効な場合、アプリ非表示を即時タイムアウトとして扱う。
	MonitorVisibility bool

	// OnTimeout はタイムアウト時に1回だけ呼ばれる。必須。
	// コールバック内のpanicはモニターでは回復しない（呼び出し側の責務）。
	OnTimeout func(reason TimeoutReason)
	// OnHeartbeat はハートビート間隔ごとに呼ばれる任意のキープアライブ。
	// エラーはログに記録して握りつぶし、カウントダウンには影響しない。
	OnHeartbeat func(ctx context.Context) error

	Logger  *slog.Logger
	Metrics MetricsRecorder
}

// State はUIが描画するモニター状態のスナップショット。
type State struct {
	LastActivityAt time.Time `json:"lastActivityAt"`
	TimeRemaining  int       `json:"timeRemaining"` // 秒
	ShowWarning    bool      `json:"showWarning"`
	IsIdle         bool      `json:"isIdle"`
	HasTimedOut    bool      `json:"hasTimedOut"`
}

// Monitor は無操作監視の1インスタンス。マウントごとに生成される。
type Monitor struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger
	id     string
	nowFn  func() time.Time

	lastActivityAt time.Time
	showWarning    bool
	isIdle         bool
	timedOut       bool // 単一発火ラッチ

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMonitor は設定にデフォルトを適用したMonitorを生成する。
func NewMonitor(cfg Config) *Monitor {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.WarningTime <= 0 {
		cfg.WarningTime = DefaultWarningTime
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		cfg:    cfg,
		logger: logger,
		id:     uuid.New().String(),
		nowFn:  time.Now,
		stopCh: make(chan struct{}),
	}
	m.lastActivityAt = m.nowFn()
	return m
}

// Start は監視ゴルーチンを起動し、停止関数を返す。
// 停止関数は冪等で、マウント解除時に必ず呼び出すこと。
// コンテキストのキャンセルでも停止する。
func (m *Monitor) Start(ctx context.Context) (stop func()) {
	go m.run(ctx)

	m.logger.Info("session monitor started",
		slog.String("monitor_id", m.id),
		slog.Duration("idle_timeout", m.cfg.IdleTimeout),
		slog.Duration("heartbeat_interval", m.cfg.HeartbeatInterval),
		slog.Duration("warning_time", m.cfg.WarningTime),
	)

	return m.Stop
}

// Stop は監視を停止する。何度呼んでも安全。
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.logger.Info("session monitor stopped",
			slog.String("monitor_id", m.id),
		)
	})
}

// run はティックとハートビートを1つのselectループで多重化する。
// 2つのタイマーが同時にタイムアウトを発火できない構造にしつつ、
// 念のためラッチでも保護する。
func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(m.nowFn())
		case <-heartbeat.C:
			m.runHeartbeat(ctx)
		}
	}
}

// RecordActivity はユーザー操作（ポインタ・キー・スクロール・タッチ等）を記録する。
// 警告・アイドルフラグをクリアし、残り時間を全量に戻す。
// タイムアウト発火済みのラッチはResetTimeoutでのみ解除される。
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastActivityAt = m.nowFn()
	m.showWarning = false
	m.isIdle = false
}

// ResetTimeout は警告ダイアログで「続行」が選ばれた際に呼び出す。
// ラッチを解除し、操作イベントが発火したのと同様に残り時間を再同期する。
func (m *Monitor) ResetTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timedOut = false
	m.lastActivityAt = m.nowFn()
	m.showWarning = false
	m.isIdle = false
}

// SetHidden はアプリの表示状態の変化を記録する。
// MonitorVisibilityが有効で非表示になった場合、残り時間に関係なく
// 即時タイムアウトとして扱う（デバウンスしない）。
func (m *Monitor) SetHidden(hidden bool) {
	if !hidden || !m.cfg.MonitorVisibility {
		return
	}

	m.mu.Lock()
	fire := m.latchLocked()
	m.mu.Unlock()

	if fire {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordForcedTimeout()
		}
		m.logger.Info("app hidden, forcing session timeout",
			slog.String("monitor_id", m.id),
		)
		m.cfg.OnTimeout(ReasonHidden)
	}
}

// Snapshot は現在のモニター状態を返す。
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(m.nowFn())
}

// tick は1秒ごとの導出値更新とタイムアウト判定を行う。
func (m *Monitor) tick(now time.Time) {
	m.mu.Lock()

	remaining := m.remainingLocked(now)
	m.showWarning = remaining > 0 && remaining <= m.cfg.WarningTime
	m.isIdle = remaining <= 0

	fire := false
	if remaining <= 0 {
		fire = m.latchLocked()
	}
	m.mu.Unlock()

	if fire {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordIdleTimeout()
		}
		m.logger.Info("idle timeout reached",
			slog.String("monitor_id", m.id),
			slog.Duration("idle_timeout", m.cfg.IdleTimeout),
		)
		m.cfg.OnTimeout(ReasonIdle)
	}
}

// runHeartbeat はキープアライブコールバックを実行する。
// タイムアウト発火後は実行しない。失敗はログとメトリクスのみで、
// カウントダウンには影響しない。
func (m *Monitor) runHeartbeat(ctx context.Context) {
	m.mu.Lock()
	timedOut := m.timedOut
	m.mu.Unlock()

	if timedOut || m.cfg.OnHeartbeat == nil {
		return
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordHeartbeat()
	}
	if err := m.cfg.OnHeartbeat(ctx); err != nil {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordHeartbeatFailure()
		}
		m.logger.Warn("heartbeat failed",
			slog.String("monitor_id", m.id),
			slog.String("error", err.Error()),
		)
	}
}

// latchLocked はラッチを検査して設定する。発火すべき場合のみtrueを返す。
// UIランタイムと同様にタイマーコールバックは直列に実行されるが、
// Goでは複数ゴルーチンから呼ばれ得るためmutexで原子性を保証する。
// 呼び出し元でロックを保持すること。
func (m *Monitor) latchLocked() bool {
	if m.timedOut {
		return false
	}
	m.timedOut = true
	m.isIdle = true
	return true
}

// remainingLocked は残り時間を返す。負にはならない。呼び出し元でロックを保持すること。
func (m *Monitor) remainingLocked(now time.Time) time.Duration {
	elapsed := now.Sub(m.lastActivityAt)
	remaining := m.cfg.IdleTimeout - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// stateLocked は導出値込みのスナップショットを生成する。呼び出し元でロックを保持すること。
func (m *Monitor) stateLocked(now time.Time) State {
	remaining := m.remainingLocked(now)
	return State{
		LastActivityAt: m.lastActivityAt,
		TimeRemaining:  int(remaining / time.Second),
		ShowWarning:    remaining > 0 && remaining <= m.cfg.WarningTime,
		IsIdle:         remaining <= 0,
		HasTimedOut:    m.timedOut,
	}
}
