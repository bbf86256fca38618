package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/linearpos/posagent/internal/audit"
	"github.com/linearpos/posagent/internal/idle"
	"github.com/linearpos/posagent/internal/model"
)

// ModeProvider は監査イベントに端末識別情報を添えるためのインターフェース。
type ModeProvider interface {
	Current() model.DeviceModeRecord
}

// Coordinator はセッションのライフサイクルと無操作モニターの起動・停止を束ねる。
// 認証成功でシフトごとのモニターを起動し、ログアウト・タイムアウトで破棄する。
type Coordinator struct {
	mu sync.Mutex

	store    *Store
	modes    ModeProvider
	recorder *audit.Recorder
	logger   *slog.Logger

	// monitorCfg はシフトごとのモニター生成に使うテンプレート。
	// OnTimeoutはCoordinatorが上書きする。
	monitorCfg idle.Config

	monitor     *idle.Monitor
	stopMonitor func()
}

// NewCoordinator はCoordinatorを生成する。
func NewCoordinator(store *Store, modes ModeProvider, recorder *audit.Recorder, monitorCfg idle.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      store,
		modes:      modes,
		recorder:   recorder,
		logger:     logger,
		monitorCfg: monitorCfg,
	}
}

// OnAuthenticated は認証成功時に呼び出され、新しいシフトのモニターを起動する。
// 既存のモニターが残っていれば先に停止する。
func (c *Coordinator) OnAuthenticated(user model.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopMonitorLocked()

	cfg := c.monitorCfg
	cfg.OnTimeout = c.handleTimeout
	m := idle.NewMonitor(cfg)
	c.monitor = m
	c.stopMonitor = m.Start(context.Background())

	c.logger.Info("shift started",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
}

// Resume は起動時に呼び出され、ディスクから復元された認証済みセッションが
// あればモニターを起動する。
func (c *Coordinator) Resume() {
	if !c.store.IsAuthenticated() {
		return
	}
	sess := c.store.Current()
	if sess == nil {
		return
	}
	c.logger.Info("resuming persisted session",
		slog.String("user_id", sess.User.ID),
	)
	c.OnAuthenticated(sess.User)
}

// Current は現在のセッションのコピーを返す。未認証の場合はnil。
func (c *Coordinator) Current() *model.AuthSession {
	return c.store.Current()
}

// IsAuthenticated はセッションが有効かどうかを返す。
func (c *Coordinator) IsAuthenticated() bool {
	return c.store.IsAuthenticated()
}

// Logout は明示的なログアウトを処理する。モニターを停止し、
// セッションを破棄して監査イベントを記録する。
func (c *Coordinator) Logout(ctx context.Context) error {
	sess := c.store.Current()

	c.mu.Lock()
	c.stopMonitorLocked()
	c.mu.Unlock()

	if err := c.store.Logout(); err != nil {
		return err
	}

	if sess != nil {
		rec := c.modes.Current()
		c.recorder.RecordForTerminal(ctx, model.AuditLogout, rec.Identity, sess.User.ID, "")
	}
	return nil
}

// RecordActivity はUIからの操作シグナルをモニターへ中継する。
// モニターが起動していなければ何もしない。
func (c *Coordinator) RecordActivity() {
	if m := c.activeMonitor(); m != nil {
		m.RecordActivity()
	}
}

// SetHidden はアプリの表示状態の変化をモニターへ中継する。
func (c *Coordinator) SetHidden(hidden bool) {
	if m := c.activeMonitor(); m != nil {
		m.SetHidden(hidden)
	}
}

// Extend は警告ダイアログの「続行」をモニターへ中継する。
func (c *Coordinator) Extend() {
	if m := c.activeMonitor(); m != nil {
		m.ResetTimeout()
	}
}

// MonitorState は現在のモニター状態を返す。モニターが起動していなければnil。
func (c *Coordinator) MonitorState() *idle.State {
	m := c.activeMonitor()
	if m == nil {
		return nil
	}
	st := m.Snapshot()
	return &st
}

// handleTimeout はタイムアウト発火時にモニターのゴルーチンから呼ばれる。
// セッションを破棄し、理由に応じた監査イベントを記録する。
func (c *Coordinator) handleTimeout(reason idle.TimeoutReason) {
	sess := c.store.Current()

	c.mu.Lock()
	c.stopMonitorLocked()
	c.mu.Unlock()

	if err := c.store.Logout(); err != nil {
		c.logger.Error("failed to discard session on timeout",
			slog.String("error", err.Error()),
		)
	}

	eventType := model.AuditIdleTimeout
	if reason == idle.ReasonHidden {
		eventType = model.AuditForcedTimeout
	}

	userID := ""
	if sess != nil {
		userID = sess.User.ID
	}
	rec := c.modes.Current()
	c.recorder.RecordForTerminal(context.Background(), eventType, rec.Identity, userID,
		"reason="+string(reason))
}

// activeMonitor はロック下でモニター参照を取り出す。
// SetHiddenは同期的にOnTimeoutを発火しうるため、呼び出しはロック外で行う。
func (c *Coordinator) activeMonitor() *idle.Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor
}

func (c *Coordinator) stopMonitorLocked() {
	if c.stopMonitor != nil {
		c.stopMonitor()
	}
	c.monitor = nil
	c.stopMonitor = nil
}
