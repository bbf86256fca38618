package pinflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/linearpos/posagent/internal/audit"
	"github.com/linearpos/posagent/internal/backend"
	"github.com/linearpos/posagent/internal/model"
)

// ModeProvider は現在のデバイスモードを参照するインターフェース。
type ModeProvider interface {
	Current() model.DeviceModeRecord
}

// CoordinatorConfig はCoordinator生成時の依存関係。
type CoordinatorConfig struct {
	Modes         ModeProvider
	Authenticator Authenticator
	Sessions      SessionWriter
	Metrics       MetricsRecorder
	Recorder      *audit.Recorder
	Logger        *slog.Logger
	// OnAuthenticated は認証完了時に呼ばれる（シフトモニター起動用）。
	OnAuthenticated func(user model.User)
}

// Coordinator はPINフローのライフサイクルを管理する。
// terminalモードで最初のコマンドが届いた時点でFlowを生成し、
// 認証完了で破棄する。次のシフトのオーバーレイは新しいFlowを受け取る。
type Coordinator struct {
	mu           sync.Mutex
	flow         *Flow
	flowIdentity model.TerminalIdentity

	modes           ModeProvider
	auth            Authenticator
	sessions        SessionWriter
	metrics         MetricsRecorder
	recorder        *audit.Recorder
	logger          *slog.Logger
	onAuthenticated func(user model.User)
}

// NewCoordinator はCoordinatorを生成する。
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		modes:           cfg.Modes,
		auth:            cfg.Authenticator,
		sessions:        cfg.Sessions,
		metrics:         cfg.Metrics,
		recorder:        cfg.Recorder,
		logger:          logger,
		onAuthenticated: cfg.OnAuthenticated,
	}
}

// Digit は数字キー入力を現在のFlowへ中継する。
func (c *Coordinator) Digit(d rune) (Snapshot, error) {
	f, err := c.currentFlow()
	if err != nil {
		return Snapshot{}, err
	}
	return f.Digit(d), nil
}

// Backspace は末尾1桁の削除を現在のFlowへ中継する。
func (c *Coordinator) Backspace() (Snapshot, error) {
	f, err := c.currentFlow()
	if err != nil {
		return Snapshot{}, err
	}
	return f.Backspace(), nil
}

// Submit は送信を現在のFlowへ中継する。
func (c *Coordinator) Submit(ctx context.Context) (Snapshot, error) {
	f, err := c.currentFlow()
	if err != nil {
		return Snapshot{}, err
	}
	return f.Submit(ctx), nil
}

// Cancel はキャンセルを現在のFlowへ中継する。
func (c *Coordinator) Cancel() (Snapshot, error) {
	f, err := c.currentFlow()
	if err != nil {
		return Snapshot{}, err
	}
	return f.Cancel(), nil
}

// Snapshot は現在のFlow状態を返す。
func (c *Coordinator) Snapshot() (Snapshot, error) {
	f, err := c.currentFlow()
	if err != nil {
		return Snapshot{}, err
	}
	return f.Snapshot(), nil
}

// currentFlow は現在のFlowを返す。存在しなければ生成する。
// terminalモード以外ではNOT_TERMINAL_MODEエラーを返す。
// 端末が別のアイデンティティに再バインドされた場合、古いFlowは
// 以前の端末IDで認証してしまうため破棄して作り直す。
func (c *Coordinator) currentFlow() (*Flow, error) {
	rec := c.modes.Current()
	if rec.Type != model.DeviceModeTerminal || rec.Identity == nil {
		return nil, model.NewNotTerminalModeError()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flow != nil && c.flowIdentity != *rec.Identity {
		c.logger.Info("terminal identity changed, discarding pin flow",
			slog.String("old_terminal_id", c.flowIdentity.TerminalID),
			slog.String("new_terminal_id", rec.Identity.TerminalID),
		)
		c.flow = nil
	}

	if c.flow == nil {
		c.flowIdentity = *rec.Identity
		c.flow = NewFlow(Config{
			Identity: *rec.Identity,
			Authenticator: &auditingAuthenticator{
				next:     c.auth,
				recorder: c.recorder,
				identity: *rec.Identity,
			},
			Sessions:        c.sessions,
			Metrics:         c.metrics,
			Logger:          c.logger,
			OnAuthenticated: c.flowAuthenticated,
		})
	}
	return c.flow, nil
}

// flowAuthenticated は認証完了時にFlowから呼ばれる。
// 完了済みのFlowを破棄し、上位のコールバックへ通知する。
func (c *Coordinator) flowAuthenticated(user model.User) {
	c.mu.Lock()
	c.flow = nil
	c.mu.Unlock()

	if c.onAuthenticated != nil {
		c.onAuthenticated(user)
	}
}

// auditingAuthenticator はバックエンド呼び出しの成功を監査ジャーナルに記録する。
type auditingAuthenticator struct {
	next     Authenticator
	recorder *audit.Recorder
	identity model.TerminalIdentity
}

func (a *auditingAuthenticator) CashierAuth(ctx context.Context, req backend.AuthRequest) (*backend.AuthResult, error) {
	result, err := a.next.CashierAuth(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.RequiresPinReset {
		a.recorder.RecordForTerminal(ctx, model.AuditCashierAuthenticated, &a.identity, result.User.ID, "")
	}
	return result, nil
}

func (a *auditingAuthenticator) ResetPIN(ctx context.Context, req backend.ResetPINRequest) (*backend.AuthResult, error) {
	result, err := a.next.ResetPIN(ctx, req)
	if err != nil {
		return nil, err
	}
	a.recorder.RecordForTerminal(ctx, model.AuditPinReset, &a.identity, result.User.ID, "")
	a.recorder.RecordForTerminal(ctx, model.AuditCashierAuthenticated, &a.identity, result.User.ID, "after pin reset")
	return result, nil
}
