// Package audit はシフト監査ジャーナルの記録を提供する。
// リポジトリが設定されていない場合は構造化ログへの出力のみ行う。
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/linearpos/posagent/internal/model"
	"github.com/linearpos/posagent/internal/repository"
)

// Recorder は監査イベントをログとPostgreSQLジャーナルに記録する。
// 監査の失敗が業務フローを止めることはない。永続化エラーはログに残すのみ。
type Recorder struct {
	repo   repository.AuditRepository
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewRecorder はRecorderを生成する。repoはnilでもよい（ログ出力のみになる）。
func NewRecorder(repo repository.AuditRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		nowFn:  time.Now,
	}
}

// Record は監査イベントを1件記録する。
// OccurredAtが未設定の場合は現在時刻を補完する。
func (r *Recorder) Record(ctx context.Context, event *model.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.nowFn()
	}

	r.logger.Info("audit_event",
		slog.String("event_type", string(event.Type)),
		slog.String("tenant_id", event.TenantID),
		slog.String("branch_id", event.BranchID),
		slog.String("terminal_id", event.TerminalID),
		slog.String("user_id", event.UserID),
		slog.String("detail", event.Detail),
	)

	if r.repo == nil {
		return
	}

	if err := r.repo.Create(ctx, event); err != nil {
		r.logger.Error("failed to persist audit event",
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// RecordForTerminal は端末識別情報を展開して監査イベントを記録する。
// identityがnilの場合は端末情報を空のまま記録する。
func (r *Recorder) RecordForTerminal(ctx context.Context, eventType model.AuditEventType, identity *model.TerminalIdentity, userID, detail string) {
	event := &model.AuditEvent{
		Type:   eventType,
		UserID: userID,
		Detail: detail,
	}
	if identity != nil {
		event.TenantID = identity.TenantID
		event.BranchID = identity.BranchID
		event.TerminalID = identity.TerminalID
	}
	r.Record(ctx, event)
}
