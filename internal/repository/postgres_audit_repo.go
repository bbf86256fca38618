package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/linearpos/posagent/internal/model"
)

// PostgresAuditRepo はPostgreSQLを使用した監査ジャーナルリポジトリ。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Create は監査イベントを1件追記する。
// IDが空の場合はUUIDを採番する。
func (r *PostgresAuditRepo) Create(ctx context.Context, event *model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, event_type, tenant_id, branch_id, terminal_id, user_id, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, string(event.Type), event.TenantID, event.BranchID,
		event.TerminalID, event.UserID, event.Detail, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}

// FindRecent は発生時刻の降順で直近limit件のイベントを取得する。
func (r *PostgresAuditRepo) FindRecent(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_type, tenant_id, branch_id, terminal_id, user_id, detail, occurred_at
		 FROM audit_events
		 ORDER BY occurred_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*model.AuditEvent
	for rows.Next() {
		event := &model.AuditEvent{}
		var eventType string
		if err := rows.Scan(&event.ID, &eventType, &event.TenantID, &event.BranchID,
			&event.TerminalID, &event.UserID, &event.Detail, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Type = model.AuditEventType(eventType)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	return events, nil
}

// DeleteOlderThan は指定時刻より古いイベントを削除し、削除件数を返す。
func (r *PostgresAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE occurred_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted audit events: %w", err)
	}
	return affected, nil
}

// compile-time interface check
var _ AuditRepository = (*PostgresAuditRepo)(nil)
