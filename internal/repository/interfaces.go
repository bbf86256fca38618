// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/linearpos/posagent/internal/model"
)

// AuditRepository はシフト監査ジャーナルの永続化インターフェース。
type AuditRepository interface {
	// Create は監査イベントを1件追記する。
	Create(ctx context.Context, event *model.AuditEvent) error

	// FindRecent は発生時刻の降順で直近limit件のイベントを取得する。
	FindRecent(ctx context.Context, limit int) ([]*model.AuditEvent, error)

	// DeleteOlderThan は指定時刻より古いイベントを削除し、削除件数を返す。
	// 保持期間を過ぎたジャーナルの整理に使用する。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
