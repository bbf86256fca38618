// Package model はドメインモデルを定義する。
package model

import "time"

// AuditEventType はシフト監査イベントの種別を表す。
type AuditEventType string

const (
	// AuditCashierAuthenticated はPIN認証成功を示す。
	AuditCashierAuthenticated AuditEventType = "cashier_authenticated"
	// AuditPinReset は強制PINリセットの完了を示す。
	AuditPinReset AuditEventType = "pin_reset"
	// AuditLogout は明示的なログアウトを示す。
	AuditLogout AuditEventType = "logout"
	// AuditIdleTimeout は無操作タイムアウトによるログアウトを示す。
	AuditIdleTimeout AuditEventType = "idle_timeout"
	// AuditForcedTimeout は画面非表示による即時ログアウトを示す。
	AuditForcedTimeout AuditEventType = "forced_timeout"
	// AuditModeChanged はデバイスモードの切り替えを示す。
	AuditModeChanged AuditEventType = "mode_changed"
)

// AuditEvent はシフト監査ジャーナルの1レコードを表す。
// TerminalID/UserIDはイベントによっては空になる（モード切替等）。
type AuditEvent struct {
	ID         string
	Type       AuditEventType
	TenantID   string
	BranchID   string
	TerminalID string
	UserID     string
	Detail     string
	OccurredAt time.Time
}
