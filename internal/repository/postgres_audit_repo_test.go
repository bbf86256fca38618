package repository

import (
	"testing"
	"time"

	"github.com/linearpos/posagent/internal/model"
)

// PostgresAuditRepoはAuditRepositoryインターフェースを満たすことを検証
func TestPostgresAuditRepo_ImplementsInterface(t *testing.T) {
	var _ AuditRepository = (*PostgresAuditRepo)(nil)
}

// NewPostgresAuditRepoが正しく初期化されることを検証
func TestNewPostgresAuditRepo_Initializes(t *testing.T) {
	repo := NewPostgresAuditRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// AuditEventType定数が期待する値を持つことを検証
func TestAuditEventTypes_Values(t *testing.T) {
	tests := []struct {
		eventType model.AuditEventType
		want      string
	}{
		{model.AuditCashierAuthenticated, "cashier_authenticated"},
		{model.AuditPinReset, "pin_reset"},
		{model.AuditLogout, "logout"},
		{model.AuditIdleTimeout, "idle_timeout"},
		{model.AuditForcedTimeout, "forced_timeout"},
		{model.AuditModeChanged, "mode_changed"},
	}

	for _, tt := range tests {
		if string(tt.eventType) != tt.want {
			t.Errorf("event type = %q, want %q", tt.eventType, tt.want)
		}
	}
}

// AuditEventのゼロ値が追記時に補完されることの前提確認
// （ID採番と発生時刻の補完はCreate内で行われる）
func TestAuditEvent_ZeroValues(t *testing.T) {
	event := &model.AuditEvent{
		Type:   model.AuditLogout,
		UserID: "cashier-1",
	}

	if event.ID != "" {
		t.Errorf("ID = %q, want empty before Create", event.ID)
	}
	if !event.OccurredAt.IsZero() {
		t.Errorf("OccurredAt = %v, want zero before Create", event.OccurredAt)
	}

	// 呼び出し側で明示指定した場合はそのまま使われる
	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	event2 := &model.AuditEvent{
		ID:         "evt-1",
		Type:       model.AuditIdleTimeout,
		OccurredAt: at,
	}
	if event2.ID != "evt-1" || !event2.OccurredAt.Equal(at) {
		t.Error("explicit ID and OccurredAt should be preserved")
	}
}
