// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleCashier はレジ担当者を示す。POS画面のみ利用できる。
	RoleCashier Role = "CASHIER"
	// RoleSupervisor はレジ担当者の上位ロール（シフト承認等）を示す。
	// 端末上の扱いはCASHIERと同等で、POS画面のみ利用できる。
	RoleSupervisor Role = "SUPERVISOR"
	// RoleBranchManager は店舗管理者を示す。
	RoleBranchManager Role = "BRANCH_MANAGER"
	// RoleSystemAdmin はシステム管理者を示す。
	RoleSystemAdmin Role = "SYSTEM_ADMIN"
)

// IsCashierLike はPOS画面に限定されるロールかどうかを返す。
func (r Role) IsCashierLike() bool {
	return r == RoleCashier || r == RoleSupervisor
}

// User は認証済みユーザーを表す。
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// AuthSession は現在のアクターの認証セッションを表す。
// デバイスモードとは直交する: terminalモードのまま複数のAuthSessionが
// （レジ担当者のシフトごとに）入れ替わる。
type AuthSession struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}
