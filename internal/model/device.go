// Package model はドメインモデルを定義する。
package model

import "time"

// DeviceModeType はデバイスの動作モードを表す。
type DeviceModeType string

const (
	// DeviceModeUninitialized は未初期化状態を示す。端末識別情報は未割り当て。
	DeviceModeUninitialized DeviceModeType = "uninitialized"
	// DeviceModeManagement は管理コンソールモードを示す。端末識別情報は持たない。
	DeviceModeManagement DeviceModeType = "management"
	// DeviceModeTerminal はレジ端末（キオスク）モードを示す。端末識別情報を保持する。
	DeviceModeTerminal DeviceModeType = "terminal"
)

// TerminalIdentity は物理端末に紐付けられた識別情報を表す。
// terminalモードへの切り替え時に全フィールドが必須となる。
type TerminalIdentity struct {
	TerminalID   string `json:"terminalId"`
	TerminalCode string `json:"terminalCode"`
	TerminalName string `json:"terminalName"`
	TenantID     string `json:"tenantId"`
	BranchID     string `json:"branchId"`
}

// IsComplete は全識別フィールドが空でないことを確認する。
func (ti TerminalIdentity) IsComplete() bool {
	return ti.TerminalID != "" &&
		ti.TerminalCode != "" &&
		ti.TerminalName != "" &&
		ti.TenantID != "" &&
		ti.BranchID != ""
}

// DeviceModeRecord はデバイスモードの永続化レコードを表す。
// ローカルストレージに固定キーでJSONエンコードして保存される。
// 識別フィールドはterminalモードの場合のみ設定される（部分更新は存在しない）。
type DeviceModeRecord struct {
	Type       DeviceModeType    `json:"type"`
	Identity   *TerminalIdentity `json:"identity,omitempty"`
	VerifiedAt time.Time         `json:"verifiedAt,omitzero"`
}
