package handler

import (
	"github.com/linearpos/posagent/internal/gate"
	"github.com/linearpos/posagent/internal/model"
)

// ModeReader は現在のデバイスモードを参照するインターフェース。
type ModeReader interface {
	Current() model.DeviceModeRecord
}

// SessionReader は現在のセッション状態を参照するインターフェース。
type SessionReader interface {
	Current() *model.AuthSession
	IsAuthenticated() bool
}

// GateServiceAdapter はデバイスモードとセッションの現在状態を
// ルーティングゲートの判定入力に結び付けるアダプタ。
type GateServiceAdapter struct {
	modes    ModeReader
	sessions SessionReader
}

// NewGateServiceAdapter はGateServiceAdapterを生成する。
func NewGateServiceAdapter(modes ModeReader, sessions SessionReader) *GateServiceAdapter {
	return &GateServiceAdapter{modes: modes, sessions: sessions}
}

// Evaluate は現在のモードとセッションでルートのゲート判定を行う。
// エージェントは起動完了後にのみリクエストを受けるため、ローディング状態は常にfalse。
func (a *GateServiceAdapter) Evaluate(route gate.Route) gate.Decision {
	sess := gate.SessionState{}
	if cur := a.sessions.Current(); cur != nil && a.sessions.IsAuthenticated() {
		sess.IsAuthenticated = true
		sess.Role = cur.User.Role
	}
	return gate.Evaluate(a.modes.Current(), sess, route)
}

var _ GateServiceInterface = (*GateServiceAdapter)(nil)
