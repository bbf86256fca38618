package pinflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linearpos/posagent/internal/audit"
	"github.com/linearpos/posagent/internal/backend"
	"github.com/linearpos/posagent/internal/model"
)

type mockModes struct {
	rec model.DeviceModeRecord
}

func (m *mockModes) Current() model.DeviceModeRecord { return m.rec }

var _ ModeProvider = (*mockModes)(nil)

func terminalModes() *mockModes {
	identity := testIdentity()
	return &mockModes{rec: model.DeviceModeRecord{
		Type:     model.DeviceModeTerminal,
		Identity: &identity,
	}}
}

func newTestCoordinator(modes ModeProvider, auth Authenticator, onAuth func(model.User)) (*Coordinator, *mockSessions) {
	sessions := &mockSessions{}
	return NewCoordinator(CoordinatorConfig{
		Modes:           modes,
		Authenticator:   auth,
		Sessions:        sessions,
		Recorder:        audit.NewRecorder(nil, nil),
		OnAuthenticated: onAuth,
	}), sessions
}

func TestCoordinator_NotTerminalMode_RejectsAllCommands(t *testing.T) {
	modes := &mockModes{rec: model.DeviceModeRecord{Type: model.DeviceModeManagement}}
	coord, _ := newTestCoordinator(modes, &mockAuthenticator{}, nil)

	var apiErr *model.APIError

	_, err := coord.Digit('1')
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, model.ErrCodeNotTerminalMode, apiErr.Code)

	_, err = coord.Backspace()
	assert.Error(t, err)
	_, err = coord.Submit(context.Background())
	assert.Error(t, err)
	_, err = coord.Cancel()
	assert.Error(t, err)
	_, err = coord.Snapshot()
	assert.Error(t, err)
}

func TestCoordinator_CreatesFlowLazilyAndKeepsIt(t *testing.T) {
	coord, _ := newTestCoordinator(terminalModes(), &mockAuthenticator{}, nil)

	snap, err := coord.Digit('1')
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PinLength)

	// 2回目のコマンドは同じFlowに届く
	snap, err = coord.Digit('2')
	require.NoError(t, err)
	assert.Equal(t, 2, snap.PinLength)
}

func TestCoordinator_AuthenticationDiscardsFlow(t *testing.T) {
	auth := &mockAuthenticator{
		cashierAuthFn: func(ctx context.Context, req backend.AuthRequest) (*backend.AuthResult, error) {
			return &backend.AuthResult{
				User:  model.User{ID: "cashier-1", Role: model.RoleCashier},
				Token: "token-1",
			}, nil
		},
	}

	var authenticated *model.User
	coord, sessions := newTestCoordinator(terminalModes(), auth, func(u model.User) {
		authenticated = &u
	})

	for _, d := range "1234" {
		_, err := coord.Digit(d)
		require.NoError(t, err)
	}
	snap, err := coord.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Authenticated)

	require.NotNil(t, authenticated)
	assert.Equal(t, "cashier-1", authenticated.ID)
	assert.Equal(t, "token-1", sessions.token)

	// 完了したFlowは破棄され、次のコマンドは新しいLOGIN状態のFlowに届く
	snap, err = coord.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StateLogin, snap.State)
	assert.False(t, snap.Authenticated)
	assert.Equal(t, 0, snap.PinLength)
}

func TestCoordinator_RejectionKeepsFlow(t *testing.T) {
	auth := &mockAuthenticator{
		cashierAuthFn: func(ctx context.Context, req backend.AuthRequest) (*backend.AuthResult, error) {
			return nil, errors.New("network down")
		},
	}
	coord, _ := newTestCoordinator(terminalModes(), auth, nil)

	for _, d := range "1234" {
		_, err := coord.Digit(d)
		require.NoError(t, err)
	}
	snap, err := coord.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Error)
	assert.Equal(t, 1, snap.ShakeCount)

	// 拒否後も同じFlowが続き、シェイクカウンタが保持される
	for _, d := range "1234" {
		_, err := coord.Digit(d)
		require.NoError(t, err)
	}
	snap, err = coord.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.ShakeCount)
}

func TestCoordinator_RebindDiscardsFlow(t *testing.T) {
	var gotTerminalID string
	auth := &mockAuthenticator{
		cashierAuthFn: func(ctx context.Context, req backend.AuthRequest) (*backend.AuthResult, error) {
			gotTerminalID = req.TerminalID
			return &backend.AuthResult{
				User:  model.User{ID: "cashier-1", Role: model.RoleCashier},
				Token: "token-1",
			}, nil
		},
	}
	modes := terminalModes()
	coord, _ := newTestCoordinator(modes, auth, nil)

	// 旧端末でPIN入力を開始する
	_, err := coord.Digit('9')
	require.NoError(t, err)

	// 端末を別のアイデンティティへ再バインドする
	rebound := testIdentity()
	rebound.TerminalID = "term-2"
	rebound.TerminalCode = "T002"
	modes.rec.Identity = &rebound

	// 旧Flowは破棄され、入力済みの桁は持ち越されない
	snap, err := coord.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.PinLength)

	// 認証は新しい端末IDで行われる
	for _, d := range "1234" {
		_, err := coord.Digit(d)
		require.NoError(t, err)
	}
	snap, err = coord.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Authenticated)
	assert.Equal(t, "term-2", gotTerminalID)
}

func TestAuditingAuthenticator_SkipsAuditWhenResetRequired(t *testing.T) {
	// 一時PINログインは認証完了ではないため、監査イベントを出さない。
	// リポジトリなしのRecorderはログのみなので、raw Authenticatorの委譲だけ検証する。
	called := false
	next := &mockAuthenticator{
		cashierAuthFn: func(ctx context.Context, req backend.AuthRequest) (*backend.AuthResult, error) {
			called = true
			return &backend.AuthResult{
				User:             model.User{ID: "cashier-1"},
				RequiresPinReset: true,
			}, nil
		},
	}
	a := &auditingAuthenticator{
		next:     next,
		recorder: audit.NewRecorder(nil, nil),
		identity: testIdentity(),
	}

	result, err := a.CashierAuth(context.Background(), backend.AuthRequest{PIN: "0000"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, result.RequiresPinReset)
}
