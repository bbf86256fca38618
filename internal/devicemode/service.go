package devicemode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linearpos/posagent/internal/audit"
	"github.com/linearpos/posagent/internal/backend"
	"github.com/linearpos/posagent/internal/model"
)

// TerminalLister はバックエンドの端末一覧取得インターフェース。
type TerminalLister interface {
	ListTerminals(ctx context.Context) ([]backend.Terminal, error)
}

// Service はデバイスモード操作のアプリケーションサービス。
// パスコードゲート、バックエンドとの端末照合、監査記録をStoreの上に重ねる。
type Service struct {
	store    *Store
	guard    *PasscodeGuard
	backend  TerminalLister
	recorder *audit.Recorder
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewService はServiceを生成する。
func NewService(store *Store, guard *PasscodeGuard, lister TerminalLister, recorder *audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		guard:    guard,
		backend:  lister,
		recorder: recorder,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Mode は現在のモードレコードと、再確認が必要かどうかのフラグを返す。
func (s *Service) Mode() (model.DeviceModeRecord, bool) {
	rec := s.store.Current()
	return rec, s.store.RequiresReverification(s.nowFn())
}

// SetManagementMode はパスコード検証のうえモードをmanagementに切り替える。
func (s *Service) SetManagementMode(ctx context.Context, passcode string) error {
	if err := s.guard.Verify(passcode); err != nil {
		return err
	}
	if err := s.store.SetManagementMode(); err != nil {
		return fmt.Errorf("failed to set management mode: %w", err)
	}
	s.recorder.RecordForTerminal(ctx, model.AuditModeChanged, nil, "", "mode set to management")
	return nil
}

// SetTerminalMode はパスコード検証のうえ端末識別情報を紐付け、terminalモードに切り替える。
// 識別フィールドが欠けている場合はIDENTITY_INCOMPLETEエラーを返す。
func (s *Service) SetTerminalMode(ctx context.Context, passcode string, identity model.TerminalIdentity) error {
	if err := s.guard.Verify(passcode); err != nil {
		return err
	}
	if err := s.store.SetTerminalMode(identity, s.nowFn()); err != nil {
		if errors.Is(err, ErrIdentityIncomplete) {
			return model.NewIdentityIncompleteError()
		}
		return fmt.Errorf("failed to set terminal mode: %w", err)
	}
	s.recorder.RecordForTerminal(ctx, model.AuditModeChanged, &identity, "",
		fmt.Sprintf("mode set to terminal (%s)", identity.TerminalCode))
	return nil
}

// ClearMode はパスコード検証のうえモードをuninitializedに戻す。
func (s *Service) ClearMode(ctx context.Context, passcode string) error {
	if err := s.guard.Verify(passcode); err != nil {
		return err
	}
	prev := s.store.Current()
	if err := s.store.ClearMode(); err != nil {
		return fmt.Errorf("failed to clear device mode: %w", err)
	}
	s.recorder.RecordForTerminal(ctx, model.AuditModeChanged, prev.Identity, "", "mode cleared")
	return nil
}

// VerifyTerminal は紐付け済み端末をバックエンドの端末一覧と照合し、
// 存在すればverifiedAtを更新した最新のレコードを返す。
// terminalモード以外ではNOT_TERMINAL_MODE、一覧に存在しなければ
// TERMINAL_NOT_FOUND、バックエンド到達不能時はBACKEND_UNREACHABLEを返す。
func (s *Service) VerifyTerminal(ctx context.Context) (model.DeviceModeRecord, error) {
	rec := s.store.Current()
	if rec.Type != model.DeviceModeTerminal || rec.Identity == nil {
		return rec, model.NewNotTerminalModeError()
	}

	terminals, err := s.backend.ListTerminals(ctx)
	if err != nil {
		var remote *backend.RemoteError
		if errors.As(err, &remote) {
			s.logger.Warn("terminal verification rejected by backend",
				slog.Int("http_status", remote.StatusCode),
			)
		}
		return rec, model.NewBackendUnreachableError()
	}

	found := false
	for _, t := range terminals {
		if t.ID == rec.Identity.TerminalID {
			found = true
			break
		}
	}
	if !found {
		s.logger.Warn("bound terminal no longer registered",
			slog.String("terminal_id", rec.Identity.TerminalID),
		)
		return rec, model.NewTerminalNotFoundError(rec.Identity.TerminalID)
	}

	if err := s.store.MarkVerified(s.nowFn()); err != nil {
		return rec, fmt.Errorf("failed to mark terminal verified: %w", err)
	}
	return s.store.Current(), nil
}

// ListTerminals は端末プロビジョニング画面向けにバックエンドの端末一覧を中継する。
func (s *Service) ListTerminals(ctx context.Context) ([]backend.Terminal, error) {
	terminals, err := s.backend.ListTerminals(ctx)
	if err != nil {
		return nil, model.NewBackendUnreachableError()
	}
	return terminals, nil
}
