// Package devicemode はデバイスの動作モード（uninitialized / management / terminal）を
// 管理する単一の信頼できる状態ストアを提供する。
// モード遷移が識別フィールドを変更する唯一の経路であり、部分更新は存在しない。
package devicemode

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linearpos/posagent/internal/model"
	"github.com/linearpos/posagent/internal/storage"
)

// ReverificationInterval は端末識別情報の再確認が必要になるまでの期間。
const ReverificationInterval = 24 * time.Hour

// ErrIdentityIncomplete は端末識別フィールドの不足を示す。
var ErrIdentityIncomplete = errors.New("terminal identity is incomplete")

// Store はデバイスモードレコードのプロセス内シングルトンストア。
// 変更は公開オペレーション経由のみで、呼び出しが返った時点で永続化が完了している。
type Store struct {
	mu   sync.RWMutex
	kv   storage.KV
	mode model.DeviceModeRecord
}

// NewStore は永続化レコードを読み込んだStoreを生成する。
// レコードが存在しない場合はuninitializedで開始する。
func NewStore(kv storage.KV) (*Store, error) {
	s := &Store{
		kv:   kv,
		mode: model.DeviceModeRecord{Type: model.DeviceModeUninitialized},
	}

	b, err := kv.Get(storage.KeyDeviceMode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to load device mode: %w", err)
	}

	var rec model.DeviceModeRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		// 壊れたレコードは復旧不能なのでuninitializedに戻す
		slog.Warn("device mode record is corrupt, resetting to uninitialized",
			slog.String("error", err.Error()),
		)
		return s, nil
	}
	s.mode = rec
	return s, nil
}

// Current は現在のデバイスモードレコードのコピーを返す。
func (s *Store) Current() model.DeviceModeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// SetManagementMode はモードをmanagementに切り替える。
// 端末識別情報があれば破棄される。
func (s *Store) SetManagementMode() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = model.DeviceModeRecord{Type: model.DeviceModeManagement}
	return s.persistLocked()
}

// SetTerminalMode はモードをterminalに切り替え、識別情報とverifiedAt=nowを記録する。
// 識別フィールドが1つでも空の場合はErrIdentityIncompleteを返し、状態は変更しない。
func (s *Store) SetTerminalMode(identity model.TerminalIdentity, now time.Time) error {
	if !identity.IsComplete() {
		return ErrIdentityIncomplete
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = model.DeviceModeRecord{
		Type:       model.DeviceModeTerminal,
		Identity:   &identity,
		VerifiedAt: now,
	}
	return s.persistLocked()
}

// ClearMode はモードをuninitializedに戻す。端末の紐付け解除や再割り当てで使用する。
// 事前のモードに関わらず常に同じ結果になる（冪等）。
func (s *Store) ClearMode() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = model.DeviceModeRecord{Type: model.DeviceModeUninitialized}
	return s.persistLocked()
}

// MarkVerified はterminalモードのverifiedAtをnowに更新する。
// 再確認（re-verification）成功時に呼び出す。terminalモード以外では何もしない。
func (s *Store) MarkVerified(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode.Type != model.DeviceModeTerminal {
		return nil
	}
	s.mode.VerifiedAt = now
	return s.persistLocked()
}

// RequiresReverification はterminalモードかつ最終確認から24時間を超えている場合に
// trueを返す純粋な述語。それ以外のモード（uninitialized含む）では常にfalse。
// 自動失効は行わず、呼び出し側が対応を判断する。
func (s *Store) RequiresReverification(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.mode.Type != model.DeviceModeTerminal {
		return false
	}
	return now.Sub(s.mode.VerifiedAt) > ReverificationInterval
}

// persistLocked は現在のレコードをKVへ書き出す。呼び出し元でロックを保持すること。
func (s *Store) persistLocked() error {
	b, err := json.Marshal(s.mode)
	if err != nil {
		return fmt.Errorf("failed to marshal device mode: %w", err)
	}
	if err := s.kv.Set(storage.KeyDeviceMode, b); err != nil {
		return fmt.Errorf("failed to persist device mode: %w", err)
	}
	return nil
}

// copyLocked はレコードのディープコピーを返す。呼び出し元でロックを保持すること。
func (s *Store) copyLocked() model.DeviceModeRecord {
	rec := s.mode
	if s.mode.Identity != nil {
		id := *s.mode.Identity
		rec.Identity = &id
	}
	return rec
}
