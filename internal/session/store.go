// Package session は現在のアクターの認証セッションを管理する。
// デバイスモードとは独立しており、terminalモードの端末では
// レジ担当者のシフトごとにセッションが入れ替わる。
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linearpos/posagent/internal/model"
	"github.com/linearpos/posagent/internal/storage"
)

// Store は認証セッションのプロセス内シングルトンストア。
// SetAuth/Logoutのみが状態を変更し、呼び出しが返った時点で永続化が完了している。
type Store struct {
	mu      sync.RWMutex
	kv      storage.KV
	current *model.AuthSession
	nowFn   func() time.Time
}

// NewStore は永続化レコードを読み込んだStoreを生成する。
func NewStore(kv storage.KV) (*Store, error) {
	s := &Store{kv: kv, nowFn: time.Now}

	b, err := kv.Get(storage.KeyAuthSession)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to load auth session: %w", err)
	}

	var sess model.AuthSession
	if err := json.Unmarshal(b, &sess); err != nil {
		slog.Warn("auth session record is corrupt, discarding",
			slog.String("error", err.Error()),
		)
		_ = kv.Remove(storage.KeyAuthSession)
		return s, nil
	}
	s.current = &sess
	return s, nil
}

// SetAuth は認証成功時にセッションを作成して永続化する。
func (s *Store) SetAuth(user model.User, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := model.AuthSession{
		User:      user,
		Token:     token,
		CreatedAt: s.nowFn(),
	}

	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal auth session: %w", err)
	}
	if err := s.kv.Set(storage.KeyAuthSession, b); err != nil {
		return fmt.Errorf("failed to persist auth session: %w", err)
	}

	s.current = &sess
	return nil
}

// Logout はセッションを破棄する。セッションが存在しない場合も成功する
// （タイムアウトによるログアウトは失敗できない）。
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	if err := s.kv.Remove(storage.KeyAuthSession); err != nil {
		return fmt.Errorf("failed to remove auth session: %w", err)
	}
	return nil
}

// Current は現在のセッションのコピーを返す。未認証の場合はnilを返す。
func (s *Store) Current() *model.AuthSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	sess := *s.current
	return &sess
}

// IsAuthenticated はセッションが存在し、かつトークンが期限切れでない場合にtrueを返す。
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return false
	}
	return !tokenExpired(s.current.Token, s.nowFn())
}

// tokenExpired はバックエンドが発行したベアラートークンの期限切れを判定する。
// トークンはバックエンド署名のJWTであり、署名鍵はエージェントが持たないため
// 検証なしでexpクレームのみを読む。JWTとして解釈できないトークンや
// expクレームを持たないトークンは期限切れとして扱わない。
func tokenExpired(token string, now time.Time) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
