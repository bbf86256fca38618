package devicemode

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/linearpos/posagent/internal/model"
	"github.com/linearpos/posagent/internal/storage"
)

// PasscodeGuard はモード切替を保護するデバイスパスコードを管理する。
// パスコードはbcryptハッシュとしてローカルストアに保存され、平文は保持しない。
// ハッシュが未設定の間、モード切替は保護されない。
type PasscodeGuard struct {
	kv storage.KV
}

// NewPasscodeGuard はPasscodeGuardを生成する。
func NewPasscodeGuard(kv storage.KV) *PasscodeGuard {
	return &PasscodeGuard{kv: kv}
}

// IsSet はパスコードハッシュが保存済みかを返す。
func (g *PasscodeGuard) IsSet() (bool, error) {
	_, err := g.kv.Get(storage.KeyDevicePasscode)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read passcode hash: %w", err)
	}
	return true, nil
}

// Provision はパスコードをハッシュ化して保存する。
// すでに保存済みの場合は何もしない。起動時の初期化で使用する。
func (g *PasscodeGuard) Provision(passcode string) error {
	if passcode == "" {
		return nil
	}

	set, err := g.IsSet()
	if err != nil {
		return err
	}
	if set {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash passcode: %w", err)
	}
	if err := g.kv.Set(storage.KeyDevicePasscode, hash); err != nil {
		return fmt.Errorf("failed to store passcode hash: %w", err)
	}
	return nil
}

// Verify は入力パスコードを検証する。
// ハッシュが未設定の場合は常に成功する（保護なし）。
// 不一致の場合はPASSCODE_REJECTED、未入力の場合はPASSCODE_REQUIREDを返す。
func (g *PasscodeGuard) Verify(passcode string) error {
	hash, err := g.kv.Get(storage.KeyDevicePasscode)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read passcode hash: %w", err)
	}

	if passcode == "" {
		return model.NewPasscodeRequiredError()
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(passcode)); err != nil {
		return model.NewPasscodeRejectedError()
	}
	return nil
}
