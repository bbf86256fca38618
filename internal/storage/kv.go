// Package storage はデバイスローカルのキーバリュー永続化ポートを提供する。
// コアロジックをストレージ実装から切り離し、テストではインメモリ実装に
// 差し替えられるようにする。
package storage

import "errors"

// ErrNotFound は指定キーのレコードが存在しないことを示す。
var ErrNotFound = errors.New("storage: key not found")

// KV はキーバリュー永続化のポートインターフェース。
// 値はJSONエンコード済みのバイト列として扱う。
type KV interface {
	// Get は指定キーの値を取得する。存在しない場合はErrNotFoundを返す。
	Get(key string) ([]byte, error)
	// Set は指定キーに値を保存する。呼び出しが返った時点で永続化が完了している。
	Set(key string, value []byte) error
	// Remove は指定キーを削除する。存在しないキーの削除はエラーにならない。
	Remove(key string) error
}

// 固定ストレージキー
const (
	// KeyDeviceMode はデバイスモードレコードの保存キー。
	KeyDeviceMode = "device_mode"
	// KeyAuthSession は認証セッションレコードの保存キー。
	KeyAuthSession = "auth_session"
	// KeyDevicePasscode はデバイスパスコードのbcryptハッシュの保存キー。
	KeyDevicePasscode = "device_passcode"
)
