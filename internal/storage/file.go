package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore はJSONファイル1枚にキーバリューを保存するKV実装。
// 値はJSONとは限らない不透明なバイト列のため、ファイル上はbase64で保持する。
// 書き込みは一時ファイルへの書き出しとrenameで行い、
// 途中でプロセスが落ちてもファイルが壊れないようにする。
type FileStore struct {
	mu   sync.RWMutex
	path string
	data map[string][]byte
}

// NewFileStore はdataDir配下のstate.jsonを開くFileStoreを生成する。
// ディレクトリが存在しない場合は作成し、ファイルが存在しない場合は空で開始する。
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	fs := &FileStore{
		path: filepath.Join(dataDir, "state.json"),
		data: map[string][]byte{},
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

// load はファイルから全レコードを読み込む。
func (fs *FileStore) load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	b, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var encoded map[string]string
	if err := json.Unmarshal(b, &encoded); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	loaded := make(map[string][]byte, len(encoded))
	for k, v := range encoded {
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode state value for key %q: %w", k, err)
		}
		loaded[k] = decoded
	}
	fs.data = loaded
	return nil
}

// saveLocked は全レコードをファイルへ書き出す。呼び出し元でロックを保持すること。
func (fs *FileStore) saveLocked() error {
	encoded := make(map[string]string, len(fs.data))
	for k, v := range fs.data {
		encoded[k] = base64.StdEncoding.EncodeToString(v)
	}

	b, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Get は指定キーの値を返す。存在しない場合はErrNotFoundを返す。
func (fs *FileStore) Get(key string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	v, ok := fs.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set は指定キーに値を保存し、同期的にファイルへ書き出す。
func (fs *FileStore) Set(key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	fs.data[key] = v
	return fs.saveLocked()
}

// Remove は指定キーを削除する。存在しないキーはそのまま成功を返す。
func (fs *FileStore) Remove(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data[key]; !ok {
		return nil
	}
	delete(fs.data, key)
	return fs.saveLocked()
}
