package storage

import "sync"

// MemoryStore はテスト用のインメモリKV実装。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

// Get は指定キーの値を返す。存在しない場合はErrNotFoundを返す。
func (ms *MemoryStore) Get(key string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	v, ok := ms.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set は指定キーに値を保存する。
func (ms *MemoryStore) Set(key string, value []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	ms.data[key] = v
	return nil
}

// Remove は指定キーを削除する。
func (ms *MemoryStore) Remove(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, key)
	return nil
}
