package storage

import (
	"errors"
	"testing"
)

// --- compile-time interface checks ---
var _ KV = (*FileStore)(nil)
var _ KV = (*MemoryStore)(nil)

func TestFileStore_SetGet_RoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := fs.Set("k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := fs.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Get() = %q, want %q", got, `{"a":1}`)
	}
}

func TestFileStore_Get_Missing_ReturnsErrNotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	_, err = fs.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := fs.Set("mode", []byte(`{"type":"terminal"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// 再オープンして同じ値が読めること
	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	got, err := reopened.Get("mode")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(got) != `{"type":"terminal"}` {
		t.Errorf("Get() after reopen = %q", got)
	}
}

func TestFileStore_StoresNonJSONValues(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	// bcryptハッシュのようなJSONでないバイト列もそのまま保存できること
	hash := []byte("$2a$10$N9qo8uLOickgx2ZMRZoMye")
	if err := fs.Set("passcode_hash", hash); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	got, err := reopened.Get("passcode_hash")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(got) != string(hash) {
		t.Errorf("Get() after reopen = %q, want %q", got, hash)
	}
}

func TestFileStore_Remove_MissingKey_NoError(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := fs.Remove("never-set"); err != nil {
		t.Errorf("Remove() error = %v, want nil", err)
	}
}

func TestFileStore_Remove_ThenGet_ReturnsErrNotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := fs.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := fs.Remove("k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	_, err = fs.Get("k")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ms := NewMemoryStore()

	if err := ms.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := ms.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}

	if err := ms.Remove("k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := ms.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}
}
