package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("a/1"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("a/1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("one")) {
		t.Fatalf("unexpected value %q", got)
	}

	batch := db.NewBatch()
	batch.Put([]byte("a/2"), []byte("two"))
	batch.Put([]byte("b/1"), []byte("other"))
	batch.Delete([]byte("a/1"))
	if batch.Len() != 3 {
		t.Fatalf("expected 3 batched ops, got %d", batch.Len())
	}
	if _, err := db.Get([]byte("a/2")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("batch must not apply before write")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if _, err := db.Get([]byte("a/1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a/1 deleted, got %v", err)
	}

	var keys []string
	err = db.Iterate([]byte("a/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 1 || keys[0] != "a/2" {
		t.Fatalf("unexpected iteration keys %v", keys)
	}

	stop := errors.New("stop")
	if err := db.Iterate(nil, func(key, value []byte) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("expected callback error to propagate, got %v", err)
	}

	if err := db.Delete([]byte("never-there")); err != nil {
		t.Fatalf("delete missing key: %v", err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	buf := []byte("value")
	if err := db.Put([]byte("k"), buf); err != nil {
		t.Fatalf("put: %v", err)
	}
	buf[0] = 'X'
	got, _ := db.Get([]byte("k"))
	if string(got) != "value" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bolt")
	db, err := NewBoltDB(path)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	exerciseDatabase(t, db)
	db.Close()

	reopened, err := NewBoltDB(path)
	if err != nil {
		t.Fatalf("reopen bolt: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get([]byte("b/1"))
	if err != nil || string(got) != "other" {
		t.Fatalf("expected persisted value, got %q err %v", got, err)
	}
}
