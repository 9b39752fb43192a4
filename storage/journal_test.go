package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestJournalReadsThroughStagedWrites(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	j := NewJournal(db)
	if err := j.Put([]byte("a"), []byte("2")); err != nil {
		t.Fatalf("stage put: %v", err)
	}
	got, err := j.Get([]byte("a"))
	if err != nil || string(got) != "2" {
		t.Fatalf("journal get = %q, %v; want staged value", got, err)
	}
	base, err := db.Get([]byte("a"))
	if err != nil || string(base) != "1" {
		t.Fatalf("backing store changed before commit: %q, %v", base, err)
	}

	if err := j.Delete([]byte("a")); err != nil {
		t.Fatalf("stage delete: %v", err)
	}
	if _, err := j.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected staged delete to hide key, got %v", err)
	}
}

func TestJournalDiscardLeavesStoreUntouched(t *testing.T) {
	db := NewMemDB()
	j := NewJournal(db)
	_ = j.Put([]byte("k1"), []byte("v1"))
	_ = j.Put([]byte("k2"), []byte("v2"))
	j.Discard()
	if j.Dirty() {
		t.Fatalf("journal still dirty after discard")
	}
	if err := j.Commit(); err != nil {
		t.Fatalf("commit empty journal: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("expected empty store, found %d keys", db.Len())
	}
}

func TestJournalCommitLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	if err := db.Put([]byte("stale"), []byte("x")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	j := NewJournal(db)
	_ = j.Put([]byte("design/0"), []byte("first"))
	_ = j.Put([]byte("design/1"), []byte("second"))
	_ = j.Delete([]byte("stale"))
	if err := j.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if j.Dirty() {
		t.Fatalf("journal should reset after commit")
	}
	for key, want := range map[string]string{"design/0": "first", "design/1": "second"} {
		got, err := db.Get([]byte(key))
		if err != nil || string(got) != want {
			t.Fatalf("get %s = %q, %v; want %q", key, got, err, want)
		}
	}
	if ok, err := db.Has([]byte("stale")); err != nil || ok {
		t.Fatalf("expected stale key removed, has=%v err=%v", ok, err)
	}
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
}
