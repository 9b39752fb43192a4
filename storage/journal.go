package storage

import (
	"errors"
	"sort"
)

// Journal stages writes on top of a Database. Reads observe the staged
// values first; nothing reaches the backing store until Commit, which writes
// the whole set as one atomic batch. Discard drops the staged set.
//
// Journal is not safe for concurrent use.
type Journal struct {
	base    Database
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewJournal opens an empty journal over base.
func NewJournal(base Database) *Journal {
	return &Journal{
		base:    base,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Get returns the staged value for key, falling back to the backing store.
func (j *Journal) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, gone := j.deleted[k]; gone {
		return nil, ErrNotFound
	}
	if value, ok := j.pending[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return j.base.Get(key)
}

// Put stages a write.
func (j *Journal) Put(key, value []byte) error {
	k := string(key)
	delete(j.deleted, k)
	j.pending[k] = append([]byte(nil), value...)
	return nil
}

// Delete stages a removal.
func (j *Journal) Delete(key []byte) error {
	k := string(key)
	delete(j.pending, k)
	j.deleted[k] = struct{}{}
	return nil
}

// Dirty reports whether any write is staged.
func (j *Journal) Dirty() bool {
	return len(j.pending) > 0 || len(j.deleted) > 0
}

// Commit flushes the staged set in deterministic key order and resets the
// journal.
func (j *Journal) Commit() error {
	if j.base == nil {
		return errors.New("storage: journal has no backing store")
	}
	if !j.Dirty() {
		return nil
	}
	keys := make([]string, 0, len(j.pending))
	for k := range j.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, k := range keys {
		batch.Put([]byte(k), j.pending[k])
	}
	removed := make([]string, 0, len(j.deleted))
	for k := range j.deleted {
		removed = append(removed, k)
	}
	sort.Strings(removed)
	for _, k := range removed {
		batch.Delete([]byte(k))
	}
	if err := j.base.Write(batch); err != nil {
		return err
	}
	j.Discard()
	return nil
}

// Discard drops every staged write.
func (j *Journal) Discard() {
	j.pending = make(map[string][]byte)
	j.deleted = make(map[string]struct{})
}
