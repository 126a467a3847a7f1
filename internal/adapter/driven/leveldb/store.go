// Package leveldb implements the KVStore port on goleveldb.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KVStore = (*Store)(nil)

// Store is a persistent KVStore on a LevelDB database. Storage usage is
// computed once on open and then maintained on every write.
type Store struct {
	db *leveldb.DB
	wo *opt.WriteOptions

	mu    sync.Mutex
	usage uint64
}

// Open creates or opens a LevelDB database at path. Writes are synced to disk.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return newStore(db, &opt.WriteOptions{Sync: true})
}

// OpenMemory creates a Store backed by memory, for tests and dry runs.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return newStore(db, nil)
}

func newStore(db *leveldb.DB, wo *opt.WriteOptions) (*Store, error) {
	s := &Store{db: db, wo: wo}

	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		s.usage += entrySize(iter.Key(), iter.Value())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("measure leveldb usage: %w", err)
	}
	return s, nil
}

func entrySize(key, value []byte) uint64 {
	return uint64(len(key)+len(value)) + driven.EntryOverheadBytes
}

// Get retrieves the value stored under key. Returns (nil, false, nil) if absent.
func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	val, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %x: %w", key, err)
	}
	return val, true, nil
}

// Put inserts or overwrites the value stored under key.
func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.db.Get(key, nil)
	exists := err == nil
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("get %x: %w", key, err)
	}

	if err := s.db.Put(key, value, s.wo); err != nil {
		return fmt.Errorf("put %x: %w", key, err)
	}

	if exists {
		s.usage -= entrySize(key, old)
	}
	s.usage += entrySize(key, value)
	return nil
}

// Delete removes key. No-op if the key is absent.
func (s *Store) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %x: %w", key, err)
	}

	if err := s.db.Delete(key, s.wo); err != nil {
		return fmt.Errorf("delete %x: %w", key, err)
	}
	s.usage -= entrySize(key, old)
	return nil
}

// Scan calls fn for each entry whose key starts with prefix, in key order.
// fn runs against a snapshot and receives copies of key and value.
func (s *Store) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	var rng *util.Range
	if len(prefix) > 0 {
		rng = util.BytesPrefix(prefix)
	}

	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan %q: %w", prefix, err)
	}
	return nil
}

// Usage returns the bytes held by the store.
func (s *Store) Usage(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
