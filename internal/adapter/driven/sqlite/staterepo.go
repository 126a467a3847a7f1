package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KVStore = (*StateRepo)(nil)

// StateRepo is the SQLite implementation of the KVStore port interface.
// All partitions share the single state table and are separated by key prefix.
type StateRepo struct {
	db *DB
}

// NewStateRepo creates a new StateRepo backed by the given DB.
func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// Get retrieves the value stored under key. Returns (nil, false, nil) if absent.
func (r *StateRepo) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	const query = `SELECT value FROM state WHERE key = ?`
	var value []byte
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get state %x: %w", key, err)
	}
	return value, true, nil
}

// Put inserts or replaces the value stored under key.
func (r *StateRepo) Put(ctx context.Context, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	const query = `INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`
	if _, err := r.db.Writer.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("put state %x: %w", key, err)
	}
	return nil
}

// Delete removes key. No-op if the key is absent.
func (r *StateRepo) Delete(ctx context.Context, key []byte) error {
	const query = `DELETE FROM state WHERE key = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete state %x: %w", key, err)
	}
	return nil
}

type stateRow struct {
	key, value []byte
}

// Scan calls fn for each entry whose key starts with prefix, ordered by key.
// Rows are read fully before fn is called so fn may query the store.
func (r *StateRepo) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	var (
		rows *sql.Rows
		err  error
	)
	end := prefixEnd(prefix)
	switch {
	case len(prefix) == 0:
		const query = `SELECT key, value FROM state ORDER BY key`
		rows, err = r.db.Reader.QueryContext(ctx, query)
	case end == nil:
		const query = `SELECT key, value FROM state WHERE key >= ? ORDER BY key`
		rows, err = r.db.Reader.QueryContext(ctx, query, prefix)
	default:
		const query = `SELECT key, value FROM state WHERE key >= ? AND key < ? ORDER BY key`
		rows, err = r.db.Reader.QueryContext(ctx, query, prefix, end)
	}
	if err != nil {
		return fmt.Errorf("scan state %q: %w", prefix, err)
	}
	defer rows.Close()

	var batch []stateRow
	for rows.Next() {
		var row stateRow
		if err := rows.Scan(&row.key, &row.value); err != nil {
			return fmt.Errorf("scan state row: %w", err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state %q: %w", prefix, err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close state rows: %w", err)
	}

	for _, row := range batch {
		if err := fn(row.key, row.value); err != nil {
			return err
		}
	}
	return nil
}

// Usage returns the bytes held by the state table, charging
// driven.EntryOverheadBytes per row on top of key and value length.
func (r *StateRepo) Usage(ctx context.Context) (uint64, error) {
	const query = `SELECT COUNT(*), COALESCE(SUM(length(key) + length(value)), 0) FROM state`
	var count, size int64
	if err := r.db.Reader.QueryRowContext(ctx, query).Scan(&count, &size); err != nil {
		return 0, fmt.Errorf("measure state usage: %w", err)
	}
	return uint64(size) + uint64(count)*driven.EntryOverheadBytes, nil
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists (empty or all-0xff prefix).
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
