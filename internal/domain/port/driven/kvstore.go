package driven

import "context"

// EntryOverheadBytes is charged on top of key and value length for every
// persisted entry when computing storage usage.
const EntryOverheadBytes = 40

// KVStore defines the driven port for byte-keyed state persistence.
// Writes are visible to subsequent reads as soon as they return.
type KVStore interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// Put inserts or overwrites the value stored under key.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan calls fn for every entry whose key starts with prefix, in key order.
	// Returning a non-nil error from fn stops the scan and returns that error.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error

	// Usage returns the bytes of state currently persisted: the sum over all
	// entries of len(key) + len(value) + EntryOverheadBytes.
	Usage(ctx context.Context) (uint64, error)
}
