package application

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/ericfisherdev/passvault/internal/domain/model"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// UserIndexEntry is one user's set of account ids.
type UserIndexEntry struct {
	User model.UserID
	IDs  []model.AccountID
}

// UserIndex maps a user to the set of account ids it owns. Ids are kept in
// insertion order. A user whose set becomes empty loses its entry.
type UserIndex struct {
	kv    driven.KVStore
	table *AccountTable
}

// NewUserIndex creates a UserIndex over kv that dereferences ids through table.
func NewUserIndex(kv driven.KVStore, table *AccountTable) *UserIndex {
	return &UserIndex{kv: kv, table: table}
}

// load returns the id set of user. ok is false when the user has no entry.
func (x *UserIndex) load(ctx context.Context, user model.UserID) (ids []model.AccountID, ok bool, err error) {
	raw, ok, err := x.kv.Get(ctx, userIndexKey(user))
	if err != nil {
		return nil, false, fmt.Errorf("get user index %q: %w", user, err)
	}
	if !ok {
		return nil, false, nil
	}
	ids, err = decodeIDSet(raw)
	if err != nil {
		return nil, false, fmt.Errorf("user index %q: %w", user, err)
	}
	return ids, true, nil
}

func (x *UserIndex) store(ctx context.Context, user model.UserID, ids []model.AccountID) error {
	if len(ids) == 0 {
		if err := x.kv.Delete(ctx, userIndexKey(user)); err != nil {
			return fmt.Errorf("delete user index %q: %w", user, err)
		}
		return nil
	}
	if err := x.kv.Put(ctx, userIndexKey(user), encodeIDSet(ids)); err != nil {
		return fmt.Errorf("put user index %q: %w", user, err)
	}
	return nil
}

// Find scans the user's ids and returns the first whose record has the given
// website label. ok is false when the user has no entry or nothing matches.
func (x *UserIndex) Find(ctx context.Context, user model.UserID, website string) (model.AccountID, bool, error) {
	ids, ok, err := x.load(ctx, user)
	if err != nil || !ok {
		return 0, false, err
	}
	for _, id := range ids {
		a, err := x.table.Get(ctx, id)
		if err != nil {
			return 0, false, err
		}
		if a == nil {
			return 0, false, fmt.Errorf("%w: user %q indexes missing account %d", ErrCorruptState, user, id)
		}
		if a.Website == website {
			return id, true, nil
		}
	}
	return 0, false, nil
}

// List returns the user's ids. It fails with ErrUnknownUser when the user
// has no entry.
func (x *UserIndex) List(ctx context.Context, user model.UserID) ([]model.AccountID, error) {
	ids, ok, err := x.load(ctx, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("list %q: %w", user, ErrUnknownUser)
	}
	return ids, nil
}

// Attach adds id to the user's set, creating the entry if absent. It reports
// whether the id was newly added.
func (x *UserIndex) Attach(ctx context.Context, user model.UserID, id model.AccountID) (bool, error) {
	ids, _, err := x.load(ctx, user)
	if err != nil {
		return false, err
	}
	if slices.Contains(ids, id) {
		return false, nil
	}
	if err := x.store(ctx, user, append(ids, id)); err != nil {
		return false, err
	}
	return true, nil
}

// Detach removes id from the user's set and reports whether it was present.
// The entry is deleted when its set becomes empty. Detaching from a user with
// no entry fails with ErrUnknownUser.
func (x *UserIndex) Detach(ctx context.Context, user model.UserID, id model.AccountID) (bool, error) {
	ids, ok, err := x.load(ctx, user)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("detach %d from %q: %w", id, user, ErrUnknownUser)
	}
	i := slices.Index(ids, id)
	if i < 0 {
		return false, nil
	}
	if err := x.store(ctx, user, slices.Delete(ids, i, i+1)); err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of users with an index entry.
func (x *UserIndex) Count(ctx context.Context) (int, error) {
	n := 0
	err := x.kv.Scan(ctx, userIndexPrefix, func(_, _ []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// All returns a restartable iterator over every index entry in user order.
func (x *UserIndex) All(ctx context.Context) iter.Seq2[UserIndexEntry, error] {
	return func(yield func(UserIndexEntry, error) bool) {
		err := x.kv.Scan(ctx, userIndexPrefix, func(key, value []byte) error {
			ids, err := decodeIDSet(value)
			if err != nil {
				return err
			}
			entry := UserIndexEntry{User: model.UserID(key[len(userIndexPrefix):]), IDs: ids}
			if !yield(entry, nil) {
				return errStopScan
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopScan) {
			yield(UserIndexEntry{}, fmt.Errorf("scan user index: %w", err))
		}
	}
}
