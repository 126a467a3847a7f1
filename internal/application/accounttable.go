package application

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/ericfisherdev/passvault/internal/domain/model"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// errStopScan ends a KVStore scan early when an iterator consumer stops.
var errStopScan = errors.New("stop scan")

// AccountTable maps account ids to records. It is the single source of truth
// for record content and enforces no cross-record invariants.
type AccountTable struct {
	kv driven.KVStore
}

// NewAccountTable creates an AccountTable over kv.
func NewAccountTable(kv driven.KVStore) *AccountTable {
	return &AccountTable{kv: kv}
}

// Get returns the record stored under id, or nil if there is none.
// Username and Password are returned in their stored (encoded) form.
func (t *AccountTable) Get(ctx context.Context, id model.AccountID) (*model.Account, error) {
	raw, ok, err := t.kv.Get(ctx, accountKey(id))
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	a, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Put inserts or overwrites the record stored under a.ID.
func (t *AccountTable) Put(ctx context.Context, a model.Account) error {
	if err := t.kv.Put(ctx, accountKey(a.ID), encodeAccount(a)); err != nil {
		return fmt.Errorf("put account %d: %w", a.ID, err)
	}
	return nil
}

// Delete removes the record stored under id. It is a no-op if absent.
func (t *AccountTable) Delete(ctx context.Context, id model.AccountID) error {
	if err := t.kv.Delete(ctx, accountKey(id)); err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	return nil
}

// All returns a restartable iterator over every stored record in id order.
// Iteration stops at the first error, which is yielded with a zero Account.
func (t *AccountTable) All(ctx context.Context) iter.Seq2[model.Account, error] {
	return func(yield func(model.Account, error) bool) {
		err := t.kv.Scan(ctx, accountTablePrefix, func(_, value []byte) error {
			a, err := decodeAccount(value)
			if err != nil {
				return err
			}
			if !yield(a, nil) {
				return errStopScan
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopScan) {
			yield(model.Account{}, fmt.Errorf("scan accounts: %w", err))
		}
	}
}
