package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/passvault/internal/domain/model"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// IDAllocator hands out account ids from a persisted counter.
type IDAllocator struct {
	kv driven.KVStore
}

// NewIDAllocator creates an IDAllocator over kv.
func NewIDAllocator(kv driven.KVStore) *IDAllocator {
	return &IDAllocator{kv: kv}
}

// Current returns the last allocated id. present is false when the counter
// has never been written.
func (a *IDAllocator) Current(ctx context.Context) (value uint64, present bool, err error) {
	raw, ok, err := a.kv.Get(ctx, counterKey)
	if err != nil {
		return 0, false, fmt.Errorf("get id counter: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	v, err := decodeUint64(raw)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Next increments the counter by one, persists it and returns the new value.
func (a *IDAllocator) Next(ctx context.Context) (model.AccountID, error) {
	v, _, err := a.Current(ctx)
	if err != nil {
		return 0, err
	}
	v++
	if err := a.kv.Put(ctx, counterKey, encodeUint64(v)); err != nil {
		return 0, fmt.Errorf("put id counter: %w", err)
	}
	return model.AccountID(v), nil
}

// Reset restores the counter to a value previously read with Current. It is
// used only to undo an allocation inside a call that is being rolled back.
func (a *IDAllocator) Reset(ctx context.Context, value uint64, present bool) error {
	if !present {
		if err := a.kv.Delete(ctx, counterKey); err != nil {
			return fmt.Errorf("delete id counter: %w", err)
		}
		return nil
	}
	if err := a.kv.Put(ctx, counterKey, encodeUint64(value)); err != nil {
		return fmt.Errorf("put id counter: %w", err)
	}
	return nil
}
