package application

import (
	"context"
	"errors"
)

// undoLog records inverse operations for the writes a call has applied so
// far. Rollback runs them newest first.
type undoLog []func(ctx context.Context) error

func (u *undoLog) push(fn func(ctx context.Context) error) {
	*u = append(*u, fn)
}

// rollback applies every recorded inverse, continuing past failures, and
// returns the joined errors. It uses a context detached from cancellation so
// an aborted request still restores state.
func (u undoLog) rollback(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(u) - 1; i >= 0; i-- {
		if err := u[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
