package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/passvault/internal/domain/model"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Payer issues a refund after a call has committed. Payment failures never
// reach the caller; implementations log them.
type Payer interface {
	Pay(ctx context.Context, t model.Transfer)
}

func transfer(ctx context.Context, ledger driven.Ledger, logger *slog.Logger, t model.Transfer) {
	if err := ledger.Transfer(ctx, t); err != nil {
		logger.Error("refund transfer failed",
			"recipient", t.Recipient,
			"amount", t.Amount.Dec(),
			"reason", t.Reason,
			"account_id", t.AccountID,
			"error", err,
		)
	}
}

// SyncPayer transfers inline on the calling goroutine.
type SyncPayer struct {
	ledger driven.Ledger
	logger *slog.Logger
}

// NewSyncPayer creates a SyncPayer writing to ledger.
func NewSyncPayer(ledger driven.Ledger, logger *slog.Logger) *SyncPayer {
	return &SyncPayer{ledger: ledger, logger: logger}
}

// Pay implements Payer.
func (p *SyncPayer) Pay(ctx context.Context, t model.Transfer) {
	transfer(context.WithoutCancel(ctx), p.ledger, p.logger, t)
}

// RefundDispatcher queues refunds and transfers them from a single worker
// goroutine, so request handlers never wait on the ledger. When the queue is
// full or the worker has stopped, refunds are transferred inline.
type RefundDispatcher struct {
	ledger driven.Ledger
	logger *slog.Logger
	queue  chan model.Transfer
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// NewRefundDispatcher creates a dispatcher with a queue of the given size.
// Start must be called for queued refunds to be transferred.
func NewRefundDispatcher(ledger driven.Ledger, logger *slog.Logger, size int) *RefundDispatcher {
	return &RefundDispatcher{
		ledger: ledger,
		logger: logger,
		queue:  make(chan model.Transfer, size),
		done:   make(chan struct{}),
	}
}

// Start runs the worker until ctx is cancelled, then drains whatever is
// still queued. Start blocks; run it in its own goroutine. Transfers run on
// a context detached from ctx: a refund taken off the queue has already been
// committed and must reach the ledger.
func (d *RefundDispatcher) Start(ctx context.Context) {
	defer close(d.done)
	work := context.WithoutCancel(ctx)
	for {
		// Cancellation wins over a ready queue.
		select {
		case <-ctx.Done():
			d.stop(work)
			return
		default:
		}

		select {
		case t := <-d.queue:
			transfer(work, d.ledger, d.logger, t)
		case <-ctx.Done():
			d.stop(work)
			return
		}
	}
}

func (d *RefundDispatcher) stop(ctx context.Context) {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.drain(ctx)
}

func (d *RefundDispatcher) drain(ctx context.Context) {
	for {
		select {
		case t := <-d.queue:
			transfer(ctx, d.ledger, d.logger, t)
		default:
			return
		}
	}
}

// Pay implements Payer.
func (d *RefundDispatcher) Pay(ctx context.Context, t model.Transfer) {
	d.mu.Lock()
	if !d.stopped {
		select {
		case d.queue <- t:
			d.mu.Unlock()
			return
		default:
		}
	}
	d.mu.Unlock()
	transfer(context.WithoutCancel(ctx), d.ledger, d.logger, t)
}

// Done is closed once the worker has stopped and drained the queue.
func (d *RefundDispatcher) Done() <-chan struct{} {
	return d.done
}

// Backlog reports how many refunds are queued and the queue capacity.
func (d *RefundDispatcher) Backlog() (pending, capacity int) {
	return len(d.queue), cap(d.queue)
}
