package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passvault/internal/domain/model"
)

func refundTo(recipient string, amount uint64) model.Transfer {
	t := model.Transfer{Recipient: recipient, Reason: model.TransferSurplusRefund}
	t.Amount.SetUint64(amount)
	return t
}

func TestSyncPayer_TransfersInline(t *testing.T) {
	ledger := &mockLedger{}
	p := NewSyncPayer(ledger, discardLogger)

	p.Pay(context.Background(), refundTo("alice", 5))

	got := ledger.all()
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Recipient)
	assert.Equal(t, uint64(5), got[0].Amount.Uint64())
}

func TestSyncPayer_IgnoresCancelledContext(t *testing.T) {
	ledger := &mockLedger{}
	p := NewSyncPayer(ledger, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Pay(ctx, refundTo("alice", 5))

	assert.Len(t, ledger.all(), 1)
}

func TestRefundDispatcher_DeliversQueuedRefunds(t *testing.T) {
	ledger := &mockLedger{}
	d := NewRefundDispatcher(ledger, discardLogger, 16)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)

	for i := range 10 {
		d.Pay(context.Background(), refundTo("alice", uint64(i+2)))
	}

	require.Eventually(t, func() bool { return len(ledger.all()) == 10 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestRefundDispatcher_DrainsOnShutdown(t *testing.T) {
	ledger := &mockLedger{}
	d := NewRefundDispatcher(ledger, discardLogger, 16)

	// Queue before the worker runs, then start it already cancelled.
	for i := range 5 {
		d.Pay(context.Background(), refundTo("alice", uint64(i+2)))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)

	assert.Len(t, ledger.all(), 5)
}

func TestRefundDispatcher_PaysInlineAfterStop(t *testing.T) {
	ledger := &mockLedger{}
	d := NewRefundDispatcher(ledger, discardLogger, 16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)

	d.Pay(context.Background(), refundTo("bob", 9))
	got := ledger.all()
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Recipient)
}

func TestRefundDispatcher_PaysInlineWhenQueueFull(t *testing.T) {
	ledger := &mockLedger{}
	d := NewRefundDispatcher(ledger, discardLogger, 1)

	// No worker: the first refund fills the queue, the second goes inline.
	d.Pay(context.Background(), refundTo("alice", 2))
	d.Pay(context.Background(), refundTo("bob", 3))

	got := ledger.all()
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Recipient)
}

func TestRefundDispatcher_CancelledWorkerLosesNoRefunds(t *testing.T) {
	// select picks randomly among ready cases, so repeat enough times for
	// the queue case to win against a cancelled context.
	for round := range 50 {
		ledger := &mockLedger{}
		d := NewRefundDispatcher(ledger, discardLogger, 64)
		for i := range 50 {
			d.Pay(context.Background(), refundTo("alice", uint64(i+2)))
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d.Start(ctx)

		require.Len(t, ledger.all(), 50, "round %d", round)
	}
}

// cancellingLedger cancels the worker's context while a transfer is in flight.
type cancellingLedger struct {
	mockLedger
	cancel context.CancelFunc
}

func (l *cancellingLedger) Transfer(ctx context.Context, t model.Transfer) error {
	l.cancel()
	return l.mockLedger.Transfer(ctx, t)
}

func TestRefundDispatcher_InFlightTransferSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ledger := &cancellingLedger{cancel: cancel}
	d := NewRefundDispatcher(ledger, discardLogger, 4)

	d.Pay(context.Background(), refundTo("alice", 2))
	d.Pay(context.Background(), refundTo("bob", 3))
	d.Start(ctx)

	got := ledger.all()
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Recipient)
	assert.Equal(t, "bob", got[1].Recipient)
}
