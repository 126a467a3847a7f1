package driven

import (
	"context"

	"github.com/ericfisherdev/passvault/internal/domain/model"
)

// Ledger defines the driven port for the payment collaborator that moves
// refunds back to callers.
type Ledger interface {
	// Transfer pays t.Amount to t.Recipient and records it. The ID and
	// CreatedAt fields of t are assigned by the ledger.
	Transfer(ctx context.Context, t model.Transfer) error

	// List returns recorded transfers, newest first. An empty recipient
	// lists transfers for every recipient.
	List(ctx context.Context, recipient string) ([]model.Transfer, error)
}
