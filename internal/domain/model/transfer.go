package model

import (
	"time"

	"github.com/holiman/uint256"
)

// TransferReason records why the ledger paid an amount out.
type TransferReason string

// Transfer reasons.
const (
	TransferSurplusRefund TransferReason = "surplus_refund"
	TransferStorageFreed  TransferReason = "storage_released"
)

// Transfer is a payment issued to a caller after a committed mutation.
type Transfer struct {
	ID        int64
	Recipient string
	Amount    uint256.Int
	Reason    TransferReason
	AccountID AccountID
	CreatedAt time.Time
}
