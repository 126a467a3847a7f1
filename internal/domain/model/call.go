package model

import "github.com/holiman/uint256"

// Call describes the platform-verified context of a mutating request:
// who made it and how much was attached up front to pay for storage.
type Call struct {
	// Predecessor is the immediate caller. Refunds are paid to it.
	Predecessor string
	// Deposit is the amount attached to the call, in the smallest unit.
	Deposit uint256.Int
}

// NewCall builds a Call with the given caller and deposit.
func NewCall(predecessor string, deposit uint64) Call {
	c := Call{Predecessor: predecessor}
	c.Deposit.SetUint64(deposit)
	return c
}

// Receipt summarises the storage accounting of a committed mutation.
type Receipt struct {
	AccountID AccountID
	// Created is true when Add allocated a new id rather than updating.
	Created bool
	// StorageDelta is the net bytes consumed (positive) or released (negative).
	StorageDelta int64
	// Cost is the price of the consumed bytes; zero when bytes were released.
	Cost uint256.Int
	// Refund is the amount returned to the predecessor. Zero when the
	// surplus did not exceed the refund floor.
	Refund uint256.Int
}
