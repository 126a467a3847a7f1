package application

import (
	"github.com/holiman/uint256"
)

// Settlement is the outcome of pricing one call's storage delta.
type Settlement struct {
	// Required is the price of the bytes consumed. Zero when bytes were released.
	Required uint256.Int
	// Refund is the amount owed back to the caller after the floor is applied.
	Refund uint256.Int
}

// StorageAccountant prices storage deltas and decides refunds.
type StorageAccountant struct {
	byteCost    uint256.Int
	refundFloor uint256.Int
}

// NewStorageAccountant creates a StorageAccountant charging byteCost per byte.
// Refunds not strictly greater than refundFloor are kept.
func NewStorageAccountant(byteCost, refundFloor *uint256.Int) *StorageAccountant {
	s := &StorageAccountant{}
	s.byteCost.Set(byteCost)
	s.refundFloor.Set(refundFloor)
	return s
}

// ByteCost returns the price of one byte.
func (s *StorageAccountant) ByteCost() *uint256.Int {
	return new(uint256.Int).Set(&s.byteCost)
}

// Measure returns after - before: positive when bytes were consumed,
// negative when released.
func (s *StorageAccountant) Measure(before, after uint64) int64 {
	if after >= before {
		return int64(after - before)
	}
	return -int64(before - after)
}

// Cost returns the price of n bytes.
func (s *StorageAccountant) Cost(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(&s.byteCost, uint256.NewInt(n))
}

// Settle prices delta against the attached deposit. Growth must be covered by
// the deposit or an *InsufficientPaymentError is returned; the surplus is
// refunded. Released bytes are refunded in full together with the deposit.
func (s *StorageAccountant) Settle(deposit *uint256.Int, delta int64) (Settlement, error) {
	var out Settlement
	if delta > 0 {
		out.Required.Set(s.Cost(uint64(delta)))
		if out.Required.Gt(deposit) {
			e := &InsufficientPaymentError{}
			e.Required.Set(&out.Required)
			e.Attached.Set(deposit)
			return Settlement{}, e
		}
		out.Refund.Sub(deposit, &out.Required)
	} else {
		out.Refund.Add(deposit, s.Cost(uint64(-delta)))
	}

	if !out.Refund.Gt(&s.refundFloor) {
		out.Refund.Clear()
	}
	return out, nil
}
