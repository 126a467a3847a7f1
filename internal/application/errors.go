package application

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

var (
	// ErrNoDeposit is returned by Add when the call carries no deposit.
	ErrNoDeposit = errors.New("requires attached deposit of at least 1 unit")

	// ErrUnknownUser is returned when a user has no index entry.
	ErrUnknownUser = errors.New("unknown user")

	// ErrAccountNotFound is returned by Remove when the id is not in the user's set.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCorruptState is returned when persisted bytes cannot be parsed or the
	// two indexes disagree.
	ErrCorruptState = errors.New("corrupt state")

	// ErrOwnerMismatch is returned by Initialize when the store already
	// belongs to a different owning system.
	ErrOwnerMismatch = errors.New("store initialized by a different owner")
)

// InsufficientPaymentError reports that the attached deposit did not cover
// the storage consumed by the call. The mutation has been rolled back.
type InsufficientPaymentError struct {
	Required uint256.Int
	Attached uint256.Int
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("must attach %s units to cover storage (attached %s)", e.Required.Dec(), e.Attached.Dec())
}

// Shortfall returns Required - Attached.
func (e *InsufficientPaymentError) Shortfall() *uint256.Int {
	return new(uint256.Int).Sub(&e.Required, &e.Attached)
}

// Kind classifies errors for driving adapters.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindPayment
	KindNotFound
	KindEncoding
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPayment:
		return "payment"
	case KindNotFound:
		return "not_found"
	case KindEncoding:
		return "encoding"
	default:
		return "internal"
	}
}

// KindOf maps err onto the error taxonomy. Unrecognised errors are internal.
func KindOf(err error) Kind {
	var payErr *InsufficientPaymentError
	switch {
	case errors.Is(err, ErrNoDeposit):
		return KindValidation
	case errors.As(err, &payErr):
		return KindPayment
	case errors.Is(err, ErrUnknownUser), errors.Is(err, ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, driven.ErrMalformedEncoding), errors.Is(err, driven.ErrInvalidUTF8):
		return KindEncoding
	default:
		return KindInternal
	}
}
