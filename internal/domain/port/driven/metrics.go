package driven

import (
	"time"

	"github.com/holiman/uint256"
)

// Metrics receives operational measurements from the application layer.
type Metrics interface {
	ObserveCall(op, outcome string, elapsed time.Duration)
	ObserveStorage(op string, deltaBytes int64)
	ObserveRefund(reason string, amount *uint256.Int)
}
