package coordinator

import "github.com/swptgo/paycoord/internal/storage/paymentsdb"

// OrderState is the lifecycle state of a payment order. It is derived
// from field presence and never stored.
type OrderState int

const (
	// StateNeedsPrimary waits for the payer's transfer to be prepared.
	StateNeedsPrimary OrderState = iota
	// StateNeedsReciprocal waits for the payee's reciprocal transfer.
	StateNeedsReciprocal
	// StateReadyToCommit has every requested transfer leg secured.
	StateReadyToCommit
	// StateFinalized is terminal.
	StateFinalized
)

// String implements fmt.Stringer.
func (s OrderState) String() string {
	switch s {
	case StateNeedsPrimary:
		return "needs-primary"
	case StateNeedsReciprocal:
		return "needs-reciprocal"
	case StateReadyToCommit:
		return "ready-to-commit"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// StateOf derives the lifecycle state of an order. A transfer slot
// participates only when its leg moves a positive amount: zero-amount
// legs are never requested and count as secured from the start.
func StateOf(order *paymentsdb.PaymentOrder) OrderState {
	switch {
	case order.Finalized():
		return StateFinalized
	case order.PaymentTransferID == nil && order.Amount > 0:
		return StateNeedsPrimary
	case order.ReciprocalTransferID == nil && order.ReciprocalAmount > 0:
		return StateNeedsReciprocal
	default:
		return StateReadyToCommit
	}
}
