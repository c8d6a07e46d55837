package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/swptgo/paycoord/internal/signals"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// PreparedTransferArgs carries the content of an
// on_prepared_payment_transfer_signal message from the accounts
// service.
type PreparedTransferArgs struct {
	DebtorID             int64
	SenderID             int64
	TransferID           int64
	CoordinatorType      string
	CoordinatorID        int64
	CoordinatorRequestID int64
	RecipientID          int64
	SenderLockedAmount   int64
	PreparedAt           time.Time
}

// RejectedTransferArgs carries the content of an
// on_rejected_payment_transfer_signal message from the accounts
// service.
type RejectedTransferArgs struct {
	CoordinatorType      string
	CoordinatorID        int64
	CoordinatorRequestID int64
	Details              json.RawMessage
}

// splitRequestID recovers the stored request id and the leg from a
// signed coordinator request id: the primary leg travels as +id, the
// reciprocal leg as -id.
func splitRequestID(signed int64) (requestID int64, reciprocal bool, err error) {
	switch {
	case signed > 0:
		return signed, false, nil
	case signed < 0 && signed != math.MinInt64:
		return -signed, true, nil
	default:
		return 0, false, fmt.Errorf("%w: coordinator_request_id %d", ErrInvalidRequest, signed)
	}
}

// OnPreparedTransfer reacts to the accounts service securing one
// transfer leg. Prepared transfers that no live order is waiting for
// are released right away with a zero-amount finalization, so the
// accounts service never stays locked on our behalf.
func (c *Coordinator) OnPreparedTransfer(ctx context.Context, args PreparedTransferArgs) error {
	if args.CoordinatorType != signals.CoordinatorType {
		return fmt.Errorf("%w: %q", ErrWrongCoordinatorType, args.CoordinatorType)
	}
	requestID, reciprocal, err := splitRequestID(args.CoordinatorRequestID)
	if err != nil {
		return err
	}

	return c.store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		order, err := tx.Orders().GetByRequestID(ctx, args.CoordinatorID, requestID, paymentsdb.LockExclusive)
		if err != nil {
			return err
		}
		if order == nil || order.Finalized() {
			return c.releasePrepared(ctx, tx, args)
		}

		slot := order.PaymentTransferID
		if reciprocal {
			slot = order.ReciprocalTransferID
		}
		if slot != nil {
			if *slot == args.TransferID {
				return nil
			}
			return c.releasePrepared(ctx, tx, args)
		}

		if err := checkPreparedLeg(order, &args, reciprocal); err != nil {
			return err
		}

		if reciprocal {
			order.ReciprocalTransferID = &args.TransferID
		} else {
			order.PaymentTransferID = &args.TransferID
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		return c.advanceOrder(ctx, tx, order)
	})
}

// checkPreparedLeg verifies that a prepared transfer carries exactly
// the parties and amount of the leg it claims to secure. A prepared
// transfer that names an order but does not match it indicates a
// protocol violation at the accounts service.
func checkPreparedLeg(order *paymentsdb.PaymentOrder, args *PreparedTransferArgs, reciprocal bool) error {
	var ok bool
	if reciprocal {
		ok = order.ReciprocalDebtorID != nil &&
			order.ReciprocalAmount > 0 &&
			args.DebtorID == *order.ReciprocalDebtorID &&
			args.SenderID == order.PayeeID &&
			args.RecipientID == order.PayerID &&
			args.SenderLockedAmount == order.ReciprocalAmount
	} else {
		ok = order.Amount > 0 &&
			args.DebtorID == order.DebtorID &&
			args.SenderID == order.PayerID &&
			args.RecipientID == order.PayeeID &&
			args.SenderLockedAmount == order.Amount
	}
	if !ok {
		return fmt.Errorf("%w: transfer %d against order %d/%d",
			ErrMismatchedTransfer, args.TransferID, order.PayeeID, order.CoordinatorRequestID)
	}
	return nil
}

// releasePrepared dismisses a prepared transfer nothing is waiting for.
func (c *Coordinator) releasePrepared(ctx context.Context, tx paymentsdb.TransactionContext, args PreparedTransferArgs) error {
	return c.emit(ctx, tx, signals.TypeFinalizePreparedTransfer, args.CoordinatorID, signals.FinalizePreparedTransfer{
		DebtorID:   args.DebtorID,
		SenderID:   args.SenderID,
		TransferID: args.TransferID,
	})
}

// OnRejectedTransfer reacts to the accounts service refusing to
// prepare a transfer leg. A rejected primary leg aborts the order with
// the accounts service's details passed through; a rejected reciprocal
// leg aborts it with this service's own details, releasing whatever
// the primary leg had already secured. Rejections naming no live order
// are ignored.
func (c *Coordinator) OnRejectedTransfer(ctx context.Context, args RejectedTransferArgs) error {
	if args.CoordinatorType != signals.CoordinatorType {
		return fmt.Errorf("%w: %q", ErrWrongCoordinatorType, args.CoordinatorType)
	}
	requestID, reciprocal, err := splitRequestID(args.CoordinatorRequestID)
	if err != nil {
		return err
	}

	return c.store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		order, err := tx.Orders().GetByRequestID(ctx, args.CoordinatorID, requestID, paymentsdb.LockExclusive)
		if err != nil {
			return err
		}
		if order == nil || order.Finalized() {
			return nil
		}

		var details json.RawMessage
		switch {
		case reciprocal:
			details = newFailureDetails(CodeReciprocalFailed, "the reciprocal transfer could not be prepared")
		case docPresent(args.Details):
			details = args.Details
		}
		return c.abortOrder(ctx, tx, order, details)
	})
}
