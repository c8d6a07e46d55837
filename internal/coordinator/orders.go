package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/secrets"
	"github.com/swptgo/paycoord/internal/signals"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// MakePaymentOrderArgs carries the content of a make_payment_order
// message. The (PayeeID, OfferID, PayerID, PayerSeqnum) four-tuple
// identifies the order across redeliveries.
type MakePaymentOrderArgs struct {
	PayeeID     int64
	OfferID     int64
	OfferSecret []byte
	PayerID     int64
	PayerSeqnum int32
	DebtorID    int64
	Amount      int64
	ProofSecret []byte
	PayerNote   json.RawMessage
}

func (a *MakePaymentOrderArgs) validate() error {
	if a.Amount < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInvalidRequest, a.Amount)
	}
	if len(a.ProofSecret) == 0 {
		return fmt.Errorf("%w: proof_secret is required", ErrInvalidRequest)
	}
	if !docPresent(a.PayerNote) {
		return fmt.Errorf("%w: payer_note is required", ErrInvalidRequest)
	}
	return nil
}

// MakePaymentOrder opens a payment order against an offer and starts
// securing its transfer legs. Redeliveries of an already known order
// are no-ops. An order that fails validation against the offer emits a
// FailedPayment signal without creating a row; an order against an
// expired offer is recorded already finalized, so that redeliveries
// find it and stay silent.
func (c *Coordinator) MakePaymentOrder(ctx context.Context, args MakePaymentOrderArgs) error {
	if err := args.validate(); err != nil {
		return err
	}

	return c.store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		existing, err := tx.Orders().Get(ctx, args.PayeeID, args.OfferID, args.PayerID, args.PayerSeqnum, paymentsdb.LockNone)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		offer, err := tx.Offers().Get(ctx, args.PayeeID, args.OfferID, paymentsdb.LockShared)
		if err != nil {
			return err
		}
		if details := checkOrderAgainstOffer(offer, &args); details != nil {
			return c.emitFailedPayment(ctx, tx, args.PayeeID, args.OfferID, args.PayerID, args.PayerSeqnum, details)
		}

		requestID, err := tx.NextCoordinatorRequestID(ctx)
		if err != nil {
			return err
		}
		order := &paymentsdb.PaymentOrder{
			PayeeID:              args.PayeeID,
			OfferID:              args.OfferID,
			PayerID:              args.PayerID,
			PayerSeqnum:          args.PayerSeqnum,
			CoordinatorRequestID: requestID,
			DebtorID:             args.DebtorID,
			Amount:               args.Amount,
			ReciprocalDebtorID:   offer.ReciprocalDebtorID,
			ReciprocalAmount:     offer.ReciprocalAmount,
			PayerNote:            args.PayerNote,
			ProofSecret:          args.ProofSecret,
		}

		if c.now().UTC().After(offer.ValidUntil) {
			now := c.now().UTC()
			order.PayerNote = nil
			order.ProofSecret = nil
			order.FinalizedAt = &now
			if err := tx.Orders().Create(ctx, order); err != nil {
				if errors.Is(err, paymentsdb.ErrDuplicateOrder) {
					return nil
				}
				return err
			}
			return c.emitFailedPayment(ctx, tx, args.PayeeID, args.OfferID, args.PayerID, args.PayerSeqnum,
				newFailureDetails(CodeOfferExpired, "the offer has expired"))
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			if errors.Is(err, paymentsdb.ErrDuplicateOrder) {
				return nil
			}
			return err
		}
		return c.advanceOrder(ctx, tx, order)
	})
}

// checkOrderAgainstOffer validates a payment order request against the
// offer it names. A nil result means the request may proceed;
// otherwise the result is the failure details document to report.
func checkOrderAgainstOffer(offer *paymentsdb.Offer, args *MakePaymentOrderArgs) json.RawMessage {
	if offer == nil || !secrets.Equal(offer.OfferSecret, args.OfferSecret) {
		return newFailureDetails(CodeOfferNotFound, "the offer does not exist or the offer secret is wrong")
	}
	routeFound := false
	for i, debtorID := range offer.DebtorIDs {
		if debtorID != args.DebtorID {
			continue
		}
		routeFound = true
		if sanitizeAmount(offer.DebtorAmounts[i]) == args.Amount {
			return nil
		}
	}
	if !routeFound {
		return newFailureDetails(CodeWrongDebtor, "the debtor is not announced by the offer")
	}
	return newFailureDetails(CodeWrongAmount, "the amount does not match the announced amount")
}

// sanitizeAmount clamps announced amounts into the valid transfer
// range: announcements below zero behave as zero.
func sanitizeAmount(amount int64) int64 {
	if amount < 0 {
		return 0
	}
	return amount
}

// advanceOrder runs the order state machine one step: it requests the
// next missing transfer leg, or commits when every requested leg is
// secured. The caller must have created the order in this transaction
// or hold an exclusive lock on its row.
func (c *Coordinator) advanceOrder(ctx context.Context, tx paymentsdb.TransactionContext, order *paymentsdb.PaymentOrder) error {
	switch StateOf(order) {
	case StateNeedsPrimary:
		return c.emit(ctx, tx, signals.TypePrepareTransfer, order.PayeeID, signals.PrepareTransfer{
			CoordinatorType:      signals.CoordinatorType,
			CoordinatorID:        order.PayeeID,
			CoordinatorRequestID: order.CoordinatorRequestID,
			DebtorID:             order.DebtorID,
			SenderID:             order.PayerID,
			RecipientID:          order.PayeeID,
			Amount:               order.Amount,
		})
	case StateNeedsReciprocal:
		return c.emit(ctx, tx, signals.TypePrepareTransfer, order.PayeeID, signals.PrepareTransfer{
			CoordinatorType:      signals.CoordinatorType,
			CoordinatorID:        order.PayeeID,
			CoordinatorRequestID: -order.CoordinatorRequestID,
			DebtorID:             *order.ReciprocalDebtorID,
			SenderID:             order.PayeeID,
			RecipientID:          order.PayerID,
			Amount:               order.ReciprocalAmount,
		})
	case StateReadyToCommit:
		return c.commitOrder(ctx, tx, order)
	default:
		return nil
	}
}

// commitOrder settles a fully secured order: it commits the prepared
// transfers, snapshots a payment proof, finalizes the order, aborts
// every competing live order, announces the success and deletes the
// offer.
func (c *Coordinator) commitOrder(ctx context.Context, tx paymentsdb.TransactionContext, order *paymentsdb.PaymentOrder) error {
	offer, err := tx.Offers().Get(ctx, order.PayeeID, order.OfferID, paymentsdb.LockExclusive)
	if err != nil {
		return err
	}
	if offer == nil {
		// A live order guarantees its offer row: creating an order
		// requires the offer, and cancel and commit both finalize
		// every live order before deleting it.
		return fmt.Errorf("order %d/%d: offer %d is gone", order.PayeeID, order.CoordinatorRequestID, order.OfferID)
	}

	now := c.now().UTC()

	if order.PaymentTransferID != nil {
		if err := c.emit(ctx, tx, signals.TypeFinalizePreparedTransfer, order.PayeeID, signals.FinalizePreparedTransfer{
			DebtorID:        order.DebtorID,
			SenderID:        order.PayerID,
			TransferID:      *order.PaymentTransferID,
			CommittedAmount: order.Amount,
			TransferInfo:    &signals.TransferInfo{OfferID: order.OfferID, Leg: signals.LegPrimary},
		}); err != nil {
			return err
		}
	}
	if order.ReciprocalTransferID != nil {
		if err := c.emit(ctx, tx, signals.TypeFinalizePreparedTransfer, order.PayeeID, signals.FinalizePreparedTransfer{
			DebtorID:        *order.ReciprocalDebtorID,
			SenderID:        order.PayeeID,
			TransferID:      *order.ReciprocalTransferID,
			CommittedAmount: order.ReciprocalAmount,
			TransferInfo:    &signals.TransferInfo{OfferID: order.OfferID, Leg: signals.LegReciprocal},
		}); err != nil {
			return err
		}
	}

	proof := &paymentsdb.PaymentProof{
		PayeeID:            order.PayeeID,
		ProofSecret:        order.ProofSecret,
		PayerID:            order.PayerID,
		DebtorID:           order.DebtorID,
		Amount:             order.Amount,
		PayerNote:          order.PayerNote,
		ReciprocalDebtorID: order.ReciprocalDebtorID,
		ReciprocalAmount:   order.ReciprocalAmount,
		PaidAt:             now,
		OfferID:            offer.OfferID,
		OfferCreatedAt:     offer.CreatedAt,
		OfferDescription:   offer.Description,
	}
	if err := tx.Proofs().Create(ctx, proof); err != nil {
		return err
	}

	order.FinalizedAt = &now
	order.PayerNote = nil
	order.ProofSecret = nil
	if err := tx.Orders().Update(ctx, order); err != nil {
		return err
	}

	competitors, err := tx.Orders().ListLiveByOffer(ctx, order.PayeeID, order.OfferID, paymentsdb.LockExclusive)
	if err != nil {
		return err
	}
	details := newFailureDetails(CodeOfferPaid, "the offer has been paid by a competing order")
	for _, competitor := range competitors {
		if err := c.abortOrder(ctx, tx, competitor, details); err != nil {
			return err
		}
	}

	if err := c.emit(ctx, tx, signals.TypeSuccessfulPayment, order.PayeeID, signals.SuccessfulPayment{
		PayeeID:            order.PayeeID,
		OfferID:            order.OfferID,
		PayerID:            order.PayerID,
		PayerSeqnum:        order.PayerSeqnum,
		DebtorID:           order.DebtorID,
		Amount:             order.Amount,
		PayerNote:          proof.PayerNote,
		ReciprocalDebtorID: order.ReciprocalDebtorID,
		ReciprocalAmount:   order.ReciprocalAmount,
		PaidAt:             now,
		ProofID:            proof.ProofID,
	}); err != nil {
		return err
	}
	if err := tx.Offers().Delete(ctx, order.PayeeID, order.OfferID); err != nil {
		return err
	}

	c.log.Info("payment committed",
		zap.Int64("payee_id", order.PayeeID),
		zap.Int64("offer_id", order.OfferID),
		zap.Int64("payer_id", order.PayerID),
		zap.Int64("proof_id", proof.ProofID),
		zap.Int("aborted_competitors", len(competitors)))
	return nil
}

// abortOrder finalizes a live order as failed: every secured transfer
// leg is released with a zero-amount finalization and a FailedPayment
// signal carrying details is emitted.
func (c *Coordinator) abortOrder(ctx context.Context, tx paymentsdb.TransactionContext, order *paymentsdb.PaymentOrder, details json.RawMessage) error {
	if order.PaymentTransferID != nil {
		if err := c.emit(ctx, tx, signals.TypeFinalizePreparedTransfer, order.PayeeID, signals.FinalizePreparedTransfer{
			DebtorID:   order.DebtorID,
			SenderID:   order.PayerID,
			TransferID: *order.PaymentTransferID,
		}); err != nil {
			return err
		}
	}
	if order.ReciprocalTransferID != nil {
		if err := c.emit(ctx, tx, signals.TypeFinalizePreparedTransfer, order.PayeeID, signals.FinalizePreparedTransfer{
			DebtorID:   *order.ReciprocalDebtorID,
			SenderID:   order.PayeeID,
			TransferID: *order.ReciprocalTransferID,
		}); err != nil {
			return err
		}
	}

	now := c.now().UTC()
	order.FinalizedAt = &now
	order.PayerNote = nil
	order.ProofSecret = nil
	if err := tx.Orders().Update(ctx, order); err != nil {
		return err
	}
	return c.emitFailedPayment(ctx, tx, order.PayeeID, order.OfferID, order.PayerID, order.PayerSeqnum, details)
}
