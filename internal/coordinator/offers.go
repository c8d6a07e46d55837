package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/secrets"
	"github.com/swptgo/paycoord/internal/signals"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// CreateOfferArgs carries the content of a create_offer message.
// DebtorIDs and DebtorAmounts pair up by position: the offer can be
// paid with DebtorAmounts[i] through DebtorIDs[i].
type CreateOfferArgs struct {
	PayeeID            int64
	AnnouncementID     int64
	DebtorIDs          []int64
	DebtorAmounts      []int64
	ValidUntil         time.Time
	Description        json.RawMessage
	ReciprocalDebtorID *int64
	ReciprocalAmount   int64
}

func (a *CreateOfferArgs) validate() error {
	if len(a.DebtorIDs) != len(a.DebtorAmounts) {
		return fmt.Errorf("%w: debtor_ids and debtor_amounts must have the same length", ErrInvalidRequest)
	}
	for _, amount := range a.DebtorAmounts {
		if amount < 0 {
			return fmt.Errorf("%w: negative debtor amount %d", ErrInvalidRequest, amount)
		}
	}
	if a.ReciprocalAmount < 0 {
		return fmt.Errorf("%w: negative reciprocal amount %d", ErrInvalidRequest, a.ReciprocalAmount)
	}
	if docPresent(a.Description) == (a.ReciprocalDebtorID != nil) {
		return fmt.Errorf("%w: exactly one of description and reciprocal_debtor_id must be given", ErrInvalidRequest)
	}
	if a.ReciprocalDebtorID == nil && a.ReciprocalAmount != 0 {
		return fmt.Errorf("%w: reciprocal_amount without reciprocal_debtor_id", ErrInvalidRequest)
	}
	if a.ValidUntil.IsZero() {
		return fmt.Errorf("%w: valid_until is required", ErrInvalidRequest)
	}
	return nil
}

// CreateOffer registers a new formal offer and announces it with a
// CreatedOffer signal. The returned offer carries the store-assigned
// offer id and the generated offer secret.
func (c *Coordinator) CreateOffer(ctx context.Context, args CreateOfferArgs) (*paymentsdb.Offer, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}

	secret, err := c.newSecret(offerSecretSize)
	if err != nil {
		return nil, err
	}

	var description json.RawMessage
	if docPresent(args.Description) {
		description = args.Description
	}
	offer := &paymentsdb.Offer{
		PayeeID:            args.PayeeID,
		OfferSecret:        secret,
		DebtorIDs:          args.DebtorIDs,
		DebtorAmounts:      args.DebtorAmounts,
		ValidUntil:         args.ValidUntil.UTC(),
		Description:        description,
		ReciprocalDebtorID: args.ReciprocalDebtorID,
		ReciprocalAmount:   args.ReciprocalAmount,
		CreatedAt:          c.now().UTC(),
	}

	err = c.store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		if err := tx.Offers().Create(ctx, offer); err != nil {
			return err
		}
		return c.emit(ctx, tx, signals.TypeCreatedOffer, offer.PayeeID, signals.CreatedOffer{
			PayeeID:        offer.PayeeID,
			OfferID:        offer.OfferID,
			AnnouncementID: args.AnnouncementID,
			OfferSecret:    signals.Secret(offer.OfferSecret),
			CreatedAt:      offer.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("offer created",
		zap.Int64("payee_id", offer.PayeeID),
		zap.Int64("offer_id", offer.OfferID))
	return offer, nil
}

// CancelOffer withdraws an offer: every live payment order against it
// is aborted, a CanceledOffer signal is emitted and the offer row is
// deleted. Unknown offer ids and wrong secrets are silently ignored so
// that redelivered cancel messages stay harmless.
func (c *Coordinator) CancelOffer(ctx context.Context, payeeID, offerID int64, offerSecret []byte) error {
	return c.store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		offer, err := tx.Offers().Get(ctx, payeeID, offerID, paymentsdb.LockExclusive)
		if err != nil {
			return err
		}
		if offer == nil || !secrets.Equal(offer.OfferSecret, offerSecret) {
			return nil
		}

		orders, err := tx.Orders().ListLiveByOffer(ctx, payeeID, offerID, paymentsdb.LockExclusive)
		if err != nil {
			return err
		}
		details := newFailureDetails(CodeOfferCanceled, "the offer has been canceled")
		for _, order := range orders {
			if err := c.abortOrder(ctx, tx, order, details); err != nil {
				return err
			}
		}

		if err := c.emit(ctx, tx, signals.TypeCanceledOffer, payeeID, signals.CanceledOffer{
			PayeeID: payeeID,
			OfferID: offerID,
		}); err != nil {
			return err
		}
		if err := tx.Offers().Delete(ctx, payeeID, offerID); err != nil {
			return err
		}

		c.log.Info("offer canceled",
			zap.Int64("payee_id", payeeID),
			zap.Int64("offer_id", offerID),
			zap.Int("aborted_orders", len(orders)))
		return nil
	})
}

// GetOffer returns the offer when both the id and the secret match,
// and nil otherwise. The secret comparison is constant-time.
func (c *Coordinator) GetOffer(ctx context.Context, payeeID, offerID int64, offerSecret []byte) (*paymentsdb.Offer, error) {
	offer, err := c.store.Offers().Get(ctx, payeeID, offerID, paymentsdb.LockNone)
	if err != nil {
		return nil, err
	}
	if offer == nil || !secrets.Equal(offer.OfferSecret, offerSecret) {
		return nil, nil
	}
	return offer, nil
}

// GetProof returns the payment proof when both the id and the secret
// match, and nil otherwise. The secret comparison is constant-time.
func (c *Coordinator) GetProof(ctx context.Context, payeeID, proofID int64, proofSecret []byte) (*paymentsdb.PaymentProof, error) {
	proof, err := c.store.Proofs().Get(ctx, payeeID, proofID)
	if err != nil {
		return nil, err
	}
	if proof == nil || !secrets.Equal(proof.ProofSecret, proofSecret) {
		return nil, nil
	}
	return proof, nil
}
