package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/swptgo/paycoord/internal/coordinator"
	"github.com/swptgo/paycoord/internal/signals"
)

// Inbound routing keys, named after the operation the message invokes.
const (
	KeyCreateOffer            = "create_offer"
	KeyCancelOffer            = "cancel_offer"
	KeyMakePaymentOrder       = "make_payment_order"
	KeyPreparedTransferSignal = "on_prepared_payment_transfer_signal"
	KeyRejectedTransferSignal = "on_rejected_payment_transfer_signal"
)

// createOfferMessage is the payload of a create_offer message.
type createOfferMessage struct {
	PayeeID            int64           `json:"payee_id"`
	AnnouncementID     int64           `json:"announcement_id"`
	DebtorIDs          []int64         `json:"debtor_ids"`
	DebtorAmounts      []int64         `json:"debtor_amounts"`
	ValidUntil         time.Time       `json:"valid_until"`
	Description        json.RawMessage `json:"description"`
	ReciprocalDebtorID *int64          `json:"reciprocal_debtor_id"`
	ReciprocalAmount   int64           `json:"reciprocal_amount"`
}

// cancelOfferMessage is the payload of a cancel_offer message.
type cancelOfferMessage struct {
	PayeeID     int64          `json:"payee_id"`
	OfferID     int64          `json:"offer_id"`
	OfferSecret signals.Secret `json:"offer_secret"`
}

// makePaymentOrderMessage is the payload of a make_payment_order
// message.
type makePaymentOrderMessage struct {
	PayeeID     int64           `json:"payee_id"`
	OfferID     int64           `json:"offer_id"`
	OfferSecret signals.Secret  `json:"offer_secret"`
	PayerID     int64           `json:"payer_id"`
	PayerSeqnum int32           `json:"payer_seqnum"`
	DebtorID    int64           `json:"debtor_id"`
	Amount      int64           `json:"amount"`
	ProofSecret signals.Secret  `json:"proof_secret"`
	PayerNote   json.RawMessage `json:"payer_note"`
}

// preparedTransferMessage is the payload of an
// on_prepared_payment_transfer_signal message.
type preparedTransferMessage struct {
	DebtorID             int64     `json:"debtor_id"`
	SenderID             int64     `json:"sender_id"`
	TransferID           int64     `json:"transfer_id"`
	CoordinatorType      string    `json:"coordinator_type"`
	RecipientID          int64     `json:"recipient_id"`
	SenderLockedAmount   int64     `json:"sender_locked_amount"`
	PreparedAt           time.Time `json:"prepared_at_ts"`
	CoordinatorID        int64     `json:"coordinator_id"`
	CoordinatorRequestID int64     `json:"coordinator_request_id"`
}

// rejectedTransferMessage is the payload of an
// on_rejected_payment_transfer_signal message.
type rejectedTransferMessage struct {
	CoordinatorType      string          `json:"coordinator_type"`
	CoordinatorID        int64           `json:"coordinator_id"`
	CoordinatorRequestID int64           `json:"coordinator_request_id"`
	Details              json.RawMessage `json:"details"`
}

// decode unmarshals a payload strictly: unknown routing keys and
// malformed bodies are permanent failures.
func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", coordinator.ErrInvalidRequest, err)
	}
	return nil
}
