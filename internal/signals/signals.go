// Package signals defines the messages the coordinator publishes and
// the helpers that turn them into outbound signal log rows.
package signals

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// Signal types double as routing keys on the outgoing exchange.
const (
	TypeCreatedOffer             = "created_offer"
	TypeCanceledOffer            = "canceled_offer"
	TypePrepareTransfer          = "prepare_transfer"
	TypeFinalizePreparedTransfer = "finalize_prepared_transfer"
	TypeSuccessfulPayment        = "successful_payment"
	TypeFailedPayment            = "failed_payment"
)

// CoordinatorType marks this service's transfers at the accounts
// service. Prepared and rejected transfer signals carrying any other
// coordinator type are not ours and must never be acted upon.
const CoordinatorType = "payment"

// Legs of a payment order.
const (
	LegPrimary    = "primary"
	LegReciprocal = "reciprocal"
)

// Secret is a byte secret that travels base64url-encoded in JSON.
type Secret []byte

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.URLEncoding.EncodeToString(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// CreatedOffer announces a newly created offer to its payee. The
// announcement id is echoed from the create_offer message so the payee
// can correlate the two.
type CreatedOffer struct {
	PayeeID        int64     `json:"payee_id"`
	OfferID        int64     `json:"offer_id"`
	AnnouncementID int64     `json:"announcement_id"`
	OfferSecret    Secret    `json:"offer_secret"`
	CreatedAt      time.Time `json:"created_at_ts"`
}

// CanceledOffer announces that an offer was withdrawn by its payee.
type CanceledOffer struct {
	PayeeID int64 `json:"payee_id"`
	OfferID int64 `json:"offer_id"`
}

// PrepareTransfer asks the accounts service to secure one transfer
// leg. The reciprocal leg of an order travels with the negated
// coordinator request id.
type PrepareTransfer struct {
	CoordinatorType      string `json:"coordinator_type"`
	CoordinatorID        int64  `json:"coordinator_id"`
	CoordinatorRequestID int64  `json:"coordinator_request_id"`
	DebtorID             int64  `json:"debtor_id"`
	SenderID             int64  `json:"sender_id"`
	RecipientID          int64  `json:"recipient_id"`
	Amount               int64  `json:"amount"`
}

// TransferInfo rides along committing finalizations so account records
// can refer back to the offer and the leg they settle.
type TransferInfo struct {
	OfferID int64  `json:"offer_id"`
	Leg     string `json:"leg"`
}

// FinalizePreparedTransfer commits (CommittedAmount > 0) or releases
// (CommittedAmount == 0) a prepared transfer.
type FinalizePreparedTransfer struct {
	DebtorID        int64         `json:"debtor_id"`
	SenderID        int64         `json:"sender_id"`
	TransferID      int64         `json:"transfer_id"`
	CommittedAmount int64         `json:"committed_amount"`
	TransferInfo    *TransferInfo `json:"transfer_info"`
}

// SuccessfulPayment tells the payee and the payer that an order went
// through. ProofID locates the payment proof; the payer already holds
// the proof secret it chose when placing the order.
type SuccessfulPayment struct {
	PayeeID            int64           `json:"payee_id"`
	OfferID            int64           `json:"offer_id"`
	PayerID            int64           `json:"payer_id"`
	PayerSeqnum        int32           `json:"payer_seqnum"`
	DebtorID           int64           `json:"debtor_id"`
	Amount             int64           `json:"amount"`
	PayerNote          json.RawMessage `json:"payer_note"`
	ReciprocalDebtorID *int64          `json:"reciprocal_debtor_id"`
	ReciprocalAmount   int64           `json:"reciprocal_amount"`
	PaidAt             time.Time       `json:"paid_at_ts"`
	ProofID            int64           `json:"proof_id"`
}

// FailedPayment tells the payer and the payee that an order failed.
// Details is either one of this service's error documents or the
// accounts service's rejection document passed through unchanged.
type FailedPayment struct {
	PayeeID     int64           `json:"payee_id"`
	OfferID     int64           `json:"offer_id"`
	PayerID     int64           `json:"payer_id"`
	PayerSeqnum int32           `json:"payer_seqnum"`
	Details     json.RawMessage `json:"details"`
}

// NewRow wraps a signal payload into an outbound signal log row,
// stamping a fresh message id.
func NewRow(signalType string, payeeID int64, payload any, at time.Time) (*paymentsdb.OutboundSignal, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &paymentsdb.OutboundSignal{
		MessageID:  uuid.NewString(),
		SignalType: signalType,
		PayeeID:    payeeID,
		Payload:    body,
		InsertedAt: at,
	}, nil
}
