package coordinator

import (
	"encoding/json"
	"errors"
)

// Failure codes carried in the details document of FailedPayment
// signals. The accounts service's own rejection codes pass through
// FailedPayment unchanged, so payers may also see codes not listed
// here.
const (
	// CodeOfferNotFound: the offer does not exist or the offer secret
	// is wrong.
	CodeOfferNotFound = "PAY001"
	// CodeWrongDebtor: the debtor is not announced by the offer.
	CodeWrongDebtor = "PAY002"
	// CodeWrongAmount: the amount does not match the debtor's
	// announced amount.
	CodeWrongAmount = "PAY003"
	// CodeOfferCanceled: the offer was canceled while the order was
	// live.
	CodeOfferCanceled = "PAY004"
	// CodeReciprocalFailed: the reciprocal transfer could not be
	// prepared.
	CodeReciprocalFailed = "PAY005"
	// CodeOfferExpired: the offer had expired when the order arrived.
	CodeOfferExpired = "PAY006"
	// CodeOfferPaid: a competing order paid the offer first.
	CodeOfferPaid = "OFFER_PAID"
)

// Errors returned to the message consumer. They mark deliveries whose
// content breaks the message contract; retrying such a delivery can
// never succeed, so the consumer routes it to the dead-letter queue.
var (
	// ErrInvalidRequest marks messages with malformed or out-of-range
	// content.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrWrongCoordinatorType marks transfer signals that belong to a
	// different coordinator service.
	ErrWrongCoordinatorType = errors.New("foreign coordinator type")

	// ErrMismatchedTransfer marks prepared transfer signals that name
	// an order but do not match the leg they claim to secure.
	ErrMismatchedTransfer = errors.New("prepared transfer does not match the order")
)

// failureDetails is the error document this service itself produces.
type failureDetails struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func newFailureDetails(code, message string) json.RawMessage {
	raw, err := json.Marshal(failureDetails{ErrorCode: code, Message: message})
	if err != nil {
		panic(err)
	}
	return raw
}
