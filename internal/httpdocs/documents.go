// Package httpdocs serves the read-only JSON-LD documents behind the
// offer and proof capability URLs. Whoever holds a URL, holds the
// secret embedded in it; there is no other authentication.
package httpdocs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

const (
	debtorPath  = "/debtors/%d"
	payeePath   = "/creditors/%d"
	contextPath = "/contexts/%s"
	offerPath   = "/formal-offers/%d/%d/%s"
	proofPath   = "/payment-proofs/%d/%d/%s"
)

// paymentDescription is one accepted payment route of an offer, or
// its reciprocal payment.
type paymentDescription struct {
	Context string `json:"@context"`
	Type    string `json:"@type"`
	Via     string `json:"via"`
	Amount  int64  `json:"amount"`
}

// offerDocument is the JSON-LD rendering of a formal offer.
type offerDocument struct {
	ID                string               `json:"@id"`
	Type              string               `json:"@type"`
	Context           string               `json:"@context"`
	OfferID           int64                `json:"offerId"`
	OfferCreatedAt    string               `json:"offerCreatedAt"`
	OfferValidUntil   string               `json:"offerValidUntil"`
	OfferDescription  json.RawMessage      `json:"offerDescription,omitempty"`
	Payee             string               `json:"payee"`
	PaymentOptions    []paymentDescription `json:"paymentOptions"`
	ReciprocalPayment *paymentDescription  `json:"reciprocalPayment,omitempty"`
}

// proofDocument is the JSON-LD rendering of a payment proof.
type proofDocument struct {
	ID                string              `json:"@id"`
	Type              string              `json:"@type"`
	Context           string              `json:"@context"`
	PaidAmount        int64               `json:"paidAmount"`
	PaidAt            string              `json:"paidAt"`
	PaidVia           string              `json:"paidVia"`
	PayerNote         json.RawMessage     `json:"payerNote,omitempty"`
	OfferID           int64               `json:"offerId"`
	OfferDescription  json.RawMessage     `json:"offerDescription,omitempty"`
	OfferCreatedAt    string              `json:"offerCreatedAt"`
	Payee             string              `json:"payee"`
	Payer             string              `json:"payer"`
	ReciprocalPayment *paymentDescription `json:"reciprocalPayment,omitempty"`
}

func newPaymentDescription(debtorID, amount int64) paymentDescription {
	return paymentDescription{
		Context: fmt.Sprintf(contextPath, "PaymentDescription.jsonld"),
		Type:    "PaymentDescription",
		Via:     fmt.Sprintf(debtorPath, debtorID),
		Amount:  amount,
	}
}

func reciprocalPayment(debtorID *int64, amount int64) *paymentDescription {
	if debtorID == nil {
		return nil
	}
	d := newPaymentDescription(*debtorID, amount)
	return &d
}

func encodeSecret(secret []byte) string {
	return base64.URLEncoding.EncodeToString(secret)
}

func newOfferDocument(offer *paymentsdb.Offer) *offerDocument {
	options := make([]paymentDescription, 0, len(offer.DebtorIDs))
	for i, debtorID := range offer.DebtorIDs {
		amount := offer.DebtorAmounts[i]
		if amount < 0 {
			amount = 0
		}
		options = append(options, newPaymentDescription(debtorID, amount))
	}

	var reciprocal *paymentDescription
	if offer.IsSwap() {
		d := newPaymentDescription(*offer.ReciprocalDebtorID, offer.ReciprocalAmount)
		reciprocal = &d
	}
	return &offerDocument{
		ID:                fmt.Sprintf(offerPath, offer.PayeeID, offer.OfferID, encodeSecret(offer.OfferSecret)),
		Type:              "FormalOffer",
		Context:           fmt.Sprintf(contextPath, "FormalOffer.jsonld"),
		OfferID:           offer.OfferID,
		OfferCreatedAt:    offer.CreatedAt.Format(timeLayout),
		OfferValidUntil:   offer.ValidUntil.Format(timeLayout),
		OfferDescription:  offer.Description,
		Payee:             fmt.Sprintf(payeePath, offer.PayeeID),
		PaymentOptions:    options,
		ReciprocalPayment: reciprocal,
	}
}

func newProofDocument(proof *paymentsdb.PaymentProof) *proofDocument {
	return &proofDocument{
		ID:                fmt.Sprintf(proofPath, proof.PayeeID, proof.ProofID, encodeSecret(proof.ProofSecret)),
		Type:              "PaymentProof",
		Context:           fmt.Sprintf(contextPath, "PaymentProof.jsonld"),
		PaidAmount:        proof.Amount,
		PaidAt:            proof.PaidAt.Format(timeLayout),
		PaidVia:           fmt.Sprintf(debtorPath, proof.DebtorID),
		PayerNote:         proof.PayerNote,
		OfferID:           proof.OfferID,
		OfferDescription:  proof.OfferDescription,
		OfferCreatedAt:    proof.OfferCreatedAt.Format(timeLayout),
		Payee:             fmt.Sprintf(payeePath, proof.PayeeID),
		Payer:             fmt.Sprintf(payeePath, proof.PayerID),
		ReciprocalPayment: reciprocalPayment(proof.ReciprocalDebtorID, proof.ReciprocalAmount),
	}
}

const timeLayout = "2006-01-02T15:04:05.999999Z07:00"
