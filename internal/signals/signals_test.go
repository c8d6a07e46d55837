package signals

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSecretTravelsBase64URL(t *testing.T) {
	secret := Secret{0xfb, 0xff, 0xfe, 0x01}

	encoded, err := json.Marshal(secret)
	require.NoError(t, err)
	// URL-safe alphabet, not standard base64.
	require.Equal(t, `"-__-AQ=="`, string(encoded))

	var decoded Secret
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, secret, decoded)
}

func TestSecretRejectsBadEncoding(t *testing.T) {
	var decoded Secret
	require.Error(t, json.Unmarshal([]byte(`"not base64!!"`), &decoded))
	require.Error(t, json.Unmarshal([]byte(`42`), &decoded))
}

func TestNewRowStampsMessageID(t *testing.T) {
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	row, err := NewRow(TypeCreatedOffer, 1, CreatedOffer{PayeeID: 1, OfferID: 2}, at)
	require.NoError(t, err)

	require.Equal(t, TypeCreatedOffer, row.SignalType)
	require.Equal(t, int64(1), row.PayeeID)
	require.Equal(t, at, row.InsertedAt)
	_, err = uuid.Parse(row.MessageID)
	require.NoError(t, err)

	var payload CreatedOffer
	require.NoError(t, json.Unmarshal(row.Payload, &payload))
	require.Equal(t, int64(2), payload.OfferID)

	other, err := NewRow(TypeCreatedOffer, 1, CreatedOffer{}, at)
	require.NoError(t, err)
	require.NotEqual(t, row.MessageID, other.MessageID)
}

func TestPayloadFieldNames(t *testing.T) {
	raw, err := json.Marshal(PrepareTransfer{
		CoordinatorType:      CoordinatorType,
		CoordinatorID:        1,
		CoordinatorRequestID: 2,
		DebtorID:             -1,
		SenderID:             3,
		RecipientID:          1,
		Amount:               1000,
	})
	require.NoError(t, err)
	require.JSONEq(t, `{
		"coordinator_type": "payment",
		"coordinator_id": 1,
		"coordinator_request_id": 2,
		"debtor_id": -1,
		"sender_id": 3,
		"recipient_id": 1,
		"amount": 1000
	}`, string(raw))

	raw, err = json.Marshal(FinalizePreparedTransfer{
		DebtorID:        -1,
		SenderID:        3,
		TransferID:      333,
		CommittedAmount: 1000,
		TransferInfo:    &TransferInfo{OfferID: 7, Leg: LegPrimary},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{
		"debtor_id": -1,
		"sender_id": 3,
		"transfer_id": 333,
		"committed_amount": 1000,
		"transfer_info": {"offer_id": 7, "leg": "primary"}
	}`, string(raw))
}
