package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

func TestStateOf(t *testing.T) {
	transferID := int64(333)
	reciprocalID := int64(444)
	reciprocalDebtor := int64(-3)
	finalized := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		order paymentsdb.PaymentOrder
		want  OrderState
	}{
		{
			name:  "fresh simple order",
			order: paymentsdb.PaymentOrder{Amount: 1000},
			want:  StateNeedsPrimary,
		},
		{
			name:  "simple order with primary secured",
			order: paymentsdb.PaymentOrder{Amount: 1000, PaymentTransferID: &transferID},
			want:  StateReadyToCommit,
		},
		{
			name: "swap order with primary secured",
			order: paymentsdb.PaymentOrder{
				Amount:             1000,
				PaymentTransferID:  &transferID,
				ReciprocalDebtorID: &reciprocalDebtor,
				ReciprocalAmount:   500,
			},
			want: StateNeedsReciprocal,
		},
		{
			name: "swap order fully secured",
			order: paymentsdb.PaymentOrder{
				Amount:               1000,
				PaymentTransferID:    &transferID,
				ReciprocalDebtorID:   &reciprocalDebtor,
				ReciprocalAmount:     500,
				ReciprocalTransferID: &reciprocalID,
			},
			want: StateReadyToCommit,
		},
		{
			name:  "zero-amount order needs no transfers",
			order: paymentsdb.PaymentOrder{Amount: 0},
			want:  StateReadyToCommit,
		},
		{
			name: "zero-amount reciprocal leg counts as secured",
			order: paymentsdb.PaymentOrder{
				Amount:             1000,
				PaymentTransferID:  &transferID,
				ReciprocalDebtorID: &reciprocalDebtor,
				ReciprocalAmount:   0,
			},
			want: StateReadyToCommit,
		},
		{
			name:  "finalized order",
			order: paymentsdb.PaymentOrder{Amount: 1000, FinalizedAt: &finalized},
			want:  StateFinalized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, StateOf(&tc.order))
		})
	}
}

func TestOrderStateString(t *testing.T) {
	require.Equal(t, "needs-primary", StateNeedsPrimary.String())
	require.Equal(t, "needs-reciprocal", StateNeedsReciprocal.String())
	require.Equal(t, "ready-to-commit", StateReadyToCommit.String())
	require.Equal(t, "finalized", StateFinalized.String())
	require.Equal(t, "unknown", OrderState(99).String())
}
