package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// FlushPaymentOrders deletes finalized payment orders older than the
// cutoff and reports how many were deleted. Live orders are never
// touched. Prepared transfers that surface after their order is gone
// are released by the not-found path of OnPreparedTransfer.
func (c *Coordinator) FlushPaymentOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := c.store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		n, err := tx.Orders().DeleteFinalizedBefore(ctx, cutoff.UTC())
		deleted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	c.log.Info("flushed payment orders", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}

// FlushPaymentProofs deletes payment proofs paid before the cutoff and
// reports how many were deleted.
func (c *Coordinator) FlushPaymentProofs(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := c.store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		n, err := tx.Proofs().DeletePaidBefore(ctx, cutoff.UTC())
		deleted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	c.log.Info("flushed payment proofs", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}
