package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/swptgo/paycoord/internal/config"
	"github.com/swptgo/paycoord/internal/coordinator"
)

var (
	flushOrdersDays float64
	flushProofsDays float64
)

// flushOrdersCmd deletes aged finalized payment orders.
var flushOrdersCmd = &cobra.Command{
	Use:   "flush-payment-orders",
	Short: "Delete finalized payment orders older than a given number of days",
	Long: `Delete finalized payment orders older than a given number of days.

If --days is not given, the value of the APP_FLUSH_PAYMENT_ORDERS_DAYS
environment variable is taken; its default is 30. Live payment orders
are never deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlush(cmd.Context(), flushOrdersDays, flushKindOrders)
	},
}

// flushProofsCmd deletes aged payment proofs.
var flushProofsCmd = &cobra.Command{
	Use:   "flush-payment-proofs",
	Short: "Delete payment proofs older than a given number of days",
	Long: `Delete payment proofs older than a given number of days.

If --days is not given, the value of the APP_FLUSH_PAYMENT_PROOFS_DAYS
environment variable is taken; its default is 180.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlush(cmd.Context(), flushProofsDays, flushKindProofs)
	},
}

func init() {
	flushOrdersCmd.Flags().Float64VarP(&flushOrdersDays, "days", "d", 0, "the number of days")
	flushProofsCmd.Flags().Float64VarP(&flushProofsDays, "days", "d", 0, "the number of days")
	rootCmd.AddCommand(flushOrdersCmd)
	rootCmd.AddCommand(flushProofsCmd)
}

type flushKind int

const (
	flushKindOrders flushKind = iota
	flushKindProofs
)

func runFlush(ctx context.Context, days float64, kind flushKind) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	if days == 0 {
		if kind == flushKindOrders {
			days = cfg.FlushPaymentOrdersDays
		} else {
			days = cfg.FlushPaymentProofsDays
		}
	}
	cutoff := time.Now().UTC().Add(-time.Duration(days * 24 * float64(time.Hour)))

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	coord := coordinator.New(store, log)

	var deleted int64
	var noun string
	switch kind {
	case flushKindOrders:
		deleted, err = coord.FlushPaymentOrders(ctx, cutoff)
		noun = "payment order"
	case flushKindProofs:
		deleted, err = coord.FlushPaymentProofs(ctx, cutoff)
		noun = "payment proof"
	}
	if err != nil {
		return err
	}

	switch {
	case deleted == 1:
		fmt.Printf("1 %s has been deleted.\n", noun)
	case deleted > 1:
		fmt.Printf("%d %ss have been deleted.\n", deleted, noun)
	}
	return nil
}
