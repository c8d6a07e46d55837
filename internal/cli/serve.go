package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swptgo/paycoord/internal/broker"
	"github.com/swptgo/paycoord/internal/config"
	"github.com/swptgo/paycoord/internal/coordinator"
	"github.com/swptgo/paycoord/internal/httpdocs"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb/memory"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb/postgres"
)

// serveCmd runs the coordinator: consumer workers, the outbound signal
// relay and the read-only document server, all under one group.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the payments coordinator",
	Long: `Run the payments coordinator. The process consumes coordinator messages
from the configured queue, relays outbound signals from the signal log
to the bus, and serves the read-only offer and proof documents over
HTTP. It stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	coord := coordinator.New(store, log)

	bus, err := broker.Connect(&cfg.Broker, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := bus.DeclareTopology(ctx, ""); err != nil {
		return err
	}

	publisher, err := broker.NewPublisher(bus)
	if err != nil {
		return err
	}
	relay := broker.NewRelay(store, publisher, &cfg.Broker, log)
	consumer := broker.NewConsumer(bus, coord, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return relay.Run(ctx) })

	if cfg.HTTP.Enabled {
		docs, err := httpdocs.NewServer(coord, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return docs.ListenAndServe(ctx, cfg.HTTP.ListenAddr) })
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-bus.NotifyClose():
			return fmt.Errorf("broker connection lost: %w", amqpErr)
		}
	})

	log.Info("payments coordinator started")
	err = g.Wait()
	if err == context.Canceled {
		log.Info("payments coordinator stopped")
		return nil
	}
	return err
}

// openStore opens the configured store implementation.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (paymentsdb.Store, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn("using the in-memory store; nothing will survive a restart")
		return memory.New(), nil
	}

	store, err := postgres.NewStore(&cfg.Store, log)
	if err != nil {
		return nil, err
	}
	if err := store.Open(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
