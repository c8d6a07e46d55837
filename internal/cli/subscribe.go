package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swptgo/paycoord/internal/broker"
	"github.com/swptgo/paycoord/internal/config"
)

// subscribeCmd provisions the bus for a queue without consuming.
var subscribeCmd = &cobra.Command{
	Use:   "subscribe [QUEUE]",
	Short: "Declare the exchange and bind a queue for the coordinator messages",
	Long: `Declare the coordinator's direct exchange, the dead-letter pair, the
queue and its bindings for every inbound routing key. QUEUE defaults to
the configured queue name. All declarations are idempotent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubscribe,
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	queue := cfg.Broker.Queue
	if len(args) == 1 {
		queue = args[0]
	}

	bus, err := broker.Connect(&cfg.Broker, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := bus.DeclareTopology(cmd.Context(), queue); err != nil {
		return err
	}

	fmt.Printf("Declared %q direct exchange.\n", cfg.Broker.Exchange)
	for _, key := range broker.InboundRoutingKeys {
		fmt.Printf("Subscribed %q to %q.\n", queue, cfg.Broker.Exchange+"."+key)
	}
	return nil
}
