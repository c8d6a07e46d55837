// Package broker connects the coordinator to the message bus: it
// declares the exchange and queue topology, runs the consumer workers
// that feed inbound messages to the coordinator, and runs the relay
// that drains the outbound signal log.
package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// InboundRoutingKeys lists the routing keys the coordinator consumes.
var InboundRoutingKeys = []string{
	KeyCreateOffer,
	KeyCancelOffer,
	KeyMakePaymentOrder,
	KeyPreparedTransferSignal,
	KeyRejectedTransferSignal,
}

// Broker wraps one AMQP connection to the message bus.
type Broker struct {
	config *Config
	log    *zap.Logger
	conn   *amqp.Connection
}

// Connect dials the message bus.
func Connect(config *Config, log *zap.Logger) (*Broker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broker configuration: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	log.Info("broker connected", zap.String("exchange", config.Exchange))
	return &Broker{config: config, log: log, conn: conn}, nil
}

// Close shuts the connection down.
func (b *Broker) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// NotifyClose registers a listener for connection loss.
func (b *Broker) NotifyClose() <-chan *amqp.Error {
	return b.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Channel opens a fresh channel on the connection.
func (b *Broker) Channel() (*amqp.Channel, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// DeclareTopology declares the exchange, the dead-letter pair, the
// consumer queue and its bindings. Every declaration is idempotent, so
// running it against an already provisioned bus changes nothing.
func (b *Broker) DeclareTopology(ctx context.Context, queue string) error {
	if queue == "" {
		queue = b.config.Queue
	}

	ch, err := b.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(b.config.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", b.config.Exchange, err)
	}
	if err := ch.ExchangeDeclare(b.config.DeadLetterExchange(), "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", b.config.DeadLetterExchange(), err)
	}

	deadQueue := b.config.DeadLetterQueue()
	if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", deadQueue, err)
	}
	if err := ch.QueueBind(deadQueue, queue, b.config.DeadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", deadQueue, err)
	}

	// Rejected deliveries fall through to the dead-letter exchange
	// with the queue name as the routing key.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    b.config.DeadLetterExchange(),
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}

	for _, key := range InboundRoutingKeys {
		if err := ch.QueueBind(queue, key, b.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %q to %q: %w", queue, key, err)
		}
		b.log.Info("queue bound",
			zap.String("queue", queue),
			zap.String("exchange", b.config.Exchange),
			zap.String("routing_key", key))
	}
	return nil
}
