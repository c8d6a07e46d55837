package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// Publisher sends one outbound signal to the bus and returns only
// after the bus has taken responsibility for it.
type Publisher interface {
	Publish(ctx context.Context, signal *paymentsdb.OutboundSignal) error
}

// amqpPublisher publishes persistent messages with publisher confirms
// on a dedicated channel.
type amqpPublisher struct {
	exchange string
	ch       *amqp.Channel
}

// NewPublisher opens a confirm-mode channel for the relay.
func NewPublisher(b *Broker) (Publisher, error) {
	ch, err := b.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &amqpPublisher{exchange: b.config.Exchange, ch: ch}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, signal *paymentsdb.OutboundSignal) error {
	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange, signal.SignalType, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    signal.MessageID,
			Type:         signal.SignalType,
			Timestamp:    signal.InsertedAt,
			Body:         signal.Payload,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", signal.SignalType, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", signal.SignalType, err)
	}
	if !acked {
		return fmt.Errorf("broker refused %s message %s", signal.SignalType, signal.MessageID)
	}
	return nil
}

// Relay drains the outbound signal log: it reads pending rows in
// insertion order, publishes them and deletes the published rows.
// Deleting only after a confirmed publish keeps the at-least-once
// guarantee; a crash between publish and delete causes a redelivery,
// never a loss.
type Relay struct {
	store     paymentsdb.Store
	publisher Publisher
	log       *zap.Logger
	batchSize int
	interval  time.Duration
}

// NewRelay creates a relay over the given store and publisher.
func NewRelay(store paymentsdb.Store, publisher Publisher, config *Config, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		log:       log,
		batchSize: config.RelayBatchSize,
		interval:  config.RelayInterval,
	}
}

// Run polls the signal log until the context is canceled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		published, err := r.FlushOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if published > 0 {
			// More rows may be waiting; poll again right away.
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FlushOnce publishes one batch of pending signals and reports how
// many went out.
func (r *Relay) FlushOnce(ctx context.Context) (int, error) {
	pending, err := r.store.Signals().ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(pending))
	for _, signal := range pending {
		if err := r.publisher.Publish(ctx, signal); err != nil {
			// Keep what already went out; the rest stays in the log
			// for the next round.
			if delErr := r.deletePublished(ctx, published); delErr != nil {
				r.log.Error("failed to delete published signals", zap.Error(delErr))
			}
			return len(published), err
		}
		published = append(published, signal.SignalID)
	}

	if err := r.deletePublished(ctx, published); err != nil {
		return len(published), err
	}
	r.log.Debug("relayed outbound signals", zap.Int("count", len(published)))
	return len(published), nil
}

func (r *Relay) deletePublished(ctx context.Context, signalIDs []int64) error {
	if len(signalIDs) == 0 {
		return nil
	}
	return r.store.Signals().Delete(ctx, signalIDs)
}
