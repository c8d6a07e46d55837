package broker

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swptgo/paycoord/internal/coordinator"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// Outcome is the consumer's verdict on one delivery.
type Outcome int

const (
	// OutcomeAck removes the delivery from the queue.
	OutcomeAck Outcome = iota
	// OutcomeRequeue puts the delivery back for another attempt.
	OutcomeRequeue
	// OutcomeReject sends the delivery to the dead-letter queue.
	OutcomeReject
)

// Consumer feeds inbound messages to the coordinator. Multiple worker
// goroutines consume concurrently; within one worker, deliveries are
// handled one at a time.
type Consumer struct {
	broker *Broker
	coord  *coordinator.Coordinator
	log    *zap.Logger
}

// NewConsumer creates a Consumer on top of an open broker connection.
func NewConsumer(b *Broker, coord *coordinator.Coordinator, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{broker: b, coord: coord, log: log}
}

// Run starts the configured number of worker goroutines and blocks
// until the context is canceled or a worker fails terminally.
func (c *Consumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.broker.config.Consumers; i++ {
		worker := i
		g.Go(func() error { return c.runWorker(ctx, worker) })
	}
	return g.Wait()
}

func (c *Consumer) runWorker(ctx context.Context, worker int) error {
	ch, err := c.broker.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.broker.config.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	deliveries, err := ch.Consume(c.broker.config.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", c.broker.config.Queue, err)
	}

	c.log.Info("consumer worker started", zap.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("worker %d: delivery channel closed", worker)
			}
			c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	err := c.Handle(ctx, d.RoutingKey, d.Body)

	var ackErr error
	switch Classify(err) {
	case OutcomeAck:
		ackErr = d.Ack(false)
	case OutcomeRequeue:
		c.log.Warn("delivery requeued",
			zap.String("routing_key", d.RoutingKey),
			zap.Error(err))
		ackErr = d.Nack(false, true)
	case OutcomeReject:
		c.log.Error("delivery dead-lettered",
			zap.String("routing_key", d.RoutingKey),
			zap.String("message_id", d.MessageId),
			zap.Error(err))
		ackErr = d.Nack(false, false)
	}
	if ackErr != nil {
		c.log.Error("acknowledge failed", zap.Error(ackErr))
	}
}

// Handle dispatches one message body to the coordinator operation its
// routing key names.
func (c *Consumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case KeyCreateOffer:
		var m createOfferMessage
		if err := decode(body, &m); err != nil {
			return err
		}
		_, err := c.coord.CreateOffer(ctx, coordinator.CreateOfferArgs{
			PayeeID:            m.PayeeID,
			AnnouncementID:     m.AnnouncementID,
			DebtorIDs:          m.DebtorIDs,
			DebtorAmounts:      m.DebtorAmounts,
			ValidUntil:         m.ValidUntil,
			Description:        m.Description,
			ReciprocalDebtorID: m.ReciprocalDebtorID,
			ReciprocalAmount:   m.ReciprocalAmount,
		})
		return err

	case KeyCancelOffer:
		var m cancelOfferMessage
		if err := decode(body, &m); err != nil {
			return err
		}
		return c.coord.CancelOffer(ctx, m.PayeeID, m.OfferID, m.OfferSecret)

	case KeyMakePaymentOrder:
		var m makePaymentOrderMessage
		if err := decode(body, &m); err != nil {
			return err
		}
		return c.coord.MakePaymentOrder(ctx, coordinator.MakePaymentOrderArgs{
			PayeeID:     m.PayeeID,
			OfferID:     m.OfferID,
			OfferSecret: m.OfferSecret,
			PayerID:     m.PayerID,
			PayerSeqnum: m.PayerSeqnum,
			DebtorID:    m.DebtorID,
			Amount:      m.Amount,
			ProofSecret: m.ProofSecret,
			PayerNote:   m.PayerNote,
		})

	case KeyPreparedTransferSignal:
		var m preparedTransferMessage
		if err := decode(body, &m); err != nil {
			return err
		}
		return c.coord.OnPreparedTransfer(ctx, coordinator.PreparedTransferArgs{
			DebtorID:             m.DebtorID,
			SenderID:             m.SenderID,
			TransferID:           m.TransferID,
			CoordinatorType:      m.CoordinatorType,
			CoordinatorID:        m.CoordinatorID,
			CoordinatorRequestID: m.CoordinatorRequestID,
			RecipientID:          m.RecipientID,
			SenderLockedAmount:   m.SenderLockedAmount,
			PreparedAt:           m.PreparedAt,
		})

	case KeyRejectedTransferSignal:
		var m rejectedTransferMessage
		if err := decode(body, &m); err != nil {
			return err
		}
		return c.coord.OnRejectedTransfer(ctx, coordinator.RejectedTransferArgs{
			CoordinatorType:      m.CoordinatorType,
			CoordinatorID:        m.CoordinatorID,
			CoordinatorRequestID: m.CoordinatorRequestID,
			Details:              m.Details,
		})

	default:
		return fmt.Errorf("%w: unknown routing key %q", coordinator.ErrInvalidRequest, routingKey)
	}
}

// Classify maps a handler result to a delivery outcome. Contract
// violations can never succeed on retry and go to the dead-letter
// queue; everything else, store failures included, is retried.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, coordinator.ErrInvalidRequest),
		errors.Is(err, coordinator.ErrWrongCoordinatorType),
		errors.Is(err, coordinator.ErrMismatchedTransfer):
		return OutcomeReject
	case paymentsdb.IsRetryable(err):
		return OutcomeRequeue
	default:
		return OutcomeRequeue
	}
}
