package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb/memory"
)

// fakePublisher records published signals and can be told to fail from
// a given call on.
type fakePublisher struct {
	published []string
	failAfter int
}

func (p *fakePublisher) Publish(ctx context.Context, signal *paymentsdb.OutboundSignal) error {
	if p.failAfter >= 0 && len(p.published) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, signal.MessageID)
	return nil
}

func insertSignals(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.Signals().Insert(context.Background(), &paymentsdb.OutboundSignal{
			MessageID:  fmt.Sprintf("m%d", i+1),
			SignalType: "created_offer",
			PayeeID:    1,
			Payload:    json.RawMessage(`{}`),
		}))
	}
}

func TestFlushOncePublishesAndDeletes(t *testing.T) {
	store := memory.New()
	insertSignals(t, store, 3)

	publisher := &fakePublisher{failAfter: -1}
	relay := NewRelay(store, publisher, NewConfig(), zap.NewNop())

	published, err := relay.FlushOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, published)
	require.Equal(t, []string{"m1", "m2", "m3"}, publisher.published)

	pending, err := store.Signals().ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestFlushOnceEmptyLog(t *testing.T) {
	relay := NewRelay(memory.New(), &fakePublisher{failAfter: -1}, NewConfig(), zap.NewNop())

	published, err := relay.FlushOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, published)
}

func TestFlushOnceRespectsBatchSize(t *testing.T) {
	store := memory.New()
	insertSignals(t, store, 5)

	config := NewConfig()
	config.RelayBatchSize = 2
	publisher := &fakePublisher{failAfter: -1}
	relay := NewRelay(store, publisher, config, zap.NewNop())

	published, err := relay.FlushOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, published)

	pending, err := store.Signals().ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.Equal(t, "m3", pending[0].MessageID)
}

func TestFlushOncePartialFailureKeepsRemainder(t *testing.T) {
	store := memory.New()
	insertSignals(t, store, 3)

	// The first two go out, the third publish fails.
	publisher := &fakePublisher{failAfter: 2}
	relay := NewRelay(store, publisher, NewConfig(), zap.NewNop())

	published, err := relay.FlushOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, published)

	// What went out is deleted; the failed row stays for the next round.
	pending, err := store.Signals().ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "m3", pending[0].MessageID)
}
