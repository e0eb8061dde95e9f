package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/dbtest"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/events/eventstest"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcherPublishesInSequenceAndBlocksOnFailure(t *testing.T) {
	db := dbtest.Open(t, &events.OutboxEvent{})
	node := dbtest.Node(t)
	fc := clock.NewFakeClock(time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC))
	outbox := events.NewOutbox(node, fc)
	recorder := eventstest.NewRecorder()
	dispatcher := events.NewDispatcher(events.DispatcherParams{
		DB:        db,
		Log:       zap.NewNop(),
		Outbox:    outbox,
		Publisher: recorder,
		Metrics:   obsmetrics.NewSettlementMetricsForTest(prometheus.NewRegistry()),
	})
	ctx := context.Background()
	deliveryID := node.Generate()

	envs, err := outbox.Append(ctx, db, deliveryID, fc.Now(),
		events.TruckLoaded{TruckID: "1", RecyclerID: "2", LoadedBottles: 20, LoadedAt: fc.Now()},
		events.RecyclerFull{RecyclerID: "2", Capacity: 100, CurrentLoad: 100, Timestamp: fc.Now()},
		events.DeliveryCompleted{TruckID: "1", PlantID: "3", PlayerID: "p", Timestamp: fc.Now()},
	)
	require.NoError(t, err)
	require.Len(t, envs, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{envs[0].Sequence, envs[1].Sequence, envs[2].Sequence})

	recorder.FailNext(events.TypeRecyclerFull, 1, errors.New("broker down"))

	n, err := dispatcher.DispatchDelivery(ctx, deliveryID)
	require.ErrorIs(t, err, events.ErrPublishFailed)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{events.TypeTruckLoaded}, recorder.Types(deliveryID.String()))

	pending, err := outbox.CountPending(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	n, err = dispatcher.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{
		events.TypeTruckLoaded,
		events.TypeRecyclerFull,
		events.TypeDeliveryCompleted,
	}, recorder.Types(deliveryID.String()))

	n, err = dispatcher.DispatchDelivery(ctx, deliveryID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxAppendIsIdempotentPerType(t *testing.T) {
	db := dbtest.Open(t, &events.OutboxEvent{})
	node := dbtest.Node(t)
	outbox := events.NewOutbox(node, clock.New())
	ctx := context.Background()
	deliveryID := node.Generate()

	_, err := outbox.Append(ctx, db, deliveryID, time.Time{}, events.TruckLoaded{TruckID: "1"})
	require.NoError(t, err)
	_, err = outbox.Append(ctx, db, deliveryID, time.Time{}, events.TruckLoaded{TruckID: "1"})
	require.NoError(t, err)

	rows, err := outbox.ListUnpublished(ctx, db, deliveryID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestEnvelopeDecode(t *testing.T) {
	db := dbtest.Open(t, &events.OutboxEvent{})
	node := dbtest.Node(t)
	outbox := events.NewOutbox(node, clock.New())
	at := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

	envs, err := outbox.Append(context.Background(), db, node.Generate(), at,
		events.TruckLoaded{TruckID: "7", RecyclerID: "9", LoadedBottles: 3, LoadedAt: at},
	)
	require.NoError(t, err)

	var got events.TruckLoaded
	require.NoError(t, envs[0].Decode(&got))
	assert.Equal(t, int64(3), got.LoadedBottles)
	assert.Contains(t, string(envs[0].Payload), `"TruckId":"7"`)

	var wrong events.RecyclerFull
	assert.ErrorIs(t, envs[0].Decode(&wrong), events.ErrUnexpectedType)
}

func TestLocalPublisherRoutesByType(t *testing.T) {
	local := events.NewLocalPublisher()
	var seen []string
	local.Subscribe(events.TypeDeliveryCompleted, events.HandlerFunc(func(ctx context.Context, env events.Envelope) error {
		seen = append(seen, env.EventID)
		return nil
	}))

	require.NoError(t, local.Publish(context.Background(), events.Envelope{EventID: "a", Type: events.TypeTruckLoaded}))
	require.NoError(t, local.Publish(context.Background(), events.Envelope{EventID: "b", Type: events.TypeDeliveryCompleted}))
	assert.Equal(t, []string{"b"}, seen)
}
