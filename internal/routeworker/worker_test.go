package routeworker

import (
	"context"
	"sync"
	"testing"
	"time"

	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"github.com/smallbiznis/recyclesim/internal/lease"
	"github.com/smallbiznis/recyclesim/internal/settlement"
	"github.com/smallbiznis/recyclesim/internal/simtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorker(h *simtest.Harness, cfg Config) *Worker {
	return New(Params{
		DB:         h.DB,
		Log:        h.Log,
		Clock:      h.Clock,
		GenID:      h.Node,
		Config:     cfg,
		Deliveries: h.Deliveries,
		Recyclers:  h.Recyclers,
		Leases:     h.Leases,
		Engine:     h.Engine,
		Metrics:    h.Metrics,
	})
}

func TestRunOnceNoWork(t *testing.T) {
	h := simtest.New(t)
	w := newWorker(h, Config{})

	res, err := w.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusNoWork, res.Status)
	assert.Nil(t, res.Settlement)
}

func TestRunOnceTakesOldestFirst(t *testing.T) {
	h := simtest.New(t)
	plant, recs := h.Plant(t, 100)
	w := newWorker(h, Config{})

	first := h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"plastic": 1})
	h.Clock.Advance(time.Second)
	second := h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"plastic": 2})

	res, err := w.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, res.Status)
	assert.Equal(t, first, res.DeliveryID)
	assert.Equal(t, settlement.StatusSettled, res.Settlement.Status)
	assert.Equal(t, deliverydomain.StatusPending, h.Delivery(t, second).Status)

	res, err = w.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, second, res.DeliveryID)

	res, err = w.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusNoWork, res.Status)
}

func TestRunOnceSkipsLeasedDelivery(t *testing.T) {
	h := simtest.New(t)
	plant, recs := h.Plant(t, 100)
	w := newWorker(h, Config{})
	ctx := context.Background()

	first := h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"plastic": 1})
	h.Clock.Advance(time.Second)
	second := h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"plastic": 2})

	held, ok, err := h.Leases.TryAcquire(ctx, lease.DeliveryKey(first), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, second, res.DeliveryID)
	assert.Equal(t, deliverydomain.StatusPending, h.Delivery(t, first).Status)

	res, err = w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusNoWork, res.Status)

	require.NoError(t, h.Leases.Release(ctx, held))
	res, err = w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, first, res.DeliveryID)
}

func TestRunOnceLeavesRecoverablePending(t *testing.T) {
	h := simtest.New(t)
	plant, recs := h.Plant(t, 10)
	w := newWorker(h, Config{})
	ctx := context.Background()

	id := h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"glass": 12})

	res, err := w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, res.Status)
	assert.Equal(t, settlement.StatusRecoverable, res.Settlement.Status)

	d := h.Delivery(t, id)
	assert.Equal(t, deliverydomain.StatusPending, d.Status)
	assert.Equal(t, 1, d.Attempts)

	res, err = w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, id, res.DeliveryID)
	assert.Equal(t, 2, h.Delivery(t, id).Attempts)
}

func TestRunOnceSkipsDeliveryThatCannotFit(t *testing.T) {
	h := simtest.New(t)
	small, smallRecs := h.Plant(t, 10)
	large, largeRecs := h.Plant(t, 100)
	w := newWorker(h, Config{})
	ctx := context.Background()

	blocked := h.Submit(t, h.Truck(t, small, "p"), smallRecs[0], map[string]int64{"glass": 12})
	h.Clock.Advance(time.Second)
	other := h.Submit(t, h.Truck(t, large, "q"), largeRecs[0], map[string]int64{"glass": 5})

	res, err := w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, other, res.DeliveryID)
	assert.Equal(t, settlement.StatusSettled, res.Settlement.Status)
	assert.Equal(t, 0, h.Delivery(t, blocked).Attempts)

	// Only the blocked one is left; it still goes through the engine.
	res, err = w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, blocked, res.DeliveryID)
	assert.Equal(t, settlement.StatusRecoverable, res.Settlement.Status)
	d := h.Delivery(t, blocked)
	assert.Equal(t, deliverydomain.StatusPending, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, deliverydomain.StatusSettled, h.Delivery(t, other).Status)
}

func TestDrainStopsOnRepeatedBlockedDelivery(t *testing.T) {
	h := simtest.New(t)
	small, smallRecs := h.Plant(t, 10)
	large, largeRecs := h.Plant(t, 100)
	w := newWorker(h, Config{MaxPerTick: 50})

	blocked := h.Submit(t, h.Truck(t, small, "p"), smallRecs[0], map[string]int64{"glass": 12})
	h.Clock.Advance(time.Second)
	other := h.Submit(t, h.Truck(t, large, "q"), largeRecs[0], map[string]int64{"glass": 5})

	w.drain(context.Background())

	assert.Equal(t, deliverydomain.StatusSettled, h.Delivery(t, other).Status)
	d := h.Delivery(t, blocked)
	assert.Equal(t, deliverydomain.StatusPending, d.Status)
	assert.Equal(t, 2, d.Attempts)
}

func TestRunOnceTerminalIsNotRetried(t *testing.T) {
	h := simtest.New(t)
	plant, recs := h.Plant(t, 10)
	w := newWorker(h, Config{})
	ctx := context.Background()

	id := h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"glass": -1})

	res, err := w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusTerminal, res.Settlement.Status)
	assert.Equal(t, "invalid_load", res.Settlement.ReasonCode())

	res, err = w.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusNoWork, res.Status)
	assert.Equal(t, deliverydomain.StatusFailed, h.Delivery(t, id).Status)
}

func TestRunOnceReroutesWhenConfigured(t *testing.T) {
	h := simtest.New(t)
	plant, recs := h.Plant(t, 10, 100)
	w := newWorker(h, Config{RerouteOnCapacity: true})

	id := h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"plastic": 20})

	res, err := w.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusSettled, res.Settlement.Status)
	assert.Equal(t, recs[1].ID.String(), res.Settlement.Record.RecyclerID)

	d := h.Delivery(t, id)
	require.NotNil(t, d.RecyclerID)
	assert.Equal(t, recs[1].ID, *d.RecyclerID)
	assert.Equal(t, int64(0), h.Recycler(t, recs[0].ID).CurrentLoad)
	assert.Equal(t, int64(20), h.Recycler(t, recs[1].ID).CurrentLoad)
}

func TestConcurrentRunOnceSettlesEachDeliveryOnce(t *testing.T) {
	h := simtest.New(t)
	plant, recs := h.Plant(t, 1000)
	w := newWorker(h, Config{})

	const deliveries = 5
	for i := 0; i < deliveries; i++ {
		h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"plastic": 3})
		h.Clock.Advance(time.Millisecond)
	}

	const workers = 8
	results := make([]RunResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := w.RunOnce(context.Background(), TriggerManual)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	seen := map[string]int{}
	for _, res := range results {
		if res.Status != StatusProcessed {
			continue
		}
		require.NotNil(t, res.Settlement)
		if !res.Settlement.Replayed {
			seen[res.DeliveryID.String()]++
		}
	}
	assert.Len(t, seen, deliveries)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
	assert.Equal(t, int64(3*deliveries), h.Recycler(t, recs[0].ID).CurrentLoad)
	assert.Len(t, h.Recorder.Envelopes(), 2*deliveries)
}

func TestRunForeverDrainsQueue(t *testing.T) {
	h := simtest.New(t)
	plant, recs := h.Plant(t, 100)
	w := newWorker(h, Config{Interval: 10 * time.Millisecond, MaxPerTick: 2})

	ids := []string{}
	for i := 0; i < 3; i++ {
		ids = append(ids, h.Submit(t, h.Truck(t, plant, "p"), recs[0], map[string]int64{"paper": 1}).String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.RunForever(ctx)
	}()

	require.Eventually(t, func() bool {
		counts, err := h.Deliveries.CountByStatus(context.Background(), h.DB)
		return err == nil && counts[deliverydomain.StatusSettled] == int64(len(ids))
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig().Interval, cfg.Interval)
	assert.Equal(t, DefaultConfig().CandidateLimit, cfg.CandidateLimit)
	assert.Equal(t, DefaultConfig().LeaseTTL, cfg.LeaseTTL)
	assert.False(t, cfg.RerouteOnCapacity)
}
