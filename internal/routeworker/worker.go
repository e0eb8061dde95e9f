package routeworker

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/clock"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"github.com/smallbiznis/recyclesim/internal/lease"
	"github.com/smallbiznis/recyclesim/internal/material"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	"github.com/smallbiznis/recyclesim/internal/settlement"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StatusProcessed = "processed"
	StatusNoWork    = "no_work_available"
)

const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// RunResult is the outcome of one RunOnce: either one delivery went through
// the engine or there was nothing to take.
type RunResult struct {
	Status     string
	DeliveryID snowflake.ID
	Settlement *settlement.SettlementResult
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Config     Config
	Deliveries deliverydomain.Repository
	Recyclers  recyclerdomain.Repository
	Leases     lease.Manager
	Engine     *settlement.Engine
	Metrics    *obsmetrics.SettlementMetrics `optional:"true"`
}

type Worker struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	cfg        Config
	deliveries deliverydomain.Repository
	recyclers  recyclerdomain.Repository
	leases     lease.Manager
	engine     *settlement.Engine
	metrics    *obsmetrics.SettlementMetrics
}

func New(p Params) *Worker {
	return &Worker{
		db:         p.DB,
		log:        p.Log.Named("routeworker"),
		clock:      p.Clock,
		genID:      p.GenID,
		cfg:        p.Config.withDefaults(),
		deliveries: p.Deliveries,
		recyclers:  p.Recyclers,
		leases:     p.Leases,
		engine:     p.Engine,
		metrics:    p.Metrics,
	}
}

// RunOnce settles the oldest pending delivery nobody else is working on
// whose recycler has room for it. When every candidate is blocked on
// capacity the oldest blocked one goes through the engine so its attempt is
// recorded. A recoverable outcome is reported, not retried. Only
// infrastructure failures come back as errors.
func (w *Worker) RunOnce(ctx context.Context, trigger string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	defer cancel()

	ctx, run := w.startRun(ctx, trigger)
	result, err := w.runOnce(ctx, run)
	w.finishRun(ctx, run, result, err)
	return result, err
}

func (w *Worker) runOnce(ctx context.Context, run *workerRun) (RunResult, error) {
	candidates, err := w.deliveries.ListPending(ctx, w.db, w.cfg.CandidateLimit)
	if err != nil {
		return RunResult{}, err
	}

	var blocked []snowflake.ID
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		res, fits, err := w.tryCandidate(ctx, run, candidate.ID, false)
		if err != nil {
			return RunResult{DeliveryID: candidate.ID}, err
		}
		if !fits {
			blocked = append(blocked, candidate.ID)
			continue
		}
		if res == nil {
			continue
		}
		return RunResult{Status: StatusProcessed, DeliveryID: candidate.ID, Settlement: res}, nil
	}

	for _, id := range blocked {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		res, _, err := w.tryCandidate(ctx, run, id, true)
		if err != nil {
			return RunResult{DeliveryID: id}, err
		}
		if res == nil {
			continue
		}
		return RunResult{Status: StatusProcessed, DeliveryID: id, Settlement: res}, nil
	}

	return RunResult{Status: StatusNoWork}, nil
}

// tryCandidate leases id and settles it. Unless force is set, a delivery
// whose recycler lacks room is left pending and reported as not fitting. A
// nil result with fits set means the delivery was leased elsewhere or is no
// longer pending.
func (w *Worker) tryCandidate(ctx context.Context, run *workerRun, id snowflake.ID, force bool) (*settlement.SettlementResult, bool, error) {
	held, ok, err := w.leases.TryAcquire(ctx, lease.DeliveryKey(id), w.cfg.LeaseTTL)
	if err != nil {
		return nil, true, err
	}
	if !ok {
		run.skipped++
		w.metrics.IncLeaseContention()
		return nil, true, nil
	}
	defer func() {
		if err := w.leases.Release(context.WithoutCancel(ctx), held); err != nil {
			w.logger(ctx).Warn("routeworker.lease.release.failed",
				zap.String("delivery_id", id.String()),
				zap.Error(err),
			)
		}
	}()

	d, err := w.deliveries.FindByID(ctx, w.db, id)
	if err != nil {
		return nil, true, err
	}
	if d == nil || d.Status != deliverydomain.StatusPending {
		// Settled by another worker between listing and leasing.
		return nil, true, nil
	}

	if w.cfg.RerouteOnCapacity {
		if err := w.reroute(ctx, d); err != nil {
			return nil, true, err
		}
	}
	if !force {
		fits, err := w.hasRoom(ctx, d)
		if err != nil {
			return nil, true, err
		}
		if !fits {
			w.logger(ctx).Debug("routeworker.candidate.blocked", zap.String("delivery_id", id.String()))
			return nil, false, nil
		}
	}

	res, err := w.engine.Settle(ctx, id)
	if err != nil {
		return nil, true, err
	}
	return &res, true, nil
}

// hasRoom reports whether the assigned recycler can take the whole load.
// Deliveries the engine will reject anyway (no recycler, malformed load,
// unknown recycler) count as fitting so they fail without waiting.
func (w *Worker) hasRoom(ctx context.Context, d *deliverydomain.Delivery) (bool, error) {
	if d.RecyclerID == nil {
		return true, nil
	}
	load, err := material.Parse(d.LoadByType)
	if err != nil || load.Validate() != nil {
		return true, nil
	}
	rec, err := w.recyclers.FindByID(ctx, w.db, *d.RecyclerID)
	if err != nil {
		return false, err
	}
	return rec == nil || rec.Remaining() >= load.Total(), nil
}

// reroute reassigns d to the emptiest recycler of its plant when the assigned
// one has no room for the load. A load that fits nowhere stays put and the
// engine reports capacity_exceeded.
func (w *Worker) reroute(ctx context.Context, d *deliverydomain.Delivery) error {
	if d.RecyclerID == nil {
		return nil
	}
	load, err := material.Parse(d.LoadByType)
	if err != nil || load.Validate() != nil {
		return nil
	}
	need := load.Total()

	current, err := w.recyclers.FindByID(ctx, w.db, *d.RecyclerID)
	if err != nil {
		return err
	}
	if current == nil || current.Remaining() >= need {
		return nil
	}

	candidates, err := w.recyclers.ListByPlant(ctx, w.db, current.PlantID)
	if err != nil {
		return err
	}
	var best *recyclerdomain.Recycler
	for i := range candidates {
		c := &candidates[i]
		if c.ID == current.ID || c.Remaining() < need {
			continue
		}
		if best == nil || c.Remaining() > best.Remaining() {
			best = c
		}
	}
	if best == nil {
		return nil
	}

	ok, err := w.deliveries.Reassign(ctx, w.db, d.ID, best.ID, w.clock.Now())
	if err != nil {
		return err
	}
	if ok {
		to := best.ID
		d.RecyclerID = &to
		w.logger(ctx).Info("routeworker.rerouted",
			zap.String("delivery_id", d.ID.String()),
			zap.String("from_recycler_id", current.ID.String()),
			zap.String("to_recycler_id", best.ID.String()),
			zap.Int64("load", need),
		)
	}
	return nil
}

// RunForever drains up to MaxPerTick deliveries every Interval until ctx is
// done.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	nextRun := w.clock.Now().Add(w.cfg.Interval)

	for {
		runLag := w.clock.Now().Sub(nextRun)
		if runLag > 0 {
			w.metrics.ObserveRunLoopLag(runLag)
		}
		w.drain(ctx)
		nextRun = nextRun.Add(w.cfg.Interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain stops early when the same delivery comes back recoverable twice:
// nothing else fits and the blocked one will not settle within this tick.
func (w *Worker) drain(ctx context.Context) {
	var lastBlocked snowflake.ID
	for i := 0; i < w.cfg.MaxPerTick; i++ {
		if ctx.Err() != nil {
			return
		}
		res, err := w.RunOnce(ctx, TriggerScheduled)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.log.Warn("routeworker run failed", zap.Error(err))
			}
			return
		}
		if res.Status == StatusNoWork {
			return
		}
		if res.Settlement != nil && res.Settlement.Status == settlement.StatusRecoverable {
			if res.DeliveryID == lastBlocked {
				return
			}
			lastBlocked = res.DeliveryID
		}
	}
}
