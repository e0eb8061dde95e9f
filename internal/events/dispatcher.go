package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/config"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPublishTimeout = 5 * time.Second

type DispatcherParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Outbox    *Outbox
	Publisher Publisher
	Metrics   *obsmetrics.SettlementMetrics `optional:"true"`
	Config    config.EventsConfig           `optional:"true"`
}

// Dispatcher publishes outbox rows. Events of one delivery go out strictly in
// sequence order and a failed event holds back the ones after it.
type Dispatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	outbox    *Outbox
	publisher Publisher
	metrics   *obsmetrics.SettlementMetrics
	timeout   time.Duration
	locks     keyedMutex
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	timeout := p.Config.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Dispatcher{
		db:        p.DB,
		log:       p.Log.Named("events.dispatcher"),
		outbox:    p.Outbox,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		timeout:   timeout,
	}
}

// DispatchDelivery publishes the unpublished events of one delivery and
// returns how many went out. The error wraps ErrPublishFailed when the
// transport refused an event.
func (d *Dispatcher) DispatchDelivery(ctx context.Context, deliveryID snowflake.ID) (int, error) {
	unlock := d.locks.Lock(deliveryID)
	defer unlock()

	// Read outside a transaction: local handlers write through the same pool.
	rows, err := d.outbox.ListUnpublished(ctx, d.db, deliveryID)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, row := range rows {
		env := row.Envelope()

		pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
		pubErr := d.publisher.Publish(pubCtx, env)
		cancel()

		if pubErr != nil {
			d.metrics.IncPublishFailure(env.Type)
			if err := d.outbox.RecordFailure(context.WithoutCancel(ctx), d.db, row.ID, pubErr); err != nil {
				d.log.Warn("events.record_failure.failed", zap.Error(err))
			}
			d.log.Warn("events.publish.failed",
				zap.String("delivery_id", env.DeliveryID),
				zap.String("event_type", env.Type),
				zap.Int("sequence", env.Sequence),
				zap.Int("attempts", row.Attempts+1),
				zap.Error(pubErr),
			)
			return published, fmt.Errorf("%w: %s: %v", ErrPublishFailed, env.Type, pubErr)
		}

		// The event is already out; marking must not be skipped because the
		// caller gave up.
		if err := d.outbox.MarkPublished(context.WithoutCancel(ctx), d.db, row.ID); err != nil {
			return published, err
		}
		d.metrics.IncEventPublished(env.Type)
		published++
	}
	return published, nil
}

// DispatchPending republishes up to limit deliveries with unpublished events.
// One delivery failing does not hold back the others.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := d.outbox.PendingDeliveries(ctx, d.db, limit)
	if err != nil {
		return 0, err
	}

	var (
		total int
		errs  error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = errors.Join(errs, ctx.Err())
			break
		}
		n, err := d.DispatchDelivery(ctx, id)
		total += n
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}

	if pending, err := d.outbox.CountPending(ctx, d.db); err == nil {
		d.metrics.SetOutboxPending(int(pending))
	}
	return total, errs
}

// keyedMutex serializes work per delivery id within this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[snowflake.ID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(id snowflake.ID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[snowflake.ID]*keyedLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
