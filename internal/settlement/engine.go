package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/clock"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/material"
	obslogger "github.com/smallbiznis/recyclesim/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	"github.com/smallbiznis/recyclesim/internal/observability/tracing"
	"github.com/smallbiznis/recyclesim/internal/pricing"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "github.com/smallbiznis/recyclesim/internal/settlement"

type Status string

const (
	StatusSettled     Status = "settled"
	StatusRecoverable Status = "recoverable"
	StatusTerminal    Status = "terminal"
)

// SettlementResult is the outcome of one Settle call.
type SettlementResult struct {
	DeliveryID snowflake.ID
	Status     Status
	// Replayed is set when the delivery had already reached its final state
	// and nothing was recomputed.
	Replayed bool
	// Record is the stored result of a settled delivery.
	Record *deliverydomain.Result
	// Reason is the failure for recoverable and terminal outcomes.
	Reason error
	// PublishErr wraps ErrPublishFailure when the settlement is durable but
	// its events could not all be published yet.
	PublishErr error
}

func (r SettlementResult) ReasonCode() string {
	if r.Reason != nil {
		return ReasonCode(r.Reason)
	}
	if r.PublishErr != nil {
		return ReasonCode(r.PublishErr)
	}
	return ""
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Deliveries deliverydomain.Repository
	Ledger     recyclerdomain.Ledger
	Trucks     truckdomain.Service
	Pricing    pricing.Provider
	Outbox     *events.Outbox
	Dispatcher *events.Dispatcher
	Metrics    *obsmetrics.SettlementMetrics `optional:"true"`
	Usage      *obsmetrics.Metrics           `optional:"true"`
}

type Engine struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	deliveries deliverydomain.Repository
	ledger     recyclerdomain.Ledger
	trucks     truckdomain.Service
	pricing    pricing.Provider
	outbox     *events.Outbox
	dispatcher *events.Dispatcher
	metrics    *obsmetrics.SettlementMetrics
	usage      *obsmetrics.Metrics
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:         p.DB,
		log:        p.Log.Named("settlement.engine"),
		clock:      p.Clock,
		deliveries: p.Deliveries,
		ledger:     p.Ledger,
		trucks:     p.Trucks,
		pricing:    p.Pricing,
		outbox:     p.Outbox,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
		usage:      p.Usage,
	}
}

// Settle drives one delivery to its outcome. Settlement failures are
// reported in the result; the error is reserved for infrastructure problems
// and cancellation, after which nothing the call did is visible.
func (e *Engine) Settle(ctx context.Context, deliveryID snowflake.ID) (SettlementResult, error) {
	start := e.clock.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "settlement.settle")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("delivery.id", deliveryID.String()))...)

	log := obslogger.WithDelivery(obslogger.WithContext(ctx, e.log), deliveryID.String())

	var (
		res   SettlementResult
		state *settledState
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, state, err = e.settleTx(ctx, tx, deliveryID)
		return err
	})
	if err != nil {
		e.metrics.ObserveSettlement(obsmetrics.OutcomeError, time.Since(start))
		e.metrics.IncError("settlement", err)
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "settlement failed")
		log.Warn("settlement.error",
			zap.String("error_type", obsmetrics.ClassifyErrorReason(err)),
			zap.Error(err),
		)
		return SettlementResult{DeliveryID: deliveryID}, err
	}

	if res.Status == StatusSettled {
		// Replays publish too: a crash between commit and publish leaves
		// rows behind that only this path or the relay will send.
		if _, perr := e.dispatcher.DispatchDelivery(ctx, deliveryID); perr != nil {
			res.PublishErr = fmt.Errorf("%w: %w", ErrPublishFailure, perr)
		}
	}

	e.observe(ctx, log, res, state, time.Since(start))
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("settlement.outcome", string(res.Status)),
		attribute.Bool("settlement.replayed", res.Replayed),
	)...)
	return res, nil
}

// settledState carries what a fresh settlement produced for metrics and
// logs; it is nil for replays and failures.
type settledState struct {
	load        material.Load
	reservation recyclerdomain.Reservation
	record      *deliverydomain.Result
}

func (e *Engine) settleTx(ctx context.Context, tx *gorm.DB, deliveryID snowflake.ID) (SettlementResult, *settledState, error) {
	res := SettlementResult{DeliveryID: deliveryID}

	d, err := e.deliveries.LockByID(ctx, tx, deliveryID)
	if err != nil {
		return res, nil, err
	}
	if d == nil {
		return res, nil, fmt.Errorf("%w: %s", ErrDeliveryNotFound, deliveryID)
	}

	switch d.Status {
	case deliverydomain.StatusSettled:
		record, err := d.DecodeResult()
		if err != nil {
			return res, nil, err
		}
		res.Status, res.Replayed, res.Record = StatusSettled, true, record
		return res, nil, nil
	case deliverydomain.StatusFailed:
		res.Status, res.Replayed = StatusTerminal, true
		res.Reason = recordedFailure(d.FailureReason, d.LastError)
		return res, nil, nil
	}

	now := e.clock.Now()
	load, err := validate(d)
	if err != nil {
		return e.fail(ctx, tx, d, err, now)
	}

	// One snapshot for the whole settlement; a reload mid-way is not seen.
	table := e.pricing.Current()

	var state *settledState
	err = tx.Transaction(func(sp *gorm.DB) error {
		var err error
		state, err = e.apply(ctx, sp, d, load, table, now)
		return err
	})
	switch {
	case err == nil:
		res.Status, res.Record = StatusSettled, state.record
		return res, state, nil
	case IsTerminal(err):
		return e.fail(ctx, tx, d, err, now)
	case errors.Is(err, ErrCapacityExceeded):
		if _, err := e.deliveries.RecordAttempt(ctx, tx, d.ID, err.Error(), now); err != nil {
			return res, nil, err
		}
		res.Status, res.Reason = StatusRecoverable, err
		return res, nil, nil
	default:
		return res, nil, err
	}
}

// apply holds every write of a successful settlement. It runs in a savepoint
// so a late failure also rolls back the capacity reservation.
func (e *Engine) apply(ctx context.Context, tx *gorm.DB, d *deliverydomain.Delivery, load material.Load, table pricing.Table, now time.Time) (*settledState, error) {
	reservation, err := e.ledger.TryReserve(ctx, tx, *d.RecyclerID, load.Total())
	if err != nil {
		return nil, err
	}

	computation, err := Breakdown(load, table)
	if err != nil {
		return nil, err
	}

	record := &deliverydomain.Result{
		DeliveryID:     d.ID.String(),
		TruckID:        d.TruckID.String(),
		PlantID:        d.PlantID.String(),
		RecyclerID:     d.RecyclerID.String(),
		PlayerID:       d.PlayerID,
		LoadByType:     load,
		TotalLoad:      load.Total(),
		CreditsEarned:  computation.Total,
		PricingVersion: computation.PricingVersion,
		RecyclerLoad:   reservation.NewLoad,
		Capacity:       reservation.Capacity,
		FillCycle:      reservation.FillCycle,
		BecameFull:     reservation.BecameFull,
		SettledAt:      now,
	}
	for _, line := range computation.Lines {
		record.Lines = append(record.Lines, deliverydomain.ResultLine{
			Material:  line.Material,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Credits:   line.Credits,
		})
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	ok, err := e.deliveries.MarkSettled(ctx, tx, d.ID, raw, computation.PricingVersion, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("delivery %s left pending while locked", d.ID)
	}

	if err := e.trucks.MarkEmpty(ctx, tx, d.TruckID); err != nil {
		return nil, err
	}

	payloads := []events.Payload{
		events.TruckLoaded{
			TruckID:       record.TruckID,
			RecyclerID:    record.RecyclerID,
			LoadedBottles: record.TotalLoad,
			LoadedAt:      now,
		},
	}
	if reservation.BecameFull {
		payloads = append(payloads, events.RecyclerFull{
			RecyclerID:  record.RecyclerID,
			Capacity:    reservation.Capacity,
			CurrentLoad: reservation.NewLoad,
			Timestamp:   now,
		})
	}
	payloads = append(payloads, events.DeliveryCompleted{
		TruckID:       record.TruckID,
		PlantID:       record.PlantID,
		PlayerID:      record.PlayerID,
		Timestamp:     now,
		LoadByType:    load,
		CreditsEarned: record.CreditsEarned,
	})
	if _, err := e.outbox.Append(ctx, tx, d.ID, now, payloads...); err != nil {
		return nil, err
	}

	return &settledState{load: load, reservation: reservation, record: record}, nil
}

func (e *Engine) fail(ctx context.Context, tx *gorm.DB, d *deliverydomain.Delivery, cause error, now time.Time) (SettlementResult, *settledState, error) {
	res := SettlementResult{DeliveryID: d.ID}
	if _, err := e.deliveries.MarkFailed(ctx, tx, d.ID, ReasonCode(cause), cause.Error(), now); err != nil {
		return res, nil, err
	}
	res.Status, res.Reason = StatusTerminal, cause
	return res, nil, nil
}

func validate(d *deliverydomain.Delivery) (material.Load, error) {
	if d.RecyclerID == nil || *d.RecyclerID == 0 {
		return nil, fmt.Errorf("%w: no recycler assigned", ErrInvalidLoad)
	}
	load, err := material.Parse(d.LoadByType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLoad, err)
	}
	if err := load.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLoad, err)
	}
	return load, nil
}

func (e *Engine) observe(ctx context.Context, log *zap.Logger, res SettlementResult, state *settledState, elapsed time.Duration) {
	outcome := string(res.Status)
	if res.Replayed {
		outcome = obsmetrics.OutcomeReplayed
	}
	e.metrics.ObserveSettlement(outcome, elapsed)

	switch res.Status {
	case StatusSettled:
		if res.PublishErr != nil {
			e.metrics.IncSettlementFailure(ErrPublishFailure.Error())
			log.Warn("settlement.publish.deferred", zap.Error(res.PublishErr))
		}
		if state == nil {
			log.Debug("settlement.replayed")
			return
		}
		for _, name := range state.load.Materials() {
			e.usage.RecordMaterialSettled(ctx, name, state.load[name])
		}
		credits, _ := state.record.CreditsEarned.Float64()
		e.usage.RecordCreditsEarned(ctx, state.record.PricingVersion, credits)
		if state.reservation.BecameFull {
			e.metrics.IncRecyclerFull()
		}
		log.Info("settlement.settled",
			zap.String("recycler_id", state.record.RecyclerID),
			zap.Int64("total_load", state.record.TotalLoad),
			zap.String("credits_earned", state.record.CreditsEarned.StringFixed(CreditPrecision)),
			zap.String("pricing_version", state.record.PricingVersion),
			zap.Int64("recycler_load", state.reservation.NewLoad),
			zap.Bool("recycler_full", state.reservation.BecameFull),
		)
	case StatusRecoverable:
		e.metrics.IncSettlementFailure(res.ReasonCode())
		log.Info("settlement.deferred",
			zap.String("reason", res.ReasonCode()),
			zap.Error(res.Reason),
		)
	case StatusTerminal:
		if res.Replayed {
			log.Debug("settlement.replayed", zap.String("reason", res.ReasonCode()))
			return
		}
		e.metrics.IncSettlementFailure(res.ReasonCode())
		log.Warn("settlement.failed",
			zap.String("reason", res.ReasonCode()),
			zap.Error(res.Reason),
		)
	}
}

// failure is a terminal failure read back from a delivery row.
type failure struct {
	cause error
	msg   string
}

func (f *failure) Error() string { return f.msg }
func (f *failure) Unwrap() error { return f.cause }

func recordedFailure(code, lastError string) error {
	var cause error
	switch code {
	case ErrInvalidLoad.Error():
		cause = ErrInvalidLoad
	case ErrUnknownMaterial.Error():
		cause = ErrUnknownMaterial
	case ErrUnknownRecycler.Error():
		cause = ErrUnknownRecycler
	default:
		cause = errors.New(code)
	}
	if lastError == "" {
		lastError = code
	}
	return &failure{cause: cause, msg: lastError}
}
