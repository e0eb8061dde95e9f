package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	OutcomeSettled     = "settled"
	OutcomeReplayed    = "replayed"
	OutcomeRecoverable = "recoverable"
	OutcomeTerminal    = "terminal"
	OutcomeError       = "error"
)

const (
	RunResultProcessed = "processed"
	RunResultNoWork    = "no_work_available"
	RunResultError     = "error"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonDeadlock             = "deadlock"
	ReasonUniqueViolation      = "unique_violation"
	ReasonUnknown              = "unknown"
)

// SettlementMetrics captures settlement pipeline health signals.
type SettlementMetrics struct {
	settlements       *prometheus.CounterVec
	settleDuration    *prometheus.HistogramVec
	rejections        *prometheus.CounterVec
	recyclerFull      prometheus.Counter
	eventsPublished   *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
	outboxPending     prometheus.Gauge
	workerRuns        *prometheus.CounterVec
	workerDuration    prometheus.Observer
	leaseContention   prometheus.Counter
	runLoopLag        prometheus.Observer
	errors            *prometheus.CounterVec
	settlementByLabel map[string]prometheus.Counter
}

var (
	settlementMetricsOnce sync.Once
	settlementMetrics     *SettlementMetrics
)

// Settlement returns the singleton settlement metrics registry.
func Settlement() *SettlementMetrics {
	return SettlementWithConfig(Config{})
}

// SettlementWithConfig returns the singleton settlement metrics registry using config labels.
func SettlementWithConfig(cfg Config) *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementMetrics = newSettlementMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return settlementMetrics
}

// ResetSettlementMetricsForTest resets the settlement metrics singleton for tests.
func ResetSettlementMetricsForTest() {
	settlementMetricsOnce = sync.Once{}
	settlementMetrics = nil
}

// NewSettlementMetricsForTest builds an unshared instance on registerer.
func NewSettlementMetricsForTest(registerer prometheus.Registerer) *SettlementMetrics {
	return newSettlementMetrics(registerer, Config{ServiceName: "recyclesim", Environment: "test"})
}

func newSettlementMetrics(registerer prometheus.Registerer, cfg Config) *SettlementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "recyclesim"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recyclesim_settlements_total",
		Help:        "Settlement attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	settleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "recyclesim_settle_duration_seconds",
		Help:        "Latency of one Settle call including the commit.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recyclesim_settlement_failures_total",
		Help:        "Settlement failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	recyclerFull := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "recyclesim_recycler_full_total",
		Help:        "Recyclers that reached capacity, once per fill cycle.",
		ConstLabels: constLabels,
	})
	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recyclesim_events_published_total",
		Help:        "Outbox events acknowledged by the publisher.",
		ConstLabels: constLabels,
	}, []string{"event_type"})
	publishFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recyclesim_event_publish_failures_total",
		Help:        "Outbox publish attempts that failed and will be retried by the relay.",
		ConstLabels: constLabels,
	}, []string{"event_type"})
	outboxPending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "recyclesim_outbox_pending",
		Help:        "Unpublished outbox events seen by the last relay pass.",
		ConstLabels: constLabels,
	})
	workerRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recyclesim_routeworker_runs_total",
		Help:        "Route worker RunOnce invocations by result and trigger.",
		ConstLabels: constLabels,
	}, []string{"result", "trigger"})
	workerDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "recyclesim_routeworker_run_duration_seconds",
		Help:        "Route worker RunOnce latency.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	leaseContention := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "recyclesim_routeworker_lease_contention_total",
		Help:        "Candidates skipped because another worker held the delivery lease.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "recyclesim_routeworker_runloop_lag_seconds",
		Help:        "Route worker run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recyclesim_errors_total",
		Help:        "Infrastructure errors by component and reason.",
		ConstLabels: constLabels,
	}, []string{"component", "reason"})

	registerer.MustRegister(
		settlements,
		settleDuration,
		rejections,
		recyclerFull,
		eventsPublished,
		publishFailures,
		outboxPending,
		workerRuns,
		workerDuration,
		leaseContention,
		runLoopLag,
		errorsTotal,
	)

	byLabel := map[string]prometheus.Counter{}
	for _, outcome := range []string{OutcomeSettled, OutcomeReplayed, OutcomeRecoverable, OutcomeTerminal, OutcomeError} {
		byLabel[outcome] = settlements.WithLabelValues(outcome)
	}

	return &SettlementMetrics{
		settlements:       settlements,
		settleDuration:    settleDuration,
		rejections:        rejections,
		recyclerFull:      recyclerFull,
		eventsPublished:   eventsPublished,
		publishFailures:   publishFailures,
		outboxPending:     outboxPending,
		workerRuns:        workerRuns,
		workerDuration:    workerDuration,
		leaseContention:   leaseContention,
		runLoopLag:        runLoopLag,
		errors:            errorsTotal,
		settlementByLabel: byLabel,
	}
}

// ObserveSettlement records one Settle call.
func (m *SettlementMetrics) ObserveSettlement(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if counter, ok := m.settlementByLabel[outcome]; ok {
		counter.Inc()
	} else {
		m.settlements.WithLabelValues(outcome).Inc()
	}
	m.settleDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncSettlementFailure counts a failed settlement by its reason code.
func (m *SettlementMetrics) IncSettlementFailure(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *SettlementMetrics) IncRecyclerFull() {
	if m == nil {
		return
	}
	m.recyclerFull.Inc()
}

func (m *SettlementMetrics) IncEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

func (m *SettlementMetrics) IncPublishFailure(eventType string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(eventType).Inc()
}

func (m *SettlementMetrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(count))
}

// ObserveWorkerRun records one RunOnce call.
func (m *SettlementMetrics) ObserveWorkerRun(result, trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.workerRuns.WithLabelValues(result, trigger).Inc()
	m.workerDuration.Observe(duration.Seconds())
}

func (m *SettlementMetrics) IncLeaseContention() {
	if m == nil {
		return
	}
	m.leaseContention.Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SettlementMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// IncError counts an infrastructure error for component.
func (m *SettlementMetrics) IncError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(component, ClassifyErrorReason(err)).Inc()
}

// ClassifyErrorReason maps infrastructure errors to low-cardinality reasons.
func ClassifyErrorReason(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return ReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ReasonSerializationFailure
	}
	if hasPGCode(err, "40P01") {
		return ReasonDeadlock
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ReasonUniqueViolation
	}
	return ReasonUnknown
}

// IsRetryable reports whether err is transient and the work may simply be
// attempted again later.
func IsRetryable(err error) bool {
	switch ClassifyErrorReason(err) {
	case ReasonDeadlineExceeded, ReasonDBLockTimeout, ReasonSerializationFailure, ReasonDeadlock:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
