// Package simtest wires the settlement stack on an in-memory database for
// package tests.
package simtest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/dbtest"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	deliveryrepo "github.com/smallbiznis/recyclesim/internal/delivery/repository"
	deliveryservice "github.com/smallbiznis/recyclesim/internal/delivery/service"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/events/eventstest"
	"github.com/smallbiznis/recyclesim/internal/lease"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	"github.com/smallbiznis/recyclesim/internal/pricing"
	"github.com/smallbiznis/recyclesim/internal/providers/pdf"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	recyclerrepo "github.com/smallbiznis/recyclesim/internal/recycler/repository"
	"github.com/smallbiznis/recyclesim/internal/settlement"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	truckrepo "github.com/smallbiznis/recyclesim/internal/truck/repository"
	truckservice "github.com/smallbiznis/recyclesim/internal/truck/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting time.
var Epoch = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

// DefaultPrices is the table every harness starts with.
var DefaultPrices = map[string]string{
	"plastic":  "2",
	"glass":    "3",
	"aluminum": "5",
	"paper":    "0.65",
}

// Models lists every table the stack touches.
func Models() []any {
	return []any{
		&recyclerdomain.Plant{},
		&recyclerdomain.Recycler{},
		&truckdomain.Truck{},
		&deliverydomain.Delivery{},
		&events.OutboxEvent{},
		&lease.Row{},
	}
}

type Harness struct {
	DB       *gorm.DB
	Node     *snowflake.Node
	Clock    *clock.FakeClock
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *obsmetrics.SettlementMetrics

	Recyclers   recyclerdomain.Repository
	Ledger      recyclerdomain.Ledger
	Trucks      truckdomain.Repository
	TruckSvc    truckdomain.Service
	Deliveries  deliverydomain.Repository
	DeliverySvc deliverydomain.Service

	Outbox     *events.Outbox
	Local      *events.LocalPublisher
	Recorder   *eventstest.Recorder
	Dispatcher *events.Dispatcher
	Pricing    *Pricing
	Engine     *settlement.Engine
	Leases     lease.Manager
}

// New builds a harness. extra models are migrated alongside the stack's own.
func New(t testing.TB, extra ...any) *Harness {
	t.Helper()

	db := dbtest.Open(t, append(Models(), extra...)...)
	node := dbtest.Node(t)
	fc := clock.NewFakeClock(Epoch)
	log := zap.NewNop()
	registry := prometheus.NewRegistry()
	metrics := obsmetrics.NewSettlementMetricsForTest(registry)

	h := &Harness{
		DB:       db,
		Node:     node,
		Clock:    fc,
		Log:      log,
		Registry: registry,
		Metrics:  metrics,

		Recyclers:  recyclerrepo.Provide(),
		Ledger:     recyclerrepo.NewLedger(fc),
		Trucks:     truckrepo.Provide(),
		Deliveries: deliveryrepo.Provide(),

		Outbox:   events.NewOutbox(node, fc),
		Local:    events.NewLocalPublisher(),
		Recorder: eventstest.NewRecorder(),
		Pricing:  NewPricing(pricing.MustTable("v1", DefaultPrices)),
	}

	h.TruckSvc = truckservice.New(truckservice.Params{DB: db, Log: log, Clock: fc, Repo: h.Trucks})
	h.DeliverySvc = deliveryservice.New(deliveryservice.Params{
		DB:         db,
		Log:        log,
		Clock:      fc,
		GenID:      node,
		Repo:       h.Deliveries,
		Trucks:     h.Trucks,
		TruckSvc:   h.TruckSvc,
		Recyclers:  h.Recyclers,
		Statements: pdf.New(),
	})
	h.Dispatcher = events.NewDispatcher(events.DispatcherParams{
		DB:        db,
		Log:       log,
		Outbox:    h.Outbox,
		Publisher: events.MultiPublisher{h.Local, h.Recorder},
		Metrics:   metrics,
	})
	h.Engine = settlement.NewEngine(settlement.Params{
		DB:         db,
		Log:        log,
		Clock:      fc,
		Deliveries: h.Deliveries,
		Ledger:     h.Ledger,
		Trucks:     h.TruckSvc,
		Pricing:    h.Pricing,
		Outbox:     h.Outbox,
		Dispatcher: h.Dispatcher,
		Metrics:    metrics,
	})
	h.Leases = lease.NewSQLManager(db, fc)
	return h
}

// Pricing is a swappable pricing.Provider.
type Pricing struct {
	table pricing.Table
}

func NewPricing(table pricing.Table) *Pricing { return &Pricing{table: table} }

func (p *Pricing) Current() pricing.Table { return p.table }

func (p *Pricing) Set(table pricing.Table) { p.table = table }

// Plant inserts a plant with one recycler per capacity.
func (h *Harness) Plant(t testing.TB, capacities ...int64) (*recyclerdomain.Plant, []*recyclerdomain.Recycler) {
	t.Helper()
	ctx := context.Background()
	now := h.Clock.Now()

	plant := &recyclerdomain.Plant{ID: h.Node.Generate(), Name: "Plant", CreatedAt: now}
	plant.Code = "plant-" + plant.ID.String()
	require.NoError(t, h.Recyclers.InsertPlant(ctx, h.DB, plant))

	out := make([]*recyclerdomain.Recycler, 0, len(capacities))
	for _, capacity := range capacities {
		rec := &recyclerdomain.Recycler{
			ID:        h.Node.Generate(),
			PlantID:   plant.ID,
			Capacity:  capacity,
			FillCycle: 1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		rec.Code = "rc-" + rec.ID.String()
		require.NoError(t, h.Recyclers.InsertRecycler(ctx, h.DB, rec))
		out = append(out, rec)
	}
	return plant, out
}

// Truck inserts an en-route truck assigned to plant.
func (h *Harness) Truck(t testing.TB, plant *recyclerdomain.Plant, playerID string) *truckdomain.Truck {
	t.Helper()
	now := h.Clock.Now()
	id := h.Node.Generate()
	plantID := plant.ID
	truck := &truckdomain.Truck{
		ID:            id,
		PlantID:       &plantID,
		PlayerID:      playerID,
		Code:          "tr-" + id.String(),
		Status:        truckdomain.StatusEnRoute,
		Load:          datatypes.JSON(`{}`),
		DeliveryCycle: 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, h.Trucks.Insert(context.Background(), h.DB, truck))
	return truck
}

// Submit records a delivery for truck to recycler.
func (h *Harness) Submit(t testing.TB, truck *truckdomain.Truck, recycler *recyclerdomain.Recycler, load map[string]int64) snowflake.ID {
	t.Helper()
	req := deliverydomain.SubmitRequest{
		ReportID:   "report-" + h.Node.Generate().String(),
		TruckID:    truck.ID.String(),
		LoadByType: load,
	}
	if recycler != nil {
		req.RecyclerID = recycler.ID.String()
	}
	resp, created, err := h.DeliverySvc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.True(t, created)
	id, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	return id
}

func (h *Harness) Delivery(t testing.TB, id snowflake.ID) *deliverydomain.Delivery {
	t.Helper()
	d, err := h.Deliveries.FindByID(context.Background(), h.DB, id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func (h *Harness) Recycler(t testing.TB, id snowflake.ID) *recyclerdomain.Recycler {
	t.Helper()
	rec, err := h.Recyclers.FindByID(context.Background(), h.DB, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func (h *Harness) TruckByID(t testing.TB, id snowflake.ID) *truckdomain.Truck {
	t.Helper()
	truck, err := h.Trucks.FindByID(context.Background(), h.DB, id)
	require.NoError(t, err)
	require.NotNil(t, truck)
	return truck
}

// OutboxRows returns the outbox rows of one delivery in sequence order.
func (h *Harness) OutboxRows(t testing.TB, deliveryID snowflake.ID) []events.OutboxEvent {
	t.Helper()
	var rows []events.OutboxEvent
	require.NoError(t, h.DB.Where("delivery_id = ?", deliveryID).Order("sequence ASC").Find(&rows).Error)
	return rows
}
