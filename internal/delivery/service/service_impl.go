package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/clock"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"github.com/smallbiznis/recyclesim/internal/material"
	obslogger "github.com/smallbiznis/recyclesim/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	"github.com/smallbiznis/recyclesim/internal/providers/pdf"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"github.com/smallbiznis/recyclesim/pkg/db"
	"github.com/smallbiznis/recyclesim/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Repo       deliverydomain.Repository
	Trucks     truckdomain.Repository
	TruckSvc   truckdomain.Service
	Recyclers  recyclerdomain.Repository
	Statements pdf.Provider
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	repo       deliverydomain.Repository
	trucks     truckdomain.Repository
	truckSvc   truckdomain.Service
	recyclers  recyclerdomain.Repository
	statements pdf.Provider
	metrics    *obsmetrics.Metrics
}

func New(p Params) deliverydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("delivery.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		trucks:     p.Trucks,
		truckSvc:   p.TruckSvc,
		recyclers:  p.Recyclers,
		statements: p.Statements,
		metrics:    p.Metrics,
	}
}

func (s *Service) Submit(ctx context.Context, req deliverydomain.SubmitRequest) (*deliverydomain.Response, bool, error) {
	reportID := strings.TrimSpace(req.ReportID)
	if reportID == "" {
		return nil, false, deliverydomain.ErrInvalidReportID
	}
	truckID, err := snowflake.ParseString(strings.TrimSpace(req.TruckID))
	if err != nil {
		return nil, false, deliverydomain.ErrInvalidTruck
	}
	if req.LoadByType == nil {
		return nil, false, deliverydomain.ErrInvalidLoad
	}
	load := material.Load(req.LoadByType).Normalize()
	if _, blank := load[""]; blank {
		return nil, false, deliverydomain.ErrInvalidLoad
	}

	var (
		plantID    snowflake.ID
		recyclerID *snowflake.ID
	)
	if v := strings.TrimSpace(req.PlantID); v != "" {
		if plantID, err = snowflake.ParseString(v); err != nil {
			return nil, false, deliverydomain.ErrInvalidPlant
		}
	}
	if v := strings.TrimSpace(req.RecyclerID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			return nil, false, deliverydomain.ErrInvalidRecycler
		}
		recyclerID = &id
	}

	var (
		delivery *deliverydomain.Delivery
		created  bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByReportID(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if existing != nil {
			delivery = existing
			return nil
		}

		truck, err := s.trucks.FindByID(ctx, tx, truckID)
		if err != nil {
			return err
		}
		if truck == nil {
			return deliverydomain.ErrInvalidTruck
		}
		if plantID == 0 && truck.PlantID != nil {
			plantID = *truck.PlantID
		}

		plantID, recyclerID, err = s.route(ctx, tx, plantID, recyclerID)
		if err != nil {
			return err
		}

		// A malformed load is kept on the delivery for the engine to reject,
		// but never copied onto the truck.
		truckLoad := load
		if load.Validate() != nil {
			truckLoad = nil
		}
		if _, err := s.truckSvc.BeginUnloading(ctx, tx, truck.ID, truckLoad); err != nil {
			return err
		}

		raw, err := load.JSON()
		if err != nil {
			return err
		}
		playerID := strings.TrimSpace(req.PlayerID)
		if playerID == "" {
			playerID = truck.PlayerID
		}

		now := s.clock.Now()
		delivery = &deliverydomain.Delivery{
			ID:          s.genID.Generate(),
			ReportID:    reportID,
			TruckID:     truck.ID,
			PlantID:     plantID,
			RecyclerID:  recyclerID,
			PlayerID:    playerID,
			LoadByType:  raw,
			Status:      deliverydomain.StatusPending,
			SubmittedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Insert(ctx, tx, delivery); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, false, err
		}
		// Lost the race with a concurrent submit of the same report.
		existing, findErr := s.repo.FindByReportID(ctx, s.db, reportID)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing == nil {
			return nil, false, err
		}
		delivery, created = existing, false
	}

	s.metrics.RecordDeliverySubmitted(ctx, !created)
	log := obslogger.WithDelivery(obslogger.WithContext(ctx, s.log), delivery.ID.String())
	if created {
		log.Info("delivery.submitted",
			zap.String("report_id", delivery.ReportID),
			zap.String("truck_id", delivery.TruckID.String()),
			zap.String("recycler_id", idString(delivery.RecyclerID)),
			zap.Int64("total_load", load.Total()),
		)
	} else {
		log.Debug("delivery.submit.replayed", zap.String("report_id", delivery.ReportID))
	}

	resp, err := toResponse(delivery)
	if err != nil {
		return nil, false, err
	}
	return resp, created, nil
}

// route settles which recycler receives the delivery. An explicit recycler
// wins; otherwise the plant's recycler with the most free capacity is used.
// An unknown explicit recycler is kept so the settlement records it.
func (s *Service) route(ctx context.Context, tx *gorm.DB, plantID snowflake.ID, recyclerID *snowflake.ID) (snowflake.ID, *snowflake.ID, error) {
	if recyclerID != nil {
		rec, err := s.recyclers.FindByID(ctx, tx, *recyclerID)
		if err != nil {
			return 0, nil, err
		}
		if rec != nil {
			return rec.PlantID, recyclerID, nil
		}
		if plantID == 0 {
			return 0, nil, deliverydomain.ErrInvalidPlant
		}
		return plantID, recyclerID, nil
	}

	if plantID == 0 {
		return 0, nil, deliverydomain.ErrInvalidPlant
	}
	candidates, err := s.recyclers.ListByPlant(ctx, tx, plantID)
	if err != nil {
		return 0, nil, err
	}
	var best *recyclerdomain.Recycler
	for i := range candidates {
		if best == nil || candidates[i].Remaining() > best.Remaining() {
			best = &candidates[i]
		}
	}
	if best == nil {
		return plantID, nil, nil
	}
	id := best.ID
	return plantID, &id, nil
}

func (s *Service) Get(ctx context.Context, id string) (*deliverydomain.Response, error) {
	d, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(d)
}

func (s *Service) List(ctx context.Context, req deliverydomain.ListRequest) (*deliverydomain.ListResponse, error) {
	filter := deliverydomain.ListFilter{}

	if v := strings.TrimSpace(req.Status); v != "" {
		switch status := deliverydomain.Status(v); status {
		case deliverydomain.StatusPending, deliverydomain.StatusSettled, deliverydomain.StatusFailed:
			filter.Status = status
		default:
			return nil, deliverydomain.ErrInvalidStatus
		}
	}
	if v := strings.TrimSpace(req.TruckID); v != "" {
		truckID, err := snowflake.ParseString(v)
		if err != nil {
			return nil, deliverydomain.ErrInvalidTruck
		}
		filter.TruckID = truckID
	}
	if req.PageToken != "" {
		id, afterAt, err := pagination.DecodePosition(req.PageToken)
		if err != nil {
			return nil, err
		}
		afterID, err := snowflake.ParseString(id)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		filter.AfterID, filter.AfterAt = afterID, afterAt
	}

	limit := req.Limit()
	filter.Limit = limit + 1

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	page, info, err := pagination.BuildCursorPageInfo(items, limit, func(d deliverydomain.Delivery) pagination.Cursor {
		return pagination.NewCursor(d.ID.String(), d.SubmittedAt)
	})
	if err != nil {
		return nil, err
	}

	data := make([]deliverydomain.Response, 0, len(page))
	for i := range page {
		resp, err := toResponse(&page[i])
		if err != nil {
			return nil, err
		}
		data = append(data, *resp)
	}
	return &deliverydomain.ListResponse{Data: data, PageInfo: info}, nil
}

func (s *Service) Retry(ctx context.Context, id string) (*deliverydomain.Response, error) {
	deliveryID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, deliverydomain.ErrInvalidID
	}

	var d *deliverydomain.Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.Requeue(ctx, tx, deliveryID, s.clock.Now())
		if err != nil {
			return err
		}
		d, err = s.repo.FindByID(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return deliverydomain.ErrNotFound
		}
		if !ok {
			return deliverydomain.ErrNotFailed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithDelivery(obslogger.WithContext(ctx, s.log), d.ID.String()).Info("delivery.requeued",
		zap.Int("attempts", d.Attempts),
		zap.String("last_error", d.LastError),
	)
	return toResponse(d)
}

func (s *Service) Statement(ctx context.Context, id string) ([]byte, error) {
	d, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != deliverydomain.StatusSettled {
		return nil, deliverydomain.ErrNotSettled
	}
	result, err := d.DecodeResult()
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, deliverydomain.ErrNotSettled
	}

	truckCode := result.TruckID
	if truck, err := s.trucks.FindByID(ctx, s.db, d.TruckID); err == nil && truck != nil {
		truckCode = truck.Code
	}

	data := pdf.StatementData{
		DeliveryID:     result.DeliveryID,
		ReportID:       d.ReportID,
		TruckCode:      truckCode,
		PlayerID:       result.PlayerID,
		PlantID:        result.PlantID,
		RecyclerID:     result.RecyclerID,
		SettledAt:      result.SettledAt.UTC().Format(time.RFC3339),
		PricingVersion: result.PricingVersion,
		TotalBottles:   strconv.FormatInt(result.TotalLoad, 10),
		CreditsEarned:  result.CreditsEarned.StringFixed(2),
		RecyclerFull:   result.BecameFull,
	}
	for _, line := range result.Lines {
		data.Lines = append(data.Lines, pdf.StatementLine{
			Material:  line.Material,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Credits:   line.Credits.StringFixed(2),
		})
	}

	r, err := s.statements.GenerateStatement(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	if r == nil {
		return nil, errors.New("statement_renderer_unavailable")
	}
	return io.ReadAll(r)
}

func (s *Service) find(ctx context.Context, id string) (*deliverydomain.Delivery, error) {
	deliveryID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, deliverydomain.ErrInvalidID
	}
	d, err := s.repo.FindByID(ctx, s.db, deliveryID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, deliverydomain.ErrNotFound
	}
	return d, nil
}

func toResponse(d *deliverydomain.Delivery) (*deliverydomain.Response, error) {
	load, err := material.Parse(d.LoadByType)
	if err != nil {
		return nil, err
	}
	result, err := d.DecodeResult()
	if err != nil {
		return nil, err
	}
	return &deliverydomain.Response{
		ID:             d.ID.String(),
		ReportID:       d.ReportID,
		TruckID:        d.TruckID.String(),
		PlantID:        d.PlantID.String(),
		RecyclerID:     idString(d.RecyclerID),
		PlayerID:       d.PlayerID,
		LoadByType:     load,
		Status:         d.Status,
		FailureReason:  d.FailureReason,
		LastError:      d.LastError,
		Attempts:       d.Attempts,
		PricingVersion: d.PricingVersion,
		Result:         result,
		SubmittedAt:    d.SubmittedAt,
		SettledAt:      d.SettledAt,
		FailedAt:       d.FailedAt,
	}, nil
}

func idString(id *snowflake.ID) string {
	if id == nil || *id == 0 {
		return ""
	}
	return id.String()
}
