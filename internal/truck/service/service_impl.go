package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/material"
	obslogger "github.com/smallbiznis/recyclesim/internal/observability/logger"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"github.com/smallbiznis/recyclesim/internal/truck/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  truckdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  truckdomain.Repository
}

func New(p Params) truckdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("truck.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context) ([]truckdomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]truckdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*truckdomain.Response, error) {
	truckID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, truckdomain.ErrInvalidID
	}
	t, err := s.repo.FindByID(ctx, s.db, truckID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, truckdomain.ErrNotFound
	}
	resp := toResponse(t)
	return &resp, nil
}

// Transition is the dispatcher-facing status change (leave depot, arrive,
// return). The load is only replaced when one is given.
func (s *Service) Transition(ctx context.Context, req truckdomain.TransitionRequest) (*truckdomain.Response, error) {
	truckID, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, truckdomain.ErrInvalidID
	}
	to, ok := truckdomain.ParseStatus(strings.TrimSpace(req.Status))
	if !ok {
		return nil, truckdomain.ErrInvalidStatus
	}

	var load material.Load
	if req.Load != nil {
		load = material.Load(req.Load).Normalize()
		if err := load.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", truckdomain.ErrInvalidLoad, err)
		}
	}

	var updated *truckdomain.Truck
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = s.transition(ctx, tx, truckID, to, load)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(updated)
	return &resp, nil
}

func (s *Service) BeginUnloading(ctx context.Context, db *gorm.DB, id snowflake.ID, load material.Load) (*truckdomain.Truck, error) {
	current, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, truckdomain.ErrNotFound
	}
	if current.Status == truckdomain.StatusUnloading {
		return current, nil
	}
	return s.transition(ctx, db, id, truckdomain.StatusUnloading, load)
}

func (s *Service) MarkEmpty(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	current, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return err
	}
	if current == nil || current.Status != truckdomain.StatusUnloading {
		return nil
	}
	_, err = s.repo.CompareAndSetStatus(ctx, db, id, truckdomain.StatusUnloading, truckdomain.StatusEmpty, []byte("{}"), current.DeliveryCycle, s.clock.Now())
	return err
}

func (s *Service) transition(ctx context.Context, db *gorm.DB, id snowflake.ID, to truckdomain.Status, load material.Load) (*truckdomain.Truck, error) {
	current, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, truckdomain.ErrNotFound
	}
	if err := guard.EnsureCanTransition(current.Status, to); err != nil {
		return nil, err
	}

	cycle := current.DeliveryCycle
	if guard.StartsNewCycle(current.Status, to) {
		cycle++
	}
	raw := []byte(current.Load)
	if load != nil {
		raw, err = load.JSON()
		if err != nil {
			return nil, err
		}
	}

	ok, err := s.repo.CompareAndSetStatus(ctx, db, id, current.Status, to, raw, cycle, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, truckdomain.ErrStaleStatus
	}

	obslogger.WithContext(ctx, s.log).Info("truck.transition",
		zap.String("truck_id", id.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
		zap.Int64("delivery_cycle", cycle),
	)
	return s.repo.FindByID(ctx, db, id)
}

func toResponse(t *truckdomain.Truck) truckdomain.Response {
	load, err := material.Parse(t.Load)
	if err != nil {
		load = material.Load{}
	}
	resp := truckdomain.Response{
		ID:            t.ID.String(),
		PlayerID:      t.PlayerID,
		Code:          t.Code,
		Status:        t.Status,
		Load:          load,
		DeliveryCycle: t.DeliveryCycle,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.PlantID != nil {
		resp.PlantID = t.PlantID.String()
	}
	return resp
}
