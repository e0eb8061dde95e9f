package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/recyclesim/internal/clock"
	obslogger "github.com/smallbiznis/recyclesim/internal/observability/logger"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   recyclerdomain.Repository
	Ledger recyclerdomain.Ledger
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   recyclerdomain.Repository
	ledger recyclerdomain.Ledger
}

func New(p Params) recyclerdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("recycler.service"),
		clock:  p.Clock,
		repo:   p.Repo,
		ledger: p.Ledger,
	}
}

func (s *Service) List(ctx context.Context) ([]recyclerdomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]recyclerdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*recyclerdomain.Response, error) {
	recyclerID, err := recyclerdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, recyclerdomain.ErrInvalidID
	}

	rec, err := s.repo.FindByID(ctx, s.db, recyclerID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, recyclerdomain.ErrNotFound
	}

	resp := toResponse(rec)
	return &resp, nil
}

// Reset is the external emptying operation: the recycler's contents were
// hauled away and a new fill cycle starts.
func (s *Service) Reset(ctx context.Context, id string) (*recyclerdomain.Response, error) {
	recyclerID, err := recyclerdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, recyclerdomain.ErrInvalidID
	}

	var rec *recyclerdomain.Recycler
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = s.ledger.Reset(ctx, tx, recyclerID, s.clock.Now())
		return err
	})
	if err != nil {
		if errors.Is(err, recyclerdomain.ErrUnknownRecycler) {
			return nil, recyclerdomain.ErrNotFound
		}
		return nil, err
	}

	obslogger.WithRecycler(obslogger.WithContext(ctx, s.log), rec.ID.String()).Info("recycler.reset",
		zap.Int64("fill_cycle", rec.FillCycle),
		zap.Int64("capacity", rec.Capacity),
	)

	resp := toResponse(rec)
	return &resp, nil
}

func toResponse(r *recyclerdomain.Recycler) recyclerdomain.Response {
	return recyclerdomain.Response{
		ID:           r.ID.String(),
		PlantID:      r.PlantID.String(),
		Code:         r.Code,
		Capacity:     r.Capacity,
		CurrentLoad:  r.CurrentLoad,
		Remaining:    r.Remaining(),
		FillCycle:    r.FillCycle,
		Full:         r.IsFull(),
		FullSignaled: r.FullSignaled,
		FullAt:       r.FullAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
