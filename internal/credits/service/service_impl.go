package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/recyclesim/internal/clock"
	creditsdomain "github.com/smallbiznis/recyclesim/internal/credits/domain"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/material"
	obslogger "github.com/smallbiznis/recyclesim/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Consumer is the dedupe namespace of the credits projection.
const Consumer = "credits"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    creditsdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    creditsdomain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("credits.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// Handle applies a DeliveryCompleted event to the player's balance. A
// redelivered event is acknowledged without changing anything.
func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	var payload events.DeliveryCompleted
	if err := env.Decode(&payload); err != nil {
		return err
	}
	playerID := strings.TrimSpace(payload.PlayerID)
	if playerID == "" {
		return creditsdomain.ErrInvalidPlayer
	}
	if payload.CreditsEarned.IsNegative() {
		return creditsdomain.ErrInvalidAmount
	}
	cents := payload.CreditsEarned.Shift(2)
	if !cents.IsInteger() {
		return fmt.Errorf("%w: %s", creditsdomain.ErrInvalidAmount, payload.CreditsEarned)
	}
	bottles := material.Load(payload.LoadByType).Total()

	duplicate := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		first, err := s.repo.MarkProcessed(ctx, tx, Consumer, env.DedupeKey(), env.EventID, now)
		if err != nil {
			return err
		}
		if !first {
			duplicate = true
			return nil
		}
		return s.repo.AddCredits(ctx, tx, playerID, cents.IntPart(), bottles, env.EventID, now)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordCreditsProjected(ctx, duplicate)
	log := obslogger.WithDelivery(obslogger.WithContext(ctx, s.log), env.DeliveryID)
	if duplicate {
		log.Debug("credits.duplicate", zap.String("event_id", env.EventID))
		return nil
	}
	log.Info("credits.applied",
		zap.String("player_id", playerID),
		zap.String("credits", payload.CreditsEarned.StringFixed(2)),
		zap.Int64("bottles", bottles),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, playerID string) (*creditsdomain.Response, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, creditsdomain.ErrInvalidPlayer
	}
	item, err := s.repo.FindByPlayer(ctx, s.db, playerID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, creditsdomain.ErrNotFound
	}
	resp := toResponse(*item)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]creditsdomain.Response, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	items, err := s.repo.List(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	out := make([]creditsdomain.Response, 0, len(items))
	for _, item := range items {
		out = append(out, toResponse(item))
	}
	return out, nil
}

func toResponse(c creditsdomain.PlayerCredit) creditsdomain.Response {
	return creditsdomain.Response{
		PlayerID:   c.PlayerID,
		Balance:    c.Balance().StringFixed(2),
		Deliveries: c.Deliveries,
		Bottles:    c.Bottles,
		UpdatedAt:  c.UpdatedAt,
	}
}
