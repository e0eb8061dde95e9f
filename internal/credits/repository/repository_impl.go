package repository

import (
	"context"
	"time"

	creditsdomain "github.com/smallbiznis/recyclesim/internal/credits/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() creditsdomain.Repository {
	return &repo{}
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, consumer, dedupeKey, eventID string, at time.Time) (bool, error) {
	row := creditsdomain.ProcessedEvent{
		Consumer:    consumer,
		DedupeKey:   dedupeKey,
		EventID:     eventID,
		ProcessedAt: at,
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) AddCredits(ctx context.Context, db *gorm.DB, playerID string, cents, bottles int64, eventID string, at time.Time) error {
	row := creditsdomain.PlayerCredit{
		PlayerID:     playerID,
		BalanceCents: cents,
		Deliveries:   1,
		Bottles:      bottles,
		LastEventID:  eventID,
		UpdatedAt:    at,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance_cents": gorm.Expr("player_credits.balance_cents + ?", cents),
			"deliveries":    gorm.Expr("player_credits.deliveries + 1"),
			"bottles":       gorm.Expr("player_credits.bottles + ?", bottles),
			"last_event_id": eventID,
			"updated_at":    at,
		}),
	}).Create(&row).Error
}

func (r *repo) FindByPlayer(ctx context.Context, db *gorm.DB, playerID string) (*creditsdomain.PlayerCredit, error) {
	var items []creditsdomain.PlayerCredit
	err := db.WithContext(ctx).Raw(
		`SELECT player_id, balance_cents, deliveries, bottles, last_event_id, updated_at
		 FROM player_credits WHERE player_id = ?`,
		playerID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]creditsdomain.PlayerCredit, error) {
	var items []creditsdomain.PlayerCredit
	err := db.WithContext(ctx).
		Order("balance_cents DESC").
		Order("player_id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
