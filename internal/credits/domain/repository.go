package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// MarkProcessed records dedupeKey for consumer and reports whether this
	// call was the first to do so.
	MarkProcessed(ctx context.Context, db *gorm.DB, consumer, dedupeKey, eventID string, at time.Time) (bool, error)
	AddCredits(ctx context.Context, db *gorm.DB, playerID string, cents, bottles int64, eventID string, at time.Time) error
	FindByPlayer(ctx context.Context, db *gorm.DB, playerID string) (*PlayerCredit, error)
	List(ctx context.Context, db *gorm.DB, limit int) ([]PlayerCredit, error)
}
