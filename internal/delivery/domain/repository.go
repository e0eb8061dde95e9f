package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status  Status
	TruckID snowflake.ID
	AfterID snowflake.ID
	AfterAt time.Time
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, d *Delivery) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Delivery, error)
	FindByReportID(ctx context.Context, db *gorm.DB, reportID string) (*Delivery, error)
	// LockByID reads the delivery under a row lock held until the
	// surrounding transaction ends.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Delivery, error)
	// ListPending returns pending deliveries oldest first, ties by id.
	ListPending(ctx context.Context, db *gorm.DB, limit int) ([]Delivery, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Delivery, error)
	CountByStatus(ctx context.Context, db *gorm.DB) (map[Status]int64, error)

	// The transition writes below only apply to a delivery in the expected
	// status and report whether they did.
	MarkSettled(ctx context.Context, db *gorm.DB, id snowflake.ID, result []byte, pricingVersion string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason, lastError string, at time.Time) (bool, error)
	RecordAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) (bool, error)
	Requeue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	Reassign(ctx context.Context, db *gorm.DB, id snowflake.ID, recyclerID snowflake.ID, at time.Time) (bool, error)
}
