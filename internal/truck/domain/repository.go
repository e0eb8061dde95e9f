package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, truck *Truck) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Truck, error)
	List(ctx context.Context, db *gorm.DB) ([]Truck, error)
	// CompareAndSetStatus moves the truck from one status to another and
	// reports whether the row was in the expected status.
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, load []byte, cycle int64, at time.Time) (bool, error)
}
