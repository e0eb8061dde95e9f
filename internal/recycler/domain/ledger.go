package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrCapacityExceeded = errors.New("capacity_exceeded")
	ErrUnknownRecycler  = errors.New("unknown_recycler")
	ErrInvalidAmount    = errors.New("invalid_amount")
)

// Reservation is the recycler state right after an accepted reservation.
type Reservation struct {
	RecyclerID snowflake.ID
	PlantID    snowflake.ID
	Amount     int64
	NewLoad    int64
	Capacity   int64
	FillCycle  int64
	// BecameFull is true for exactly one reservation per fill cycle: the one
	// that brought the load to capacity.
	BecameFull bool
}

// Ledger owns recycler load. Every method takes the handle to run on so
// callers can enlist it in their transaction; a rolled back transaction
// rolls back the reservation with it.
type Ledger interface {
	// TryReserve adds amount to the recycler's load iff the result stays
	// within capacity. Rejections are ErrCapacityExceeded, ErrUnknownRecycler
	// and ErrInvalidAmount.
	TryReserve(ctx context.Context, db *gorm.DB, recyclerID snowflake.ID, amount int64) (Reservation, error)
	// Reset empties the recycler and opens a new fill cycle.
	Reset(ctx context.Context, db *gorm.DB, recyclerID snowflake.ID, at time.Time) (*Recycler, error)
}
