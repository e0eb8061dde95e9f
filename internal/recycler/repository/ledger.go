package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/clock"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	"gorm.io/gorm"
)

type ledger struct {
	clock clock.Clock
}

func NewLedger(c clock.Clock) recyclerdomain.Ledger {
	if c == nil {
		c = clock.New()
	}
	return &ledger{clock: c}
}

func (l *ledger) TryReserve(ctx context.Context, db *gorm.DB, recyclerID snowflake.ID, amount int64) (recyclerdomain.Reservation, error) {
	if amount < 0 {
		return recyclerdomain.Reservation{}, fmt.Errorf("%w: %d", recyclerdomain.ErrInvalidAmount, amount)
	}
	now := l.clock.Now()

	// The row lock taken by this UPDATE is the per-recycler critical section;
	// the capacity check and the increment are one statement.
	res := db.WithContext(ctx).Exec(
		`UPDATE recyclers
		 SET current_load = current_load + ?, updated_at = ?
		 WHERE id = ? AND current_load + ? <= capacity`,
		amount,
		now,
		recyclerID,
		amount,
	)
	if res.Error != nil {
		return recyclerdomain.Reservation{}, res.Error
	}

	if res.RowsAffected == 0 {
		rec, err := findRecycler(ctx, db, recyclerID)
		if err != nil {
			return recyclerdomain.Reservation{}, err
		}
		if rec == nil {
			return recyclerdomain.Reservation{}, fmt.Errorf("%w: %s", recyclerdomain.ErrUnknownRecycler, recyclerID)
		}
		current := recyclerdomain.Reservation{
			RecyclerID: rec.ID,
			PlantID:    rec.PlantID,
			Amount:     amount,
			NewLoad:    rec.CurrentLoad,
			Capacity:   rec.Capacity,
			FillCycle:  rec.FillCycle,
		}
		return current, fmt.Errorf("%w: recycler %s load=%d amount=%d capacity=%d",
			recyclerdomain.ErrCapacityExceeded, rec.ID, rec.CurrentLoad, amount, rec.Capacity)
	}

	signal := db.WithContext(ctx).Exec(
		`UPDATE recyclers
		 SET full_signaled = ?, full_at = ?
		 WHERE id = ? AND current_load = capacity AND full_signaled = ?`,
		true,
		now,
		recyclerID,
		false,
	)
	if signal.Error != nil {
		return recyclerdomain.Reservation{}, signal.Error
	}

	rec, err := findRecycler(ctx, db, recyclerID)
	if err != nil {
		return recyclerdomain.Reservation{}, err
	}
	if rec == nil {
		return recyclerdomain.Reservation{}, fmt.Errorf("%w: %s", recyclerdomain.ErrUnknownRecycler, recyclerID)
	}

	return recyclerdomain.Reservation{
		RecyclerID: rec.ID,
		PlantID:    rec.PlantID,
		Amount:     amount,
		NewLoad:    rec.CurrentLoad,
		Capacity:   rec.Capacity,
		FillCycle:  rec.FillCycle,
		BecameFull: signal.RowsAffected == 1,
	}, nil
}

func (l *ledger) Reset(ctx context.Context, db *gorm.DB, recyclerID snowflake.ID, at time.Time) (*recyclerdomain.Recycler, error) {
	if at.IsZero() {
		at = l.clock.Now()
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE recyclers
		 SET current_load = 0, full_signaled = ?, full_at = NULL, fill_cycle = fill_cycle + 1, updated_at = ?
		 WHERE id = ?`,
		false,
		at,
		recyclerID,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", recyclerdomain.ErrUnknownRecycler, recyclerID)
	}
	return findRecycler(ctx, db, recyclerID)
}
