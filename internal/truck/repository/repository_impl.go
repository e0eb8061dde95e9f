package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"gorm.io/gorm"
)

const truckColumns = `id, plant_id, player_id, code, status, load, delivery_cycle, created_at, updated_at`

type repo struct{}

func Provide() truckdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *truckdomain.Truck) error {
	load := []byte(t.Load)
	if len(load) == 0 {
		load = []byte("{}")
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO trucks (id, plant_id, player_id, code, status, load, delivery_cycle, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.PlantID,
		t.PlayerID,
		t.Code,
		t.Status,
		string(load),
		t.DeliveryCycle,
		t.CreatedAt,
		t.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*truckdomain.Truck, error) {
	var t truckdomain.Truck
	err := db.WithContext(ctx).Raw(
		`SELECT `+truckColumns+` FROM trucks WHERE id = ?`,
		id,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]truckdomain.Truck, error) {
	var items []truckdomain.Truck
	err := db.WithContext(ctx).Raw(
		`SELECT ` + truckColumns + ` FROM trucks ORDER BY code ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to truckdomain.Status, load []byte, cycle int64, at time.Time) (bool, error) {
	if len(load) == 0 {
		load = []byte("{}")
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE trucks
		 SET status = ?, load = ?, delivery_cycle = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		string(load),
		cycle,
		at,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
