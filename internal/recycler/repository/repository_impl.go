package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	"gorm.io/gorm"
)

const recyclerColumns = `id, plant_id, code, capacity, current_load, fill_cycle, full_signaled, full_at, created_at, updated_at`

type repo struct{}

func Provide() recyclerdomain.Repository {
	return &repo{}
}

func (r *repo) InsertPlant(ctx context.Context, db *gorm.DB, p *recyclerdomain.Plant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plants (id, code, name, created_at) VALUES (?, ?, ?, ?)`,
		p.ID,
		p.Code,
		p.Name,
		p.CreatedAt,
	).Error
}

func (r *repo) InsertRecycler(ctx context.Context, db *gorm.DB, rec *recyclerdomain.Recycler) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO recyclers (id, plant_id, code, capacity, current_load, fill_cycle, full_signaled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.PlantID,
		rec.Code,
		rec.Capacity,
		rec.CurrentLoad,
		rec.FillCycle,
		rec.FullSignaled,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Error
}

func (r *repo) FindPlantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*recyclerdomain.Plant, error) {
	var plant recyclerdomain.Plant
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at FROM plants WHERE id = ?`,
		id,
	).Scan(&plant).Error
	if err != nil {
		return nil, err
	}
	if plant.ID == 0 {
		return nil, nil
	}
	return &plant, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*recyclerdomain.Recycler, error) {
	return findRecycler(ctx, db, id)
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]recyclerdomain.Recycler, error) {
	var items []recyclerdomain.Recycler
	err := db.WithContext(ctx).Raw(
		`SELECT ` + recyclerColumns + ` FROM recyclers ORDER BY plant_id ASC, code ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByPlant(ctx context.Context, db *gorm.DB, plantID snowflake.ID) ([]recyclerdomain.Recycler, error) {
	var items []recyclerdomain.Recycler
	err := db.WithContext(ctx).Raw(
		`SELECT `+recyclerColumns+` FROM recyclers WHERE plant_id = ? ORDER BY code ASC`,
		plantID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountPlants(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM plants`).Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func findRecycler(ctx context.Context, db *gorm.DB, id snowflake.ID) (*recyclerdomain.Recycler, error) {
	var rec recyclerdomain.Recycler
	err := db.WithContext(ctx).Raw(
		`SELECT `+recyclerColumns+` FROM recyclers WHERE id = ?`,
		id,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}
