package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const deliveryColumns = `id, report_id, truck_id, plant_id, recycler_id, player_id, load_by_type, status,
	failure_reason, last_error, attempts, pricing_version, result, submitted_at,
	last_attempt_at, settled_at, failed_at, created_at, updated_at`

type repo struct{}

func Provide() deliverydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *deliverydomain.Delivery) error {
	load := []byte(d.LoadByType)
	if len(load) == 0 {
		load = []byte("{}")
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO deliveries (id, report_id, truck_id, plant_id, recycler_id, player_id, load_by_type, status, attempts, submitted_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.ReportID,
		d.TruckID,
		d.PlantID,
		d.RecyclerID,
		d.PlayerID,
		string(load),
		d.Status,
		d.Attempts,
		d.SubmittedAt,
		d.CreatedAt,
		d.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*deliverydomain.Delivery, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByReportID(ctx context.Context, db *gorm.DB, reportID string) (*deliverydomain.Delivery, error) {
	return r.findOne(ctx, db, `report_id = ?`, strings.TrimSpace(reportID))
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*deliverydomain.Delivery, error) {
	var items []deliverydomain.Delivery
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, limit int) ([]deliverydomain.Delivery, error) {
	var items []deliverydomain.Delivery
	err := db.WithContext(ctx).Raw(
		`SELECT `+deliveryColumns+`
		 FROM deliveries
		 WHERE status = ?
		 ORDER BY submitted_at ASC, id ASC
		 LIMIT ?`,
		deliverydomain.StatusPending,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter deliverydomain.ListFilter) ([]deliverydomain.Delivery, error) {
	query := db.WithContext(ctx).Model(&deliverydomain.Delivery{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TruckID != 0 {
		query = query.Where("truck_id = ?", filter.TruckID)
	}
	if filter.AfterID != 0 {
		query = query.Where("(submitted_at > ?) OR (submitted_at = ? AND id > ?)", filter.AfterAt, filter.AfterAt, filter.AfterID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []deliverydomain.Delivery
	if err := query.Order("submitted_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) (map[deliverydomain.Status]int64, error) {
	var rows []struct {
		Status deliverydomain.Status
		Count  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count FROM deliveries GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[deliverydomain.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *repo) MarkSettled(ctx context.Context, db *gorm.DB, id snowflake.ID, result []byte, pricingVersion string, at time.Time) (bool, error) {
	return exec(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, result = ?, pricing_version = ?, attempts = attempts + 1, last_error = '',
		     last_attempt_at = ?, settled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		deliverydomain.StatusSettled,
		string(result),
		pricingVersion,
		at,
		at,
		at,
		id,
		deliverydomain.StatusPending,
	))
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason, lastError string, at time.Time) (bool, error) {
	return exec(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, failure_reason = ?, last_error = ?, attempts = attempts + 1,
		     last_attempt_at = ?, failed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		deliverydomain.StatusFailed,
		reason,
		lastError,
		at,
		at,
		at,
		id,
		deliverydomain.StatusPending,
	))
}

func (r *repo) RecordAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) (bool, error) {
	return exec(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET attempts = attempts + 1, last_error = ?, last_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		lastError,
		at,
		at,
		id,
		deliverydomain.StatusPending,
	))
}

func (r *repo) Requeue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	return exec(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, failure_reason = '', failed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		deliverydomain.StatusPending,
		at,
		id,
		deliverydomain.StatusFailed,
	))
}

func (r *repo) Reassign(ctx context.Context, db *gorm.DB, id snowflake.ID, recyclerID snowflake.ID, at time.Time) (bool, error) {
	return exec(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET recycler_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		recyclerID,
		at,
		id,
		deliverydomain.StatusPending,
	))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*deliverydomain.Delivery, error) {
	var d deliverydomain.Delivery
	err := db.WithContext(ctx).Raw(
		`SELECT `+deliveryColumns+` FROM deliveries WHERE `+where,
		args...,
	).Scan(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func exec(res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
