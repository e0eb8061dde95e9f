package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row is a lease held in the leases table.
type Row struct {
	LeaseKey  string    `gorm:"column:lease_key;primaryKey;size:191"`
	Token     string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Row) TableName() string { return "leases" }

type SQLManager struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewSQLManager(db *gorm.DB, c clock.Clock) *SQLManager {
	return &SQLManager{db: db, clock: c}
}

// TryAcquire takes over an expired lease or inserts a fresh one. Both
// statements are conditional, so two callers can never both see ok.
func (m *SQLManager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	key, err := validate(key, ttl)
	if err != nil {
		return Lease{}, false, err
	}

	now := m.clock.Now()
	lease := Lease{Key: key, Token: uuid.NewString(), ExpiresAt: now.Add(ttl)}
	db := m.db.WithContext(ctx)

	res := db.Exec(
		`UPDATE leases
		 SET token = ?, expires_at = ?, created_at = ?
		 WHERE lease_key = ? AND expires_at <= ?`,
		lease.Token,
		lease.ExpiresAt,
		now,
		lease.Key,
		now,
	)
	if res.Error != nil {
		return Lease{}, false, res.Error
	}
	if res.RowsAffected == 1 {
		return lease, true, nil
	}

	row := Row{LeaseKey: lease.Key, Token: lease.Token, ExpiresAt: lease.ExpiresAt, CreatedAt: now}
	res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return Lease{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return Lease{}, false, nil
	}
	return lease, true, nil
}

func (m *SQLManager) Release(ctx context.Context, lease Lease) error {
	if lease.Key == "" || lease.Token == "" {
		return nil
	}
	return m.db.WithContext(ctx).Exec(
		`DELETE FROM leases WHERE lease_key = ? AND token = ?`,
		lease.Key,
		lease.Token,
	).Error
}
