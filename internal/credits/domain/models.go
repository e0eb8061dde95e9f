package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlayerCredit is a player's running credit balance projected from
// DeliveryCompleted events. Amounts are kept in hundredths so sums stay
// exact on every dialect.
type PlayerCredit struct {
	PlayerID     string    `gorm:"primaryKey;size:191"`
	BalanceCents int64     `gorm:"not null;default:0"`
	Deliveries   int64     `gorm:"not null;default:0"`
	Bottles      int64     `gorm:"not null;default:0"`
	LastEventID  string    `gorm:"type:text"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (PlayerCredit) TableName() string { return "player_credits" }

func (c PlayerCredit) Balance() decimal.Decimal {
	return decimal.New(c.BalanceCents, -2)
}

// ProcessedEvent remembers which facts a consumer already applied.
type ProcessedEvent struct {
	Consumer    string    `gorm:"primaryKey;size:191"`
	DedupeKey   string    `gorm:"primaryKey;size:191"`
	EventID     string    `gorm:"type:text;not null"`
	ProcessedAt time.Time `gorm:"not null"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
