package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
	StatusFailed  Status = "failed"
)

// Delivery is one truck-to-recycler settlement unit. Once settled or failed
// the row only changes through an operator retry of a failure.
type Delivery struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	ReportID       string         `json:"report_id" gorm:"size:191;not null;uniqueIndex:ux_deliveries_report"`
	TruckID        snowflake.ID   `json:"truck_id" gorm:"not null;index:ix_deliveries_truck"`
	PlantID        snowflake.ID   `json:"plant_id" gorm:"not null"`
	RecyclerID     *snowflake.ID  `json:"recycler_id,omitempty"`
	PlayerID       string         `json:"player_id" gorm:"type:text;not null"`
	LoadByType     datatypes.JSON `json:"load_by_type" gorm:"type:json;not null"`
	Status         Status         `json:"status" gorm:"size:191;not null;index:ix_deliveries_pending,priority:1"`
	FailureReason  string         `json:"failure_reason,omitempty" gorm:"type:text"`
	LastError      string         `json:"last_error,omitempty" gorm:"type:text"`
	Attempts       int            `json:"attempts" gorm:"not null;default:0"`
	PricingVersion string         `json:"pricing_version,omitempty" gorm:"type:text"`
	Result         datatypes.JSON `json:"result,omitempty" gorm:"type:json"`
	SubmittedAt    time.Time      `json:"submitted_at" gorm:"not null;index:ix_deliveries_pending,priority:2"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	SettledAt      *time.Time     `json:"settled_at,omitempty"`
	FailedAt       *time.Time     `json:"failed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Delivery) TableName() string { return "deliveries" }

// Result is the recorded outcome of a settled delivery. Replays return it
// as stored; it is never recomputed.
type Result struct {
	DeliveryID     string           `json:"delivery_id"`
	TruckID        string           `json:"truck_id"`
	PlantID        string           `json:"plant_id"`
	RecyclerID     string           `json:"recycler_id"`
	PlayerID       string           `json:"player_id"`
	LoadByType     map[string]int64 `json:"load_by_type"`
	TotalLoad      int64            `json:"total_load"`
	Lines          []ResultLine     `json:"lines"`
	CreditsEarned  decimal.Decimal  `json:"credits_earned"`
	PricingVersion string           `json:"pricing_version"`
	RecyclerLoad   int64            `json:"recycler_load"`
	Capacity       int64            `json:"capacity"`
	FillCycle      int64            `json:"fill_cycle"`
	BecameFull     bool             `json:"became_full"`
	SettledAt      time.Time        `json:"settled_at"`
}

type ResultLine struct {
	Material  string          `json:"material"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Credits   decimal.Decimal `json:"credits"`
}

func (d *Delivery) DecodeResult() (*Result, error) {
	if len(d.Result) == 0 {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal(d.Result, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
