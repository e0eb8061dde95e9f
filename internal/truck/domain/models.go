package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusEnRoute   Status = "en_route"
	StatusUnloading Status = "unloading"
	StatusEmpty     Status = "empty"
)

// Truck carries one load per delivery cycle. Status only moves forward
// within a cycle; leaving empty starts the next cycle.
type Truck struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	PlantID       *snowflake.ID  `json:"plant_id,omitempty" gorm:"index:ix_trucks_plant"`
	PlayerID      string         `json:"player_id" gorm:"type:text;not null"`
	Code          string         `json:"code" gorm:"size:191;not null;uniqueIndex:ux_trucks_code"`
	Status        Status         `json:"status" gorm:"type:text;not null;default:'idle'"`
	Load          datatypes.JSON `json:"load" gorm:"type:json;not null"`
	DeliveryCycle int64          `json:"delivery_cycle" gorm:"not null;default:1"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Truck) TableName() string { return "trucks" }
