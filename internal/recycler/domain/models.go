package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plant groups recyclers at one physical location.
type Plant struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"size:191;not null;uniqueIndex:ux_plants_code"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Plant) TableName() string { return "plants" }

// Recycler is a capacity-bounded sink. CurrentLoad is only ever changed by
// the capacity ledger.
type Recycler struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	PlantID      snowflake.ID `json:"plant_id" gorm:"not null;index:ix_recyclers_plant"`
	Code         string       `json:"code" gorm:"size:191;not null;uniqueIndex:ux_recyclers_code"`
	Capacity     int64        `json:"capacity" gorm:"not null;check:chk_recyclers_capacity,capacity > 0"`
	CurrentLoad  int64        `json:"current_load" gorm:"not null;default:0;check:chk_recyclers_load,current_load >= 0 AND current_load <= capacity"`
	FillCycle    int64        `json:"fill_cycle" gorm:"not null;default:1"`
	FullSignaled bool         `json:"full_signaled" gorm:"not null;default:false"`
	FullAt       *time.Time   `json:"full_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Recycler) TableName() string { return "recyclers" }

func (r Recycler) Remaining() int64 {
	if r.CurrentLoad >= r.Capacity {
		return 0
	}
	return r.Capacity - r.CurrentLoad
}

func (r Recycler) IsFull() bool {
	return r.CurrentLoad >= r.Capacity
}
