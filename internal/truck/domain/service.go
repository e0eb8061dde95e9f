package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/material"
	"gorm.io/gorm"
)

type Service interface {
	List(ctx context.Context) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	Transition(ctx context.Context, req TransitionRequest) (*Response, error)

	// BeginUnloading moves a truck to unloading with the reported load. A
	// truck already unloading is accepted so a repeated report is harmless.
	// A nil load keeps the truck's current load.
	BeginUnloading(ctx context.Context, db *gorm.DB, id snowflake.ID, load material.Load) (*Truck, error)
	// MarkEmpty finishes the unload after settlement. It is a no-op when the
	// truck has already moved on.
	MarkEmpty(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type TransitionRequest struct {
	ID     string           `json:"-"`
	Status string           `json:"status"`
	Load   map[string]int64 `json:"load,omitempty"`
}

type Response struct {
	ID            string           `json:"id"`
	PlantID       string           `json:"plant_id,omitempty"`
	PlayerID      string           `json:"player_id"`
	Code          string           `json:"code"`
	Status        Status           `json:"status"`
	Load          map[string]int64 `json:"load"`
	DeliveryCycle int64            `json:"delivery_cycle"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

var (
	ErrInvalidID     = errors.New("invalid_id")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrInvalidLoad   = errors.New("invalid_load")
	ErrNotFound      = errors.New("not_found")
	ErrStaleStatus   = errors.New("truck_status_changed")
)

func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusIdle, StatusEnRoute, StatusUnloading, StatusEmpty:
		return Status(value), true
	default:
		return "", false
	}
}
