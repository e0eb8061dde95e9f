package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	List(ctx context.Context) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	Reset(ctx context.Context, id string) (*Response, error)
}

type Response struct {
	ID           string     `json:"id"`
	PlantID      string     `json:"plant_id"`
	Code         string     `json:"code"`
	Capacity     int64      `json:"capacity"`
	CurrentLoad  int64      `json:"current_load"`
	Remaining    int64      `json:"remaining"`
	FillCycle    int64      `json:"fill_cycle"`
	Full         bool       `json:"full"`
	FullSignaled bool       `json:"full_signaled"`
	FullAt       *time.Time `json:"full_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("not_found")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
