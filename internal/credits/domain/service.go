package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Get(ctx context.Context, playerID string) (*Response, error)
	List(ctx context.Context, limit int) ([]Response, error)
}

type Response struct {
	PlayerID   string    `json:"player_id"`
	Balance    string    `json:"balance"`
	Deliveries int64     `json:"deliveries"`
	Bottles    int64     `json:"bottles"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var (
	ErrInvalidPlayer = errors.New("invalid_player")
	ErrNotFound      = errors.New("not_found")
	ErrInvalidAmount = errors.New("invalid_credit_amount")
)
