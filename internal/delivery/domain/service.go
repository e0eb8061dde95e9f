package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/recyclesim/pkg/db/pagination"
)

type Service interface {
	// Submit records a truck's completed load as a pending delivery. A
	// report id that was already submitted returns the existing delivery.
	Submit(ctx context.Context, req SubmitRequest) (*Response, bool, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	// Retry hands a terminally failed delivery back to the worker.
	Retry(ctx context.Context, id string) (*Response, error)
	// Statement renders the settlement statement of a settled delivery.
	Statement(ctx context.Context, id string) ([]byte, error)
}

type SubmitRequest struct {
	ReportID   string           `json:"report_id"`
	TruckID    string           `json:"truck_id"`
	PlantID    string           `json:"plant_id,omitempty"`
	RecyclerID string           `json:"recycler_id,omitempty"`
	PlayerID   string           `json:"player_id,omitempty"`
	LoadByType map[string]int64 `json:"load_by_type"`
}

type ListRequest struct {
	pagination.Pagination
	Status  string `form:"status"`
	TruckID string `form:"truck_id"`
}

type ListResponse struct {
	Data     []Response          `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Response struct {
	ID             string           `json:"id"`
	ReportID       string           `json:"report_id"`
	TruckID        string           `json:"truck_id"`
	PlantID        string           `json:"plant_id"`
	RecyclerID     string           `json:"recycler_id,omitempty"`
	PlayerID       string           `json:"player_id"`
	LoadByType     map[string]int64 `json:"load_by_type"`
	Status         Status           `json:"status"`
	FailureReason  string           `json:"failure_reason,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	Attempts       int              `json:"attempts"`
	PricingVersion string           `json:"pricing_version,omitempty"`
	Result         *Result          `json:"result,omitempty"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	SettledAt      *time.Time       `json:"settled_at,omitempty"`
	FailedAt       *time.Time       `json:"failed_at,omitempty"`
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidReportID = errors.New("invalid_report_id")
	ErrInvalidTruck    = errors.New("invalid_truck")
	ErrInvalidPlant    = errors.New("invalid_plant")
	ErrInvalidRecycler = errors.New("invalid_recycler")
	ErrInvalidLoad     = errors.New("invalid_load")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrNotFound        = errors.New("not_found")
	ErrNotFailed       = errors.New("delivery_not_failed")
	ErrNotSettled      = errors.New("delivery_not_settled")
)
