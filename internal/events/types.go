package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeTruckLoaded       = "TruckLoaded"
	TypeRecyclerFull      = "RecyclerFull"
	TypeDeliveryCompleted = "DeliveryCompleted"
)

// Payload is one of the published event bodies. The JSON field names are a
// public contract shared with other services.
type Payload interface {
	EventType() string
}

type TruckLoaded struct {
	TruckID       string    `json:"TruckId"`
	RecyclerID    string    `json:"RecyclerId"`
	LoadedBottles int64     `json:"LoadedBottles"`
	LoadedAt      time.Time `json:"LoadedAt"`
}

func (TruckLoaded) EventType() string { return TypeTruckLoaded }

type RecyclerFull struct {
	RecyclerID  string    `json:"RecyclerId"`
	Capacity    int64     `json:"Capacity"`
	CurrentLoad int64     `json:"CurrentLoad"`
	Timestamp   time.Time `json:"Timestamp"`
}

func (RecyclerFull) EventType() string { return TypeRecyclerFull }

type DeliveryCompleted struct {
	TruckID       string           `json:"TruckId"`
	PlantID       string           `json:"PlantId"`
	PlayerID      string           `json:"PlayerId"`
	Timestamp     time.Time        `json:"Timestamp"`
	LoadByType    map[string]int64 `json:"LoadByType"`
	CreditsEarned decimal.Decimal  `json:"CreditsEarned"`
}

func (DeliveryCompleted) EventType() string { return TypeDeliveryCompleted }
