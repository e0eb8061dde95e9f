package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnexpectedType = errors.New("unexpected_event_type")
	ErrPublishFailed  = errors.New("publish_failure")
)

// OutboxEvent is an event recorded in the same transaction as the state
// change it describes. A row is published at least once and then marked.
type OutboxEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	DeliveryID  snowflake.ID   `gorm:"not null;uniqueIndex:ux_outbox_delivery_type,priority:1;uniqueIndex:ux_outbox_delivery_seq,priority:1"`
	EventType   string         `gorm:"size:191;not null;uniqueIndex:ux_outbox_delivery_type,priority:2"`
	Sequence    int            `gorm:"not null;uniqueIndex:ux_outbox_delivery_seq,priority:2"`
	Payload     datatypes.JSON `gorm:"type:json;not null"`
	OccurredAt  time.Time      `gorm:"not null"`
	Published   bool           `gorm:"not null;default:false;index:ix_outbox_unpublished"`
	PublishedAt *time.Time
	Attempts    int       `gorm:"not null;default:0"`
	LastError   string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

func (e OutboxEvent) Envelope() Envelope {
	return Envelope{
		EventID:    e.ID.String(),
		DeliveryID: e.DeliveryID.String(),
		Sequence:   e.Sequence,
		Type:       e.EventType,
		OccurredAt: e.OccurredAt,
		Payload:    json.RawMessage(e.Payload),
	}
}

type Outbox struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutbox(genID *snowflake.Node, c clock.Clock) *Outbox {
	return &Outbox{genID: genID, clock: c}
}

// Append records payloads for a delivery in the given order. Appending the
// same event type twice for a delivery is a no-op.
func (o *Outbox) Append(ctx context.Context, db *gorm.DB, deliveryID snowflake.ID, occurredAt time.Time, payloads ...Payload) ([]Envelope, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	if occurredAt.IsZero() {
		occurredAt = o.clock.Now()
	}

	rows := make([]OutboxEvent, 0, len(payloads))
	for i, payload := range payloads {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		rows = append(rows, OutboxEvent{
			ID:         o.genID.Generate(),
			DeliveryID: deliveryID,
			EventType:  payload.EventType(),
			Sequence:   i + 1,
			Payload:    datatypes.JSON(raw),
			OccurredAt: occurredAt,
			CreatedAt:  o.clock.Now(),
		})
	}

	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Envelope())
	}
	return out, nil
}

func (o *Outbox) ListUnpublished(ctx context.Context, db *gorm.DB, deliveryID snowflake.ID) ([]OutboxEvent, error) {
	var rows []OutboxEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, delivery_id, event_type, sequence, payload, occurred_at, published, published_at, attempts, last_error, created_at
		 FROM outbox_events
		 WHERE delivery_id = ? AND published = ?
		 ORDER BY sequence ASC`,
		deliveryID,
		false,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PendingDeliveries returns deliveries with unpublished events, oldest
// event first.
func (o *Outbox) PendingDeliveries(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT delivery_id
		 FROM outbox_events
		 WHERE published = ?
		 GROUP BY delivery_id
		 ORDER BY MIN(created_at) ASC, delivery_id ASC
		 LIMIT ?`,
		false,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (o *Outbox) CountPending(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM outbox_events WHERE published = ?`,
		false,
	).Scan(&count).Error
	return count, err
}

func (o *Outbox) MarkPublished(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	now := o.clock.Now()
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET published = ?, published_at = ?, attempts = attempts + 1, last_error = ''
		 WHERE id = ? AND published = ?`,
		true,
		now,
		id,
		false,
	).Error
}

func (o *Outbox) RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ? AND published = ?`,
		msg,
		id,
		false,
	).Error
}
