package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher delivers one envelope to the bus. A nil error is the transport's
// acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Handler is an in-process consumer. Handlers see every event at least once
// and must tolerate duplicates.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

type HandlerFunc func(ctx context.Context, env Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error { return f(ctx, env) }

type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events.log")}
}

func (p *LogPublisher) Publish(ctx context.Context, env Envelope) error {
	p.log.Info("events.published",
		zap.String("event_id", env.EventID),
		zap.String("delivery_id", env.DeliveryID),
		zap.String("event_type", env.Type),
		zap.Int("sequence", env.Sequence),
		zap.ByteString("payload", env.Payload),
	)
	return nil
}

// RedisStreamPublisher appends envelopes to a Redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) (*RedisStreamPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client not configured")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, errors.New("redis stream name is empty")
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}, nil
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":    env.EventID,
			"delivery_id": env.DeliveryID,
			"type":        env.Type,
			"sequence":    env.Sequence,
			"envelope":    string(body),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// LocalPublisher hands envelopes to in-process handlers registered per
// event type.
type LocalPublisher struct {
	handlers map[string][]Handler
}

func NewLocalPublisher() *LocalPublisher {
	return &LocalPublisher{handlers: make(map[string][]Handler)}
}

func (p *LocalPublisher) Subscribe(eventType string, h Handler) {
	p.handlers[eventType] = append(p.handlers[eventType], h)
}

func (p *LocalPublisher) Publish(ctx context.Context, env Envelope) error {
	for _, h := range p.handlers[env.Type] {
		if err := h.Handle(ctx, env); err != nil {
			return fmt.Errorf("handle %s: %w", env.Type, err)
		}
	}
	return nil
}

// MultiPublisher publishes to every target in order and fails on the first
// error, so the event stays unpublished and is retried on all targets.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, env Envelope) error {
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
