package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recyclesim/internal/config"
	"go.uber.org/fx"
)

const (
	keyIntakeTruck = "recyclesim:ratelimit:intake:truck:%s"
	keyTrigger     = "recyclesim:ratelimit:trigger:process-next"
)

// IntakeLimiter throttles truck reports per truck and the manual
// process-next trigger. A nil limiter allows everything.
type IntakeLimiter struct {
	bucket *TokenBucket

	intakeRate   float64
	intakeBurst  int
	triggerRate  float64
	triggerBurst int
}

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewIntakeLimiter(p Params) (*IntakeLimiter, error) {
	cfg := p.Config.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}
	if p.Redis == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if cfg.IntakeRate <= 0 || cfg.IntakeBurst <= 0 {
		return nil, errors.New("intake rate limit must be positive")
	}
	if cfg.TriggerRate <= 0 || cfg.TriggerBurst <= 0 {
		return nil, errors.New("trigger rate limit must be positive")
	}
	return &IntakeLimiter{
		bucket:       NewTokenBucket(p.Redis),
		intakeRate:   cfg.IntakeRate,
		intakeBurst:  cfg.IntakeBurst,
		triggerRate:  cfg.TriggerRate,
		triggerBurst: cfg.TriggerBurst,
	}, nil
}

func (l *IntakeLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *IntakeLimiter) AllowTruck(ctx context.Context, truckID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	truckID = strings.TrimSpace(truckID)
	if truckID == "" {
		truckID = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIntakeTruck, truckID), l.intakeRate, l.intakeBurst)
}

func (l *IntakeLimiter) AllowTrigger(ctx context.Context) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyTrigger, l.triggerRate, l.triggerBurst)
}
