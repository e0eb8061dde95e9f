// Package lease hands out short-lived exclusive claims on a key. The route
// worker leases a delivery before settling it so two invocations never work
// on the same delivery at once.
package lease

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrEmptyKey   = errors.New("lease_key_empty")
	ErrInvalidTTL = errors.New("lease_ttl_invalid")
)

type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

type Manager interface {
	// TryAcquire claims key for ttl. ok is false when another holder has a
	// live lease on it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error)
	// Release gives up a lease. Releasing an expired or foreign lease is a
	// no-op.
	Release(ctx context.Context, lease Lease) error
}

func DeliveryKey(id snowflake.ID) string {
	return "delivery:" + id.String()
}

func validate(key string, ttl time.Duration) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	return key, nil
}
