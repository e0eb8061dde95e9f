package lease

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "recyclesim:lease:"

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisManager keeps leases as expiring Redis keys. It is shared by every
// worker process pointed at the same Redis.
type RedisManager struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisManager(client *redis.Client) (*RedisManager, error) {
	if client == nil {
		return nil, errors.New("lease redis client not configured")
	}
	return &RedisManager{
		client: client,
		script: redis.NewScript(releaseScript),
	}, nil
}

func (m *RedisManager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	key, err := validate(key, ttl)
	if err != nil {
		return Lease{}, false, err
	}

	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return Lease{}, false, err
	}
	if !ok {
		return Lease{}, false, nil
	}
	return Lease{Key: key, Token: token, ExpiresAt: time.Now().Add(ttl)}, true, nil
}

func (m *RedisManager) Release(ctx context.Context, lease Lease) error {
	if lease.Key == "" || lease.Token == "" {
		return nil
	}
	return m.script.Run(ctx, m.client, []string{keyPrefix + lease.Key}, lease.Token).Err()
}
