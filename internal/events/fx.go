package events

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recyclesim/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TransportLog   = "log"
	TransportRedis = "redis"
)

var Module = fx.Module("events",
	fx.Provide(provideConfig),
	fx.Provide(NewOutbox),
	fx.Provide(NewLocalPublisher),
	fx.Provide(providePublisher),
	fx.Provide(NewDispatcher),
	fx.Invoke(RunRelay),
)

func provideConfig(cfg config.Config) config.EventsConfig {
	return cfg.Events
}

type publisherParams struct {
	fx.In

	Config config.EventsConfig
	Log    *zap.Logger
	Local  *LocalPublisher
	Redis  *redis.Client `optional:"true"`
}

// providePublisher fans out to in-process consumers first, then to the
// configured transport.
func providePublisher(p publisherParams) (Publisher, error) {
	switch p.Config.Transport {
	case "", TransportLog:
		return MultiPublisher{p.Local, NewLogPublisher(p.Log)}, nil
	case TransportRedis:
		stream, err := NewRedisStreamPublisher(p.Redis, p.Config.Stream, p.Config.StreamMaxLen)
		if err != nil {
			return nil, err
		}
		return MultiPublisher{p.Local, stream}, nil
	default:
		return nil, fmt.Errorf("unsupported events transport %q", p.Config.Transport)
	}
}
