package lease

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
)

var Module = fx.Module("lease",
	fx.Provide(NewManager),
)

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Clock  clock.Clock
	Redis  *redis.Client `optional:"true"`
}

func NewManager(p Params) (Manager, error) {
	switch p.Config.Lease.Backend {
	case "", BackendSQL:
		return NewSQLManager(p.DB, p.Clock), nil
	case BackendRedis:
		return NewRedisManager(p.Redis)
	default:
		return nil, fmt.Errorf("unsupported lease backend %q", p.Config.Lease.Backend)
	}
}
