package truck

import (
	"github.com/smallbiznis/recyclesim/internal/truck/repository"
	"github.com/smallbiznis/recyclesim/internal/truck/service"
	"go.uber.org/fx"
)

var Module = fx.Module("truck.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
