package recycler

import (
	"github.com/smallbiznis/recyclesim/internal/recycler/repository"
	"github.com/smallbiznis/recyclesim/internal/recycler/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recycler.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.NewLedger),
	fx.Provide(service.New),
)
