package config

import (
	"github.com/smallbiznis/recyclesim/internal/pricing"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPricingHolder),
	fx.Provide(func(h *PricingHolder) pricing.Provider { return h }),
)
