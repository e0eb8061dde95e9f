package settlement

import "go.uber.org/fx"

var Module = fx.Module("settlement",
	fx.Provide(NewEngine),
)
