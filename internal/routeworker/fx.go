package routeworker

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("routeworker",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(RunWorker),
)

// RunWorker starts the automatic run loop when AutoRun is set. The manual
// process-next trigger works either way.
func RunWorker(lc fx.Lifecycle, cfg Config, worker *Worker) {
	if !cfg.AutoRun {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				defer close(done)
				worker.RunForever(ctx)
			}()

			lc.Append(fx.Hook{
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
					}
					return nil
				},
			})

			return nil
		},
	})
}
