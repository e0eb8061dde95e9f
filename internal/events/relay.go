package events

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/recyclesim/internal/config"
	obscontext "github.com/smallbiznis/recyclesim/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RunRelay republishes events whose first publish attempt failed or whose
// process died between commit and publish.
func RunRelay(lc fx.Lifecycle, cfg config.EventsConfig, dispatcher *Dispatcher, log *zap.Logger) {
	if !cfg.RelayEnabled {
		return
	}
	interval := cfg.RelayInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log = log.Named("events.relay")

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
					}
					tickCtx, _ := obscontext.EnsureCorrelationID(ctx)
					n, err := dispatcher.DispatchPending(tickCtx, cfg.RelayBatchSize)
					if err != nil && !errors.Is(err, context.Canceled) {
						log.Warn("events.relay.failed", zap.Int("published", n), zap.Error(err))
						continue
					}
					if n > 0 {
						log.Info("events.relay.published", zap.Int("published", n))
					}
				}
			}()

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					<-done
					return nil
				},
			})
			return nil
		},
	})
}
