package routeworker

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/recyclesim/internal/observability/context"
	obslogger "github.com/smallbiznis/recyclesim/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recyclesim/internal/observability/metrics"
	"go.uber.org/zap"
)

type workerRun struct {
	runID     string
	trigger   string
	startedAt time.Time
	skipped   int
}

func (w *Worker) startRun(ctx context.Context, trigger string) (context.Context, *workerRun) {
	if trigger == "" {
		trigger = TriggerManual
	}
	run := &workerRun{
		runID:     w.genID.Generate().String(),
		trigger:   trigger,
		startedAt: time.Now(),
	}
	if kind, _ := obscontext.ActorFromContext(ctx); kind == "" {
		ctx = obscontext.WithActor(ctx, "system", "routeworker")
	}
	ctx, _ = obscontext.EnsureCorrelationID(ctx)
	w.logger(ctx).Debug("routeworker.run.start",
		zap.String("run_id", run.runID),
		zap.String("trigger", run.trigger),
	)
	return ctx, run
}

func (w *Worker) finishRun(ctx context.Context, run *workerRun, res RunResult, err error) {
	elapsed := time.Since(run.startedAt)
	fields := []zap.Field{
		zap.String("run_id", run.runID),
		zap.String("trigger", run.trigger),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Int("lease_skipped", run.skipped),
	}
	if res.DeliveryID != 0 {
		fields = append(fields, zap.String("delivery_id", res.DeliveryID.String()))
	}

	log := w.logger(ctx)
	if err != nil {
		w.metrics.ObserveWorkerRun(obsmetrics.RunResultError, run.trigger, elapsed)
		w.metrics.IncError("routeworker", err)
		fields = append(fields,
			zap.String("error_type", obsmetrics.ClassifyErrorReason(err)),
			zap.Error(err),
		)
		log.Warn("routeworker.run.finish", fields...)
		return
	}

	w.metrics.ObserveWorkerRun(res.Status, run.trigger, elapsed)
	fields = append(fields, zap.String("result", res.Status))
	if res.Settlement != nil {
		fields = append(fields,
			zap.String("outcome", string(res.Settlement.Status)),
			zap.Bool("replayed", res.Settlement.Replayed),
		)
		if code := res.Settlement.ReasonCode(); code != "" {
			fields = append(fields, zap.String("reason", code))
		}
	}
	if res.Status == StatusNoWork {
		log.Debug("routeworker.run.finish", fields...)
		return
	}
	log.Info("routeworker.run.finish", fields...)
}

func (w *Worker) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, w.log)
}
