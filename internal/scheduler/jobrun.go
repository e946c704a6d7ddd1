package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	obslogger "github.com/smallbiznis/computeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/computeledger/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job. Nested calls (RunJob invoking a
// job function directly) share the outermost run.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	processed int
	failed    int
	log       *zap.Logger
}

type jobRunKey struct{}

func currentRun(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

// beginRun attaches a run to ctx unless one is already present. The bool
// reports whether the caller owns the run and must call finish.
func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if run := currentRun(ctx); run != nil {
		return ctx, run, false
	}
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: time.Now(),
	}
	ctx = obscontext.WithCorrelationID(ctx, run.runID)
	run.log = obslogger.WithContext(ctx, s.log).With(
		zap.String("job", job),
		zap.String("run_id", run.runID),
	)
	run.log.Info("scheduler.job.start", zap.Int("batch_size", batchSize))
	return context.WithValue(ctx, jobRunKey{}, run), run, true
}

func (r *jobRun) count(processed, failed int) {
	if processed > 0 {
		r.processed += processed
	}
	if failed > 0 {
		r.failed += failed
	}
}

// fail records err against the run and logs it with its scheduler
// classification. tenantID is optional.
func (r *jobRun) fail(msg, tenantID string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	r.failed++
	log := r.log
	if tenantID != "" {
		log = log.With(zap.String("tenant_id", tenantID))
	}
	log.Error(msg, append([]zap.Field{
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}, fields...)...)
}

func (r *jobRun) finish() {
	level := zap.InfoLevel
	if r.failed > 0 {
		level = zap.WarnLevel
	}
	r.log.Check(level, "scheduler.job.finish").Write(
		zap.Duration("duration", time.Since(r.startedAt)),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.failed),
	)
}

// cronLogger routes robfig/cron's internal logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
