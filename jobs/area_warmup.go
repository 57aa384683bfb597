package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/opsboard/opsboard/internal/jobs"
)

// TreeWarmer rebuilds the cached area tree and reports its size.
type TreeWarmer interface {
	WarmTree(ctx context.Context) (int, error)
}

// AreaWarmJob refreshes the area tree cache.
type AreaWarmJob struct {
	Areas   TreeWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewAreaWarmJob wires dependencies for the warm-up handler.
func NewAreaWarmJob(warmer TreeWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AreaWarmJob {
	return &AreaWarmJob{Areas: warmer, Logger: logger, Metrics: metrics, Timeout: 20 * time.Second}
}

// Handle processes TaskAreasWarm tasks.
func (j *AreaWarmJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Areas == nil {
		return errors.New("areas warm: handler not configured")
	}
	var payload AreasWarmPayload
	if err := decodePayload(t, &payload); err != nil {
		return fmt.Errorf("areas warm: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAreasWarm)
	defer func() { err = tracker.End(err) }()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	logger := jobLogger(j.Logger, TaskAreasWarm).With(slog.String("reason", payload.Reason))
	start := time.Now()
	n, err := j.Areas.WarmTree(ctx)
	if err != nil {
		logger.Error("warm area tree", slog.Any("error", err))
		return err
	}
	j.Metrics.SetWarmedAreas(n)
	logger.Info("area tree warmed", slog.Int("areas", n), slog.Duration("duration", time.Since(start)))
	return nil
}
