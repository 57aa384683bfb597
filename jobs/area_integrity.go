package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/opsboard/opsboard/internal/areas"
	jobmetrics "github.com/opsboard/opsboard/internal/jobs"
)

// IntegrityChecker runs the area hierarchy scan.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) ([]areas.Violation, error)
}

// AreaIntegrityJob logs and counts area hierarchy violations.
type AreaIntegrityJob struct {
	Areas   IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAreaIntegrityJob wires dependencies for the integrity handler.
func NewAreaIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *AreaIntegrityJob {
	return &AreaIntegrityJob{Areas: checker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAreasIntegrity tasks. Finding violations is not a
// failure; failing to load the areas is.
func (j *AreaIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Areas == nil {
		return errors.New("areas integrity: handler not configured")
	}
	var payload AreasIntegrityPayload
	if err := decodePayload(t, &payload); err != nil {
		return fmt.Errorf("areas integrity: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAreasIntegrity)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskAreasIntegrity).With(slog.String("reason", payload.Reason))
	violations, err := j.Areas.CheckIntegrity(ctx)
	if err != nil {
		logger.Error("load areas", slog.Any("error", err))
		return err
	}

	counts := make(map[string]int)
	for _, v := range violations {
		counts[v.Rule]++
		logger.Warn("area tree violation",
			slog.Int64("area_id", v.AreaID),
			slog.String("path", v.Path),
			slog.String("rule", v.Rule),
			slog.String("detail", v.Detail))
	}
	j.Metrics.SetViolations(areas.Rules(), counts)
	logger.Info("area integrity scan completed", slog.Int("violations", len(violations)))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
