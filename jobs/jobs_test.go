package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/opsboard/internal/areas"
	jobmetrics "github.com/opsboard/opsboard/internal/jobs"
)

type stubChecker struct {
	violations []areas.Violation
	err        error
}

func (s stubChecker) CheckIntegrity(context.Context) ([]areas.Violation, error) {
	return s.violations, s.err
}

type stubWarmer struct {
	n   int
	err error
}

func (s stubWarmer) WarmTree(context.Context) (int, error) { return s.n, s.err }

func TestAreaIntegrityJobCountsViolations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewAreaIntegrityJob(stubChecker{violations: []areas.Violation{
		{AreaID: 4, Path: "DG.OPS.SEG", Rule: areas.RuleLevelDepth},
		{AreaID: 6, Path: "DG.OPS.SEG.FILTRO", Rule: areas.RuleLevelDepth},
		{AreaID: 9, Path: "DG.X", Rule: areas.RuleSiblingPrefix},
	}}, nil, metrics)

	task, err := NewAreasIntegrityTask("cron")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	expected := `
# HELP opsboard_area_tree_violations Area hierarchy violations found by the last integrity scan, by rule.
# TYPE opsboard_area_tree_violations gauge
opsboard_area_tree_violations{rule="duplicate_path"} 0
opsboard_area_tree_violations{rule="inactive_parent"} 0
opsboard_area_tree_violations{rule="level_depth"} 2
opsboard_area_tree_violations{rule="missing_parent"} 0
opsboard_area_tree_violations{rule="parent_prefix"} 0
opsboard_area_tree_violations{rule="sibling_prefix"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "opsboard_area_tree_violations"))
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP opsboard_jobs_total Total job executions partitioned by job name and status.
# TYPE opsboard_jobs_total counter
opsboard_jobs_total{job="areas:integrity",status="success"} 1
`), "opsboard_jobs_total"))
}

func TestAreaIntegrityJobFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	boom := errors.New("pg down")
	job := NewAreaIntegrityJob(stubChecker{err: boom}, nil, metrics)

	task, err := NewAreasIntegrityTask("manual")
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP opsboard_jobs_failures_total Total failures observed for background jobs.
# TYPE opsboard_jobs_failures_total counter
opsboard_jobs_failures_total{job="areas:integrity"} 1
`), "opsboard_jobs_failures_total"))
}

func TestAreaIntegrityJobRejectsBadPayload(t *testing.T) {
	job := NewAreaIntegrityJob(stubChecker{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAreasIntegrity, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *AreaIntegrityJob
	assert.Error(t, unconfigured.Handle(context.Background(), asynq.NewTask(TaskAreasIntegrity, nil)))
}

func TestAreaWarmJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	task, err := NewAreasWarmTask("area.create")
	require.NoError(t, err)
	assert.Equal(t, TaskAreasWarm, task.Type())

	warmed := `
# HELP opsboard_area_tree_cached_areas Active areas loaded by the last tree cache warm-up.
# TYPE opsboard_area_tree_cached_areas gauge
opsboard_area_tree_cached_areas 7
`
	require.NoError(t, NewAreaWarmJob(stubWarmer{n: 7}, nil, metrics).Handle(context.Background(), task))
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(warmed), "opsboard_area_tree_cached_areas"))

	err = NewAreaWarmJob(stubWarmer{err: errors.New("redis down")}, nil, metrics).Handle(context.Background(), task)
	assert.Error(t, err)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(warmed), "opsboard_area_tree_cached_areas"))
}

func TestTaskPayloads(t *testing.T) {
	task, err := NewAreasIntegrityTask("deploy")
	require.NoError(t, err)
	var payload AreasIntegrityPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "deploy", payload.Reason)

	_, err = (&Client{}).Enqueue(context.Background(), "mail:send", "")
	assert.Error(t, err)
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, fmt.Errorf("%w: %s", asynq.ErrQueueNotFound, queue)
	}
	return info, nil
}

func TestHealthHandler(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		res := httptest.NewRecorder()
		r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))
		return res
	}

	res := serve(NewHandler(stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueMaintenance: {Queue: QueueMaintenance, Pending: 3, Archived: 1},
	}}, nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[{"queue":"default","pending":0,"failed":0},{"queue":"maintenance","pending":3,"failed":1}]`, res.Body.String())

	res = serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)

	res = serve(NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, res.Code)
}
