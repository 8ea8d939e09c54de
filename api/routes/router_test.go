package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/onboarding-enforcer/internal/monitoring"
	"github.com/angelmondragon/onboarding-enforcer/internal/sweep"
	"github.com/angelmondragon/onboarding-enforcer/pkg/config"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/angelmondragon/onboarding-enforcer/pkg/metrics"
	"github.com/angelmondragon/onboarding-enforcer/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubSweeper struct{}

func (stubSweeper) Status() sweep.Status { return sweep.Status{Health: sweep.HealthStopped} }

func (stubSweeper) Trigger(ctx context.Context, timeout time.Duration) (sweep.Result, error) {
	return sweep.Result{}, sweep.ErrSweepInProgress
}

type stubMonitor struct{}

func (stubMonitor) ListApproachingDeadlines(context.Context, monitoring.Filter) (monitoring.Approaching, error) {
	return monitoring.Approaching{}, nil
}

func (stubMonitor) ListOverdue(context.Context, monitoring.Filter) (monitoring.Overdue, error) {
	return monitoring.Overdue{}, nil
}

func (stubMonitor) ListRecentReassignments(context.Context, time.Duration, pagination.Params) (monitoring.ReassignmentPage, error) {
	return monitoring.ReassignmentPage{}, nil
}

type stubMatches struct{}

func (stubMatches) CreateInitialMatch(ctx context.Context, requestID, workerID uuid.UUID) (*models.CandidateMatch, error) {
	return &models.CandidateMatch{ID: uuid.New(), RequestID: requestID, WorkerID: workerID, Status: enums.MatchStatusProposed}, nil
}

func (stubMatches) Advance(ctx context.Context, id uuid.UUID, to enums.MatchStatus) (*models.CandidateMatch, error) {
	return &models.CandidateMatch{ID: id, Status: to}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	sm := metrics.NewSweepMetrics(reg)
	sm.ObserveSweep("manual", "ok", time.Second)

	return NewRouter(RouterParams{
		Config:   &config.Config{App: config.AppConfig{Env: "test"}},
		Logger:   logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		DB:       stubPinger{},
		Sweeper:  stubSweeper{},
		Monitor:  stubMonitor{},
		Matches:  stubMatches{},
		Gatherer: reg,
	})
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health/live", "", http.StatusOK},
		{http.MethodGet, "/health/ready", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/background-jobs/status", "", http.StatusOK},
		{http.MethodPost, "/api/admin/v1/background-jobs/trigger", "", http.StatusConflict},
		{http.MethodGet, "/api/admin/v1/background-jobs/deadlines/approaching", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/background-jobs/deadlines/overdue", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/background-jobs/reassignments?window=1h", "", http.StatusOK},
		{http.MethodPost, "/api/v1/requests/" + uuid.NewString() + "/matches", `{"workerId":"` + uuid.NewString() + `"}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/matches/" + uuid.NewString() + "/status", `{"status":"applied"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/matches/not-a-uuid/status", `{"status":"applied"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/admin/v1/background-jobs/trigger", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
		})
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	h := newTestRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "onboarding_sweep_runs_total")
}
