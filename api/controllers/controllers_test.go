package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/onboarding-enforcer/internal/monitoring"
	"github.com/angelmondragon/onboarding-enforcer/internal/sweep"
	"github.com/angelmondragon/onboarding-enforcer/pkg/config"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	pkgerrors "github.com/angelmondragon/onboarding-enforcer/pkg/errors"
	"github.com/angelmondragon/onboarding-enforcer/pkg/pagination"
)

type stubSweeper struct {
	result      sweep.Result
	err         error
	gotTimeout  time.Duration
	triggerHits int
}

func (s *stubSweeper) Status() sweep.Status {
	return sweep.Status{Running: true, Health: sweep.HealthOK, Interval: "1m0s"}
}

func (s *stubSweeper) Trigger(ctx context.Context, timeout time.Duration) (sweep.Result, error) {
	s.triggerHits++
	s.gotTimeout = timeout
	return s.result, s.err
}

type stubMonitor struct {
	filter monitoring.Filter
	window time.Duration
	params pagination.Params
	err    error
}

func (m *stubMonitor) ListApproachingDeadlines(ctx context.Context, filter monitoring.Filter) (monitoring.Approaching, error) {
	m.filter = filter
	return monitoring.Approaching{Application: []monitoring.DeadlineView{{MatchID: uuid.New()}}, Assignment: []monitoring.DeadlineView{}}, m.err
}

func (m *stubMonitor) ListOverdue(ctx context.Context, filter monitoring.Filter) (monitoring.Overdue, error) {
	m.filter = filter
	return monitoring.Overdue{Applications: []monitoring.DeadlineView{}, Assignments: []monitoring.DeadlineView{}}, m.err
}

func (m *stubMonitor) ListRecentReassignments(ctx context.Context, window time.Duration, params pagination.Params) (monitoring.ReassignmentPage, error) {
	m.window = window
	m.params = params
	return monitoring.ReassignmentPage{Events: []monitoring.EventView{}}, m.err
}

type stubMatches struct {
	err   error
	gotTo enums.MatchStatus
}

func (s *stubMatches) CreateInitialMatch(ctx context.Context, requestID, workerID uuid.UUID) (*models.CandidateMatch, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.CandidateMatch{ID: uuid.New(), RequestID: requestID, WorkerID: workerID, Status: enums.MatchStatusProposed, AttemptNumber: 1}, nil
}

func (s *stubMatches) Advance(ctx context.Context, id uuid.UUID, to enums.MatchStatus) (*models.CandidateMatch, error) {
	s.gotTo = to
	if s.err != nil {
		return nil, s.err
	}
	return &models.CandidateMatch{ID: id, Status: to}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data  map[string]any `json:"data"`
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	if body.Error != nil {
		return body.Error
	}
	return body.Data
}

func TestTriggerSweepCompleted(t *testing.T) {
	sweeper := &stubSweeper{result: sweep.Result{SweepID: "s1", Reassigned: 2, Health: sweep.HealthOK}}
	rec := httptest.NewRecorder()
	TriggerSweep(sweeper, 30*time.Second, nil)(rec, httptest.NewRequest(http.MethodPost, "/trigger?timeout=10s", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10*time.Second, sweeper.gotTimeout)
	data := decodeData(t, rec)
	assert.Equal(t, "s1", data["sweepId"])
	assert.EqualValues(t, 2, data["reassigned"])
}

func TestTriggerSweepStillRunning(t *testing.T) {
	sweeper := &stubSweeper{err: sweep.ErrSweepStillRunning}
	rec := httptest.NewRecorder()
	TriggerSweep(sweeper, 30*time.Second, nil)(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 30*time.Second, sweeper.gotTimeout)
	assert.Equal(t, true, decodeData(t, rec)["running"])
}

func TestTriggerSweepInProgress(t *testing.T) {
	sweeper := &stubSweeper{err: sweep.ErrSweepInProgress}
	rec := httptest.NewRecorder()
	TriggerSweep(sweeper, 30*time.Second, nil)(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeSweepInProgress), decodeData(t, rec)["code"])
}

func TestTriggerSweepFailed(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("list sweepable matches: boom"), result: sweep.Result{Health: sweep.HealthFailed}}
	rec := httptest.NewRecorder()
	TriggerSweep(sweeper, 30*time.Second, nil)(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerSweepDegradedIsAResult(t *testing.T) {
	sweeper := &stubSweeper{
		err:    errors.New("evaluate match: connection reset by peer"),
		result: sweep.Result{SweepID: "s-1", Health: sweep.HealthDegraded, Evaluated: 10, Reassigned: 9, Failed: 1},
	}
	rec := httptest.NewRecorder()
	TriggerSweep(sweeper, 30*time.Second, nil)(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "degraded", data["health"])
	assert.EqualValues(t, 9, data["reassigned"])
	assert.EqualValues(t, 1, data["failed"])
}

func TestTriggerSweepRejectsBadTimeout(t *testing.T) {
	sweeper := &stubSweeper{}
	rec := httptest.NewRecorder()
	TriggerSweep(sweeper, 30*time.Second, nil)(rec, httptest.NewRequest(http.MethodPost, "/trigger?timeout=1h", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, sweeper.triggerHits)
}

func TestSweepStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	SweepStatus(&stubSweeper{})(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, true, data["running"])
	assert.Equal(t, "ok", data["health"])
}

func TestDeadlineProjectionsPassTenantFilter(t *testing.T) {
	monitor := &stubMonitor{}
	tenant := uuid.New()

	rec := httptest.NewRecorder()
	ApproachingDeadlines(monitor, nil)(rec, httptest.NewRequest(http.MethodGet, "/approaching?tenantId="+tenant.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, monitor.filter.TenantID)
	assert.Equal(t, tenant, *monitor.filter.TenantID)
	data := decodeData(t, rec)
	assert.Len(t, data["application"], 1)

	rec = httptest.NewRecorder()
	OverdueDeadlines(monitor, nil)(rec, httptest.NewRequest(http.MethodGet, "/overdue?tenantId=bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentReassignmentsParsesQuery(t *testing.T) {
	monitor := &stubMonitor{}
	rec := httptest.NewRecorder()
	RecentReassignments(monitor, nil)(rec, httptest.NewRequest(http.MethodGet, "/reassignments?window=6h&limit=10&cursor=abc", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6*time.Hour, monitor.window)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, monitor.params)
}

func TestRecentReassignmentsPropagatesTypedErrors(t *testing.T) {
	monitor := &stubMonitor{err: pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")}
	rec := httptest.NewRecorder()
	RecentReassignments(monitor, nil)(rec, httptest.NewRequest(http.MethodGet, "/reassignments", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, monitoring.DefaultWindow, monitor.window)
}

func TestCreateMatch(t *testing.T) {
	svc := &stubMatches{}
	requestID := uuid.New()
	workerID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"workerId":"`+workerID.String()+`"}`))
	req = withURLParam(req, "requestId", requestID.String())
	rec := httptest.NewRecorder()
	CreateMatch(svc, nil)(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, requestID.String(), data["requestId"])
	assert.Equal(t, workerID.String(), data["workerId"])
	assert.Equal(t, "proposed", data["status"])
}

func TestCreateMatchConflict(t *testing.T) {
	svc := &stubMatches{err: pkgerrors.New(pkgerrors.CodeConflict, "request already has a live match")}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"workerId":"`+uuid.NewString()+`"}`))
	req = withURLParam(req, "requestId", uuid.NewString())
	rec := httptest.NewRecorder()
	CreateMatch(svc, nil)(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdvanceMatch(t *testing.T) {
	svc := &stubMatches{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"applied"}`))
	req = withURLParam(req, "matchId", uuid.NewString())
	rec := httptest.NewRecorder()
	AdvanceMatch(svc, nil)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.MatchStatusApplied, svc.gotTo)
}

func TestAdvanceMatchRejectsSweepOwnedStatuses(t *testing.T) {
	svc := &stubMatches{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"reassigned"}`))
	req = withURLParam(req, "matchId", uuid.NewString())
	rec := httptest.NewRecorder()
	AdvanceMatch(svc, nil)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.gotTo)
}

func TestAdvanceMatchStateConflict(t *testing.T) {
	svc := &stubMatches{err: pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed")}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"active"}`))
	req = withURLParam(req, "matchId", uuid.NewString())
	rec := httptest.NewRecorder()
	AdvanceMatch(svc, nil)(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, stubPinger{}, nil)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get(envHeader))
	checks := decodeData(t, rec)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["db"])
	assert.Equal(t, "skipped", checks["redis"])

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, stubPinger{}, stubPinger{err: errors.New("dial tcp")})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
