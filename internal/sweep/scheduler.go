// Package sweep drives the reassignment engine on a timer and on demand, and
// reports what the last run did.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/deadlines"
	"github.com/angelmondragon/onboarding-enforcer/internal/notifications"
	"github.com/angelmondragon/onboarding-enforcer/internal/reassignment"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	pkgerrors "github.com/angelmondragon/onboarding-enforcer/pkg/errors"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/angelmondragon/onboarding-enforcer/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval          = time.Minute
	defaultStaleClaimTimeout = 5 * time.Minute
	defaultConcurrency       = 4
)

var (
	// ErrSweepInProgress rejects a manual trigger while another sweep runs.
	ErrSweepInProgress = errors.New("sweep already in progress")
	// ErrSweepStillRunning is returned when a triggered sweep outlives the
	// caller's wait. The sweep itself keeps going.
	ErrSweepStillRunning = errors.New("sweep still running")
	ErrAlreadyStarted    = errors.New("scheduler already started")
	// ErrStopping rejects new sweeps while Stop waits for in-flight ones.
	ErrStopping = errors.New("sweep scheduler is stopping")
)

type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

type Health string

const (
	HealthOK       Health = "ok"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
	HealthStopped  Health = "stopped"
)

type matchStore interface {
	ListByStatuses(ctx context.Context, statuses ...enums.MatchStatus) ([]models.CandidateMatch, error)
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time) ([]models.CandidateMatch, error)
	FindRequest(ctx context.Context, id uuid.UUID) (*models.WorkerAssignmentRequest, error)
}

type evaluator interface {
	Evaluate(ctx context.Context, match models.CandidateMatch) (reassignment.Result, error)
}

type approachingChecker interface {
	Approaching(m models.CandidateMatch, now time.Time) (deadlines.Check, bool)
}

type warningDeduper interface {
	ShouldSend(ctx context.Context, matchID uuid.UUID, deadlineKind string) (bool, error)
}

// Params wires the scheduler. Lock, Deduper, Notifier and Metrics are optional.
type Params struct {
	Logger            *logger.Logger
	Store             matchStore
	Engine            evaluator
	Calculator        approachingChecker
	Notifier          notifications.Sink
	Deduper           warningDeduper
	Metrics           *metrics.SweepMetrics
	Lock              Lock
	Interval          time.Duration
	StaleClaimTimeout time.Duration
	Concurrency       int
	Warnings          bool
	Now               func() time.Time
}

// Result summarises one sweep.
type Result struct {
	SweepID            string      `json:"sweepId"`
	Trigger            TriggerKind `json:"trigger"`
	Health             Health      `json:"health"`
	StartedAt          time.Time   `json:"startedAt"`
	FinishedAt         time.Time   `json:"finishedAt"`
	DurationMS         int64       `json:"durationMs"`
	StaleClaimsCleared int         `json:"staleClaimsCleared"`
	Evaluated          int         `json:"evaluated"`
	NotDue             int         `json:"notDue"`
	ClaimConflicts     int         `json:"claimConflicts"`
	Reassigned         int         `json:"reassigned"`
	NoReplacementFound int         `json:"noReplacementFound"`
	Failed             int         `json:"failed"`
	WarningsSent       int         `json:"warningsSent"`
	Errors             []string    `json:"errors,omitempty"`
}

// Status is the scheduler's public state.
type Status struct {
	Running    bool       `json:"running"`
	Sweeping   bool       `json:"sweeping"`
	Interval   string     `json:"interval"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt  *time.Time `json:"nextRunAt,omitempty"`
	Health     Health     `json:"health"`
	LastError  string     `json:"lastError,omitempty"`
	LastResult *Result    `json:"lastResult,omitempty"`
}

// Scheduler runs at most one sweep at a time per instance. Timer ticks that
// land while a sweep is running are skipped, not queued.
type Scheduler struct {
	logg        *logger.Logger
	store       matchStore
	engine      evaluator
	calc        approachingChecker
	notifier    notifications.Sink
	deduper     warningDeduper
	metrics     *metrics.SweepMetrics
	lock        Lock
	interval    time.Duration
	staleAfter  time.Duration
	concurrency int
	warnings    bool
	now         func() time.Time

	sweeping atomic.Bool
	inflight sync.WaitGroup

	mu         sync.Mutex
	running    bool
	draining   bool
	baseCtx    context.Context
	cancel     context.CancelFunc
	loopDone   chan struct{}
	lastRunAt  *time.Time
	nextRunAt  *time.Time
	lastResult *Result
	lastError  string
}

func NewScheduler(params Params) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("match store required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("reassignment engine required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("deadline calculator required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	staleAfter := params.StaleClaimTimeout
	if staleAfter <= 0 {
		staleAfter = defaultStaleClaimTimeout
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Discard
	}
	deduper := params.Deduper
	if deduper == nil {
		deduper = notifications.NewDeduper(nil, 24*time.Hour)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		logg:        params.Logger,
		store:       params.Store,
		engine:      params.Engine,
		calc:        params.Calculator,
		notifier:    notifier,
		deduper:     deduper,
		metrics:     params.Metrics,
		lock:        params.Lock,
		interval:    interval,
		staleAfter:  staleAfter,
		concurrency: concurrency,
		warnings:    params.Warnings,
		now:         now,
	}, nil
}

// Start runs one sweep immediately and then one per interval until Stop or
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.baseCtx = loopCtx
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	done := s.loopDone
	s.mu.Unlock()

	s.logg.Info(s.logg.WithField(ctx, "interval", s.interval.String()), "sweep scheduler started")
	go s.loop(loopCtx, done)
	return nil
}

// Stop cancels the timer loop and waits for in-flight sweeps to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.loopDone
	s.running = false
	s.draining = true
	s.baseCtx = nil
	s.nextRunAt = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.inflight.Wait()

	s.mu.Lock()
	s.draining = false
	s.mu.Unlock()
	s.logg.Info(context.Background(), "sweep scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	next := s.now().UTC().Add(s.interval)
	s.mu.Lock()
	s.nextRunAt = &next
	s.mu.Unlock()

	if err := s.begin(); err != nil {
		s.logg.Info(s.logg.WithField(ctx, "reason", err.Error()), "skipping tick")
		return
	}
	sweepID := uuid.NewString()
	go func() {
		defer s.inflight.Done()
		if s.lock != nil {
			holder, locked, err := s.lock.Acquire(ctx, sweepID)
			if err != nil {
				s.sweeping.Store(false)
				s.logg.Error(ctx, "sweep lock acquire failed", err)
				return
			}
			if !locked {
				s.sweeping.Store(false)
				s.logg.Info(s.logg.WithField(ctx, "held_by", holder), "another instance is sweeping; skipping tick")
				return
			}
			defer func() {
				if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
					s.logg.Error(ctx, "sweep lock release failed", err)
				}
			}()
		}
		_, _ = s.sweep(ctx, TriggerScheduled, sweepID)
	}()
}

// RunOnce performs a sweep on the caller's goroutine.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	if err := s.begin(); err != nil {
		return Result{}, err
	}
	defer s.inflight.Done()
	return s.sweep(ctx, TriggerManual, uuid.NewString())
}

// Trigger starts a sweep detached from the caller and waits up to timeout
// for it. A sweep already running rejects the trigger with
// ErrSweepInProgress; a sweep outliving the wait yields ErrSweepStillRunning
// and finishes in the background.
func (s *Scheduler) Trigger(ctx context.Context, timeout time.Duration) (Result, error) {
	if err := s.begin(); err != nil {
		return Result{}, err
	}

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	runCtx, release := s.detached(ctx)
	go func() {
		defer s.inflight.Done()
		defer release()
		res, err := s.sweep(runCtx, TriggerManual, uuid.NewString())
		done <- outcome{result: res, err: err}
	}()

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return out.result, out.err
	case <-timer.C:
		return Result{}, ErrSweepStillRunning
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: %w", ErrSweepStillRunning, ctx.Err())
	}
}

// begin claims the sweeping flag and registers the sweep with inflight. It
// runs under mu so no Add can race the Wait in Stop.
func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return ErrStopping
	}
	if !s.sweeping.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	s.inflight.Add(1)
	return nil
}

// detached keeps the caller's log fields but ties cancellation to the
// scheduler's lifetime rather than the caller's.
func (s *Scheduler) detached(ctx context.Context) (context.Context, func()) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if base == nil {
		return runCtx, cancel
	}
	stop := context.AfterFunc(base, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:   s.running,
		Sweeping:  s.sweeping.Load(),
		Interval:  s.interval.String(),
		LastRunAt: copyTime(s.lastRunAt),
		NextRunAt: copyTime(s.nextRunAt),
		LastError: s.lastError,
		Health:    HealthOK,
	}
	if s.lastResult != nil {
		res := *s.lastResult
		st.LastResult = &res
		st.Health = res.Health
	}
	if !s.running {
		st.Health = HealthStopped
	}
	return st
}

// sweep assumes the caller already won the sweeping flag and, for scheduled
// sweeps, holds the lock under sweepID.
func (s *Scheduler) sweep(ctx context.Context, trigger TriggerKind, sweepID string) (Result, error) {
	defer s.sweeping.Store(false)
	s.metrics.SetInProgress(true)
	defer s.metrics.SetInProgress(false)

	started := s.now().UTC()
	res := Result{
		SweepID:   sweepID,
		Trigger:   trigger,
		StartedAt: started,
	}
	ctx = s.logg.WithSweepID(ctx, res.SweepID)
	ctx = s.logg.WithField(ctx, "trigger", string(trigger))
	s.logg.Info(ctx, "sweep start")

	var errs []error
	fatal := false

	released, err := s.store.ReleaseStaleClaims(ctx, started.Add(-s.staleAfter))
	if err != nil {
		errs = append(errs, fmt.Errorf("release stale claims: %w", err))
	}
	for _, m := range released {
		fields := map[string]any{"match_id": m.ID.String(), "status": string(m.Status)}
		if m.ClaimToken != nil {
			fields["claim_token"] = *m.ClaimToken
		}
		if m.ClaimedAt != nil {
			fields["claimed_at"] = m.ClaimedAt.UTC().Format(time.RFC3339)
		}
		s.logg.Warn(s.logg.WithFields(ctx, fields), "released stale claim")
	}
	res.StaleClaimsCleared = len(released)
	s.metrics.AddStaleReleased(len(released))

	candidates, err := s.store.ListByStatuses(ctx, enums.SweepableMatchStatuses...)
	if err != nil {
		errs = append(errs, fmt.Errorf("list sweepable matches: %w", err))
		fatal = true
	}
	res.Evaluated = len(candidates)

	var pending []models.CandidateMatch
	if !fatal {
		var evalErrs []error
		pending, evalErrs = s.evaluateAll(ctx, candidates, &res)
		errs = append(errs, evalErrs...)
		if s.warnings {
			errs = append(errs, s.sendWarnings(ctx, pending, &res)...)
		}
	}

	finished := s.now().UTC()
	res.FinishedAt = finished
	res.DurationMS = finished.Sub(started).Milliseconds()
	switch {
	case fatal:
		res.Health = HealthFailed
	case len(errs) > 0:
		res.Health = HealthDegraded
	default:
		res.Health = HealthOK
	}
	for _, e := range errs {
		res.Errors = append(res.Errors, e.Error())
	}
	combined := multierr.Combine(errs...)

	s.record(res, combined)
	s.metrics.ObserveSweep(string(trigger), string(res.Health), finished.Sub(started))
	s.metrics.AddOutcome(string(reassignment.OutcomeNotDue), res.NotDue)
	s.metrics.AddOutcome(string(reassignment.OutcomeClaimConflict), res.ClaimConflicts)
	s.metrics.AddOutcome(string(reassignment.OutcomeReassigned), res.Reassigned)
	s.metrics.AddOutcome(string(reassignment.OutcomeNoReplacement), res.NoReplacementFound)
	s.metrics.AddOutcome("failed", res.Failed)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"health":          string(res.Health),
		"evaluated":       res.Evaluated,
		"reassigned":      res.Reassigned,
		"no_replacement":  res.NoReplacementFound,
		"claim_conflicts": res.ClaimConflicts,
		"failed":          res.Failed,
		"stale_cleared":   res.StaleClaimsCleared,
		"warnings_sent":   res.WarningsSent,
		"duration_ms":     res.DurationMS,
	})
	if combined != nil {
		logCtx = s.logg.WithField(logCtx, "error_dump", pkgerrors.Dump(combined))
		s.logg.Error(logCtx, "sweep complete with errors", combined)
	} else {
		s.logg.Info(logCtx, "sweep complete")
	}
	return res, combined
}

// evaluateAll fans the matches out to the engine. A failing match is logged
// and counted; the others still run. It returns the matches left untouched
// so warnings can be considered for them.
func (s *Scheduler) evaluateAll(ctx context.Context, candidates []models.CandidateMatch, res *Result) ([]models.CandidateMatch, []error) {
	var (
		mu      sync.Mutex
		errs    []error
		pending []models.CandidateMatch
	)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, m := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := s.evaluateOne(ctx, m)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				errs = append(errs, err)
				return nil
			}
			switch out.Outcome {
			case reassignment.OutcomeNotDue:
				res.NotDue++
				pending = append(pending, m)
			case reassignment.OutcomeClaimConflict:
				res.ClaimConflicts++
			case reassignment.OutcomeReassigned:
				res.Reassigned++
			case reassignment.OutcomeNoReplacement:
				res.NoReplacementFound++
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("sweep interrupted: %w", err))
	}
	return pending, errs
}

func (s *Scheduler) evaluateOne(ctx context.Context, m models.CandidateMatch) (out reassignment.Result, err error) {
	matchCtx := s.logg.WithMatchID(ctx, m.ID.String())
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate match %s: panic: %v", m.ID, r)
			s.logg.Error(matchCtx, "match evaluation panicked", err)
		}
	}()
	out, err = s.engine.Evaluate(ctx, m)
	if err == nil {
		return out, nil
	}
	dump := pkgerrors.Dump(err)
	if dump.PGCode != "" {
		matchCtx = s.logg.WithField(matchCtx, "pg_code", dump.PGCode)
	}
	switch {
	case dump.ClaimLost:
		s.logg.Warn(s.logg.WithField(matchCtx, "error", err.Error()), "claim lost mid-evaluation; another sweep owns the match")
	case db.IsTransient(err):
		s.logg.Warn(s.logg.WithField(matchCtx, "error", err.Error()), "transient failure; match will be retried next sweep")
	default:
		s.logg.Error(matchCtx, "match evaluation failed", err)
	}
	return out, err
}

func (s *Scheduler) sendWarnings(ctx context.Context, pending []models.CandidateMatch, res *Result) []error {
	var errs []error
	now := s.now().UTC()
	requests := map[uuid.UUID]*models.WorkerAssignmentRequest{}
	for _, m := range pending {
		check, ok := s.calc.Approaching(m, now)
		if !ok {
			continue
		}
		send, err := s.deduper.ShouldSend(ctx, m.ID, string(check.Kind))
		if err != nil {
			errs = append(errs, fmt.Errorf("dedupe warning for match %s: %w", m.ID, err))
			continue
		}
		if !send {
			continue
		}
		req, ok := requests[m.RequestID]
		if !ok {
			req, err = s.store.FindRequest(ctx, m.RequestID)
			if err != nil {
				errs = append(errs, fmt.Errorf("load request %s for warning: %w", m.RequestID, err))
				continue
			}
			requests[m.RequestID] = req
		}
		s.notifier.Notify(ctx, notifications.Notification{
			Kind:          enums.NotificationKindDeadlineWarning,
			TenantID:      m.TenantID,
			RequestID:     m.RequestID,
			RequestNumber: req.RequestNumber,
			JobTitle:      req.JobTitle,
			PositionCount: req.PositionCount,
			MatchID:       m.ID,
			WorkerID:      m.WorkerID,
			DeadlineKind:  string(check.Kind),
			Deadline:      check.Deadline,
			AttemptNumber: m.AttemptNumber,
			OccurredAt:    now,
		})
		res.WarningsSent++
	}
	return errs
}

func (s *Scheduler) record(res Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	finished := res.FinishedAt
	s.lastRunAt = &finished
	s.lastResult = &res
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
