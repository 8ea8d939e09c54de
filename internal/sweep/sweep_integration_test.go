package sweep

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/candidates"
	"github.com/angelmondragon/onboarding-enforcer/internal/deadlines"
	"github.com/angelmondragon/onboarding-enforcer/internal/matches"
	"github.com/angelmondragon/onboarding-enforcer/internal/notifications"
	"github.com/angelmondragon/onboarding-enforcer/internal/reassignment"
	"github.com/angelmondragon/onboarding-enforcer/pkg/businessdays"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/dbtest"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepEndToEnd(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := matches.NewRepository(conn)
	logg := logger.New(logger.Options{ServiceName: "sweep-e2e", Output: io.Discard})
	calc, err := deadlines.NewCalculator(deadlines.Params{Calendar: businessdays.New()})
	require.NoError(t, err)
	// Thursday 10:00.
	now := time.Date(2024, time.June, 6, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	newRequest := func() *models.WorkerAssignmentRequest {
		req := &models.WorkerAssignmentRequest{
			ID:            uuid.New(),
			TenantID:      uuid.New(),
			RequestNumber: "WR-" + uuid.NewString()[:6],
			JobTitle:      "Line Cook",
			Status:        enums.RequestStatusOpen,
		}
		require.NoError(t, repo.CreateRequest(ctx, req))
		return req
	}
	newMatch := func(req *models.WorkerAssignmentRequest, status enums.MatchStatus, createdAt time.Time) *models.CandidateMatch {
		d, err := calc.Compute(createdAt)
		require.NoError(t, err)
		m := &models.CandidateMatch{
			ID:                           uuid.New(),
			TenantID:                     req.TenantID,
			RequestID:                    req.ID,
			WorkerID:                     uuid.New(),
			Status:                       status,
			AttemptNumber:                1,
			ApplicationDeadline:          d.Application,
			AssignmentOnboardingDeadline: d.AssignmentOnboarding,
			CreatedAt:                    createdAt,
		}
		require.NoError(t, repo.CreateMatch(ctx, m))
		return m
	}

	// Created Monday 09:00: application deadline Thursday 09:00, overdue.
	withReplacement := newRequest()
	overdueA := newMatch(withReplacement, enums.MatchStatusApplied, time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, conn.Create(&models.CandidateSuggestion{
		ID:        uuid.New(),
		RequestID: withReplacement.ID,
		WorkerID:  uuid.New(),
		Score:     decimal.RequireFromString("0.800"),
		Status:    enums.SuggestionStatusSuggested,
		CreatedAt: now,
	}).Error)

	exhausted := newRequest()
	overdueB := newMatch(exhausted, enums.MatchStatusProposed, time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC))

	// Created Tuesday 12:00: application deadline Friday 12:00, approaching.
	warned := newRequest()
	approaching := newMatch(warned, enums.MatchStatusApplied, time.Date(2024, time.June, 4, 12, 0, 0, 0, time.UTC))

	// Onboarding status is never enforced.
	ignored := newRequest()
	newMatch(ignored, enums.MatchStatusOnboarding, time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC))

	sink := &sinkRecorder{}
	engine, err := reassignment.NewEngine(reassignment.EngineParams{
		Logger:     logg,
		DB:         db.FromGorm(conn),
		Repo:       repo,
		Pool:       candidates.NewPool(conn),
		Notifier:   sink,
		Calculator: calc,
		InstanceID: "e2e",
		Now:        clock,
	})
	require.NoError(t, err)

	s, err := NewScheduler(Params{
		Logger:      logg,
		Store:       repo,
		Engine:      engine,
		Calculator:  calc,
		Notifier:    sink,
		Deduper:     notifications.NewDeduper(nil, time.Hour),
		Concurrency: 1,
		Warnings:    true,
		Now:         clock,
	})
	require.NoError(t, err)

	approachingApp := approaching.ApplicationDeadline
	approachingOnboard := approaching.AssignmentOnboardingDeadline

	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthOK, res.Health)
	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, 1, res.Reassigned)
	assert.Equal(t, 1, res.NoReplacementFound)
	assert.Equal(t, 1, res.NotDue)
	assert.Equal(t, 1, res.WarningsSent)

	a, err := repo.FindByID(ctx, overdueA.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusReassigned, a.Status)
	successor, err := repo.FindLiveByRequest(ctx, withReplacement.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, successor.AttemptNumber)
	successorApp := successor.ApplicationDeadline
	successorOnboard := successor.AssignmentOnboardingDeadline

	b, err := repo.FindByID(ctx, overdueB.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusExpiredApplication, b.Status)

	c, err := repo.FindByID(ctx, approaching.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusApplied, c.Status)

	// A second sweep finds nothing new: the successor is fresh and the
	// warning is already recorded.
	res, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Reassigned)
	assert.Zero(t, res.NoReplacementFound)
	assert.Zero(t, res.WarningsSent)

	events, err := repo.ListEventsSince(ctx, now.Add(-time.Hour), nil, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// Deadlines are fixed at creation; neither sweep moves them.
	c, err = repo.FindByID(ctx, approaching.ID)
	require.NoError(t, err)
	assert.True(t, approachingApp.Equal(c.ApplicationDeadline), "application deadline moved: %s -> %s", approachingApp, c.ApplicationDeadline)
	assert.True(t, approachingOnboard.Equal(c.AssignmentOnboardingDeadline), "onboarding deadline moved: %s -> %s", approachingOnboard, c.AssignmentOnboardingDeadline)

	succ, err := repo.FindByID(ctx, successor.ID)
	require.NoError(t, err)
	assert.True(t, successorApp.Equal(succ.ApplicationDeadline), "successor application deadline moved")
	assert.True(t, successorOnboard.Equal(succ.AssignmentOnboardingDeadline), "successor onboarding deadline moved")
}
