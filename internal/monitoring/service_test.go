package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/deadlines"
	"github.com/angelmondragon/onboarding-enforcer/internal/matches"
	"github.com/angelmondragon/onboarding-enforcer/pkg/businessdays"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/dbtest"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	pkgerrors "github.com/angelmondragon/onboarding-enforcer/pkg/errors"
	"github.com/angelmondragon/onboarding-enforcer/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Thursday.
var now = time.Date(2024, time.June, 6, 10, 0, 0, 0, time.UTC)

func day(d, h int) time.Time {
	return time.Date(2024, time.June, d, h, 0, 0, 0, time.UTC)
}

type fixture struct {
	repo matches.Repository
	calc *deadlines.Calculator
	svc  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := matches.NewRepository(dbtest.Open(t))
	calc, err := deadlines.NewCalculator(deadlines.Params{Calendar: businessdays.New()})
	require.NoError(t, err)
	svc, err := NewService(Params{Store: repo, Calculator: calc, Now: func() time.Time { return now }})
	require.NoError(t, err)
	return &fixture{repo: repo, calc: calc, svc: svc}
}

func (f *fixture) match(t *testing.T, tenant uuid.UUID, status enums.MatchStatus, createdAt time.Time) *models.CandidateMatch {
	t.Helper()
	ctx := context.Background()
	req := &models.WorkerAssignmentRequest{
		ID:            uuid.New(),
		TenantID:      tenant,
		RequestNumber: "WR-" + uuid.NewString()[:4],
		JobTitle:      "Picker",
		Status:        enums.RequestStatusOpen,
	}
	require.NoError(t, f.repo.CreateRequest(ctx, req))
	d, err := f.calc.Compute(createdAt)
	require.NoError(t, err)
	m := &models.CandidateMatch{
		ID:                           uuid.New(),
		TenantID:                     tenant,
		RequestID:                    req.ID,
		WorkerID:                     uuid.New(),
		Status:                       status,
		AttemptNumber:                1,
		ApplicationDeadline:          d.Application,
		AssignmentOnboardingDeadline: d.AssignmentOnboarding,
		CreatedAt:                    createdAt,
	}
	require.NoError(t, f.repo.CreateMatch(ctx, m))
	return m
}

func ids(views []DeadlineView) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(views))
	for _, v := range views {
		out = append(out, v.MatchID)
	}
	return out
}

func TestProjectionsPartitionByDeadlineKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenant := uuid.New()

	lateApplication := f.match(t, tenant, enums.MatchStatusApplied, day(3, 9))
	lateOnboarding := f.match(t, tenant, enums.MatchStatusAccepted, day(3, 9))
	soonApplication := f.match(t, tenant, enums.MatchStatusApplied, day(4, 12))
	soonOnboarding := f.match(t, tenant, enums.MatchStatusAccepted, day(5, 12))
	f.match(t, tenant, enums.MatchStatusProposed, day(6, 9))
	f.match(t, tenant, enums.MatchStatusOnboarding, day(1, 9))

	overdue, err := f.svc.ListOverdue(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{lateApplication.ID}, ids(overdue.Applications))
	assert.Equal(t, []uuid.UUID{lateOnboarding.ID}, ids(overdue.Assignments))
	assert.Equal(t, -1, overdue.Applications[0].BusinessDaysLeft)

	approaching, err := f.svc.ListApproachingDeadlines(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{soonApplication.ID}, ids(approaching.Application))
	assert.Equal(t, []uuid.UUID{soonOnboarding.ID}, ids(approaching.Assignment))
	assert.Equal(t, deadlines.KindOnboarding, approaching.Assignment[0].DeadlineKind)
	assert.True(t, approaching.Application[0].Deadline.Equal(day(7, 12)))
}

func TestProjectionsFilterByTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine, other := uuid.New(), uuid.New()
	f.match(t, mine, enums.MatchStatusApplied, day(3, 9))
	f.match(t, other, enums.MatchStatusApplied, day(3, 9))

	overdue, err := f.svc.ListOverdue(ctx, Filter{TenantID: &mine})
	require.NoError(t, err)
	require.Len(t, overdue.Applications, 1)
	assert.Equal(t, mine, overdue.Applications[0].TenantID)

	all, err := f.svc.ListOverdue(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all.Applications, 2)
}

func TestProjectionsAreEmptyNotNil(t *testing.T) {
	f := newFixture(t)
	overdue, err := f.svc.ListOverdue(context.Background(), Filter{})
	require.NoError(t, err)
	assert.NotNil(t, overdue.Applications)
	assert.NotNil(t, overdue.Assignments)
}

func TestListRecentReassignmentsPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenant := uuid.New()

	var want []uuid.UUID
	for i := 0; i < 3; i++ {
		e := &models.ReassignmentEvent{
			ID:             uuid.New(),
			TenantID:       tenant,
			RequestID:      uuid.New(),
			ExpiredMatchID: uuid.New(),
			Reason:         enums.ReassignmentReasonApplicationDeadlineMissed,
			OccurredAt:     now.Add(-time.Duration(i+1) * time.Hour),
		}
		require.NoError(t, f.repo.InsertEvent(ctx, e))
		want = append(want, e.ID)
	}
	// Outside the window.
	require.NoError(t, f.repo.InsertEvent(ctx, &models.ReassignmentEvent{
		TenantID:       tenant,
		RequestID:      uuid.New(),
		ExpiredMatchID: uuid.New(),
		Reason:         enums.ReassignmentReasonOnboardingDeadlineMissed,
		OccurredAt:     now.Add(-48 * time.Hour),
	}))

	first, err := f.svc.ListRecentReassignments(ctx, 24*time.Hour, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Events, 2)
	assert.Equal(t, want[0], first.Events[0].ID)
	assert.Equal(t, want[1], first.Events[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.ListRecentReassignments(ctx, 24*time.Hour, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Events, 1)
	assert.Equal(t, want[2], second.Events[0].ID)
	assert.Empty(t, second.NextCursor)
}

func TestListRecentReassignmentsValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListRecentReassignments(ctx, 60*24*time.Hour, pagination.Params{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.ListRecentReassignments(ctx, time.Hour, pagination.Params{Cursor: "%%%"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

type failingStore struct{}

func (failingStore) ListByStatuses(context.Context, ...enums.MatchStatus) ([]models.CandidateMatch, error) {
	return nil, errors.New("connection reset")
}

func (failingStore) ListEventsSince(context.Context, time.Time, *pagination.Cursor, int) ([]models.ReassignmentEvent, error) {
	return nil, errors.New("connection reset")
}

func TestStoreFailuresAreDependencyErrors(t *testing.T) {
	calc, err := deadlines.NewCalculator(deadlines.Params{})
	require.NoError(t, err)
	svc, err := NewService(Params{Store: failingStore{}, Calculator: calc})
	require.NoError(t, err)

	_, err = svc.ListOverdue(context.Background(), Filter{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())

	_, err = svc.ListRecentReassignments(context.Background(), time.Hour, pagination.Params{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(Params{})
	assert.Error(t, err)
}
