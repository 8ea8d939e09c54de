package matches

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/deadlines"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	pkgerrors "github.com/angelmondragon/onboarding-enforcer/pkg/errors"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServiceTest(t *testing.T, now time.Time) (*Service, Repository) {
	t.Helper()
	conn, r := setupRepo(t)
	calc, err := deadlines.NewCalculator(deadlines.Params{})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         db.FromGorm(conn),
		Repo:       r,
		Calculator: calc,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc, r
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func TestCreateInitialMatchComputesDeadlines(t *testing.T) {
	svc, r := newServiceTest(t, baseTime)
	req := seedRequest(t, r)

	m, err := svc.CreateInitialMatch(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusProposed, m.Status)
	assert.Equal(t, 1, m.AttemptNumber)
	assert.True(t, m.ApplicationDeadline.Equal(time.Date(2024, time.June, 6, 9, 0, 0, 0, time.UTC)))
	assert.True(t, m.AssignmentOnboardingDeadline.Equal(time.Date(2024, time.June, 4, 9, 0, 0, 0, time.UTC)))

	stored, err := r.FindByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, stored.ApplicationDeadline.Equal(m.ApplicationDeadline))
}

func TestCreateInitialMatchRejectsSecondLiveMatch(t *testing.T) {
	svc, r := newServiceTest(t, baseTime)
	req := seedRequest(t, r)

	_, err := svc.CreateInitialMatch(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.CreateInitialMatch(context.Background(), req.ID, uuid.New())
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestCreateInitialMatchUnknownRequest(t *testing.T) {
	svc, _ := newServiceTest(t, baseTime)
	_, err := svc.CreateInitialMatch(context.Background(), uuid.New(), uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.CreateInitialMatch(context.Background(), uuid.Nil, uuid.New())
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestAdvanceHappyPathFillsRequest(t *testing.T) {
	svc, r := newServiceTest(t, baseTime)
	ctx := context.Background()
	req := seedRequest(t, r)
	m, err := svc.CreateInitialMatch(ctx, req.ID, uuid.New())
	require.NoError(t, err)

	for _, next := range []enums.MatchStatus{
		enums.MatchStatusApplied,
		enums.MatchStatusAccepted,
		enums.MatchStatusOnboarding,
		enums.MatchStatusActive,
	} {
		got, err := svc.Advance(ctx, m.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, got.Status)
	}

	stored, err := r.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusFilled, stored.Status)
}

func TestAdvanceRejectsSkippingAndExpiry(t *testing.T) {
	svc, r := newServiceTest(t, baseTime)
	ctx := context.Background()
	m, err := svc.CreateInitialMatch(ctx, seedRequest(t, r).ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Advance(ctx, m.ID, enums.MatchStatusAccepted)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = svc.Advance(ctx, m.ID, enums.MatchStatusExpiredApplication)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = svc.Advance(ctx, m.ID, enums.MatchStatus("hired"))
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestAdvanceWhileClaimedIsStateConflict(t *testing.T) {
	svc, r := newServiceTest(t, baseTime)
	ctx := context.Background()
	m, err := svc.CreateInitialMatch(ctx, seedRequest(t, r).ID, uuid.New())
	require.NoError(t, err)

	ok, err := r.Claim(ctx, m.ID, enums.MatchStatusProposed, "sweep", baseTime)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Advance(ctx, m.ID, enums.MatchStatusApplied)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCancelFreesSlot(t *testing.T) {
	svc, r := newServiceTest(t, baseTime)
	ctx := context.Background()
	req := seedRequest(t, r)
	m, err := svc.CreateInitialMatch(ctx, req.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Advance(ctx, m.ID, enums.MatchStatusCancelled)
	require.NoError(t, err)

	_, err = svc.CreateInitialMatch(ctx, req.ID, uuid.New())
	assert.NoError(t, err)
}
