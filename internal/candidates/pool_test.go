package candidates

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/pkg/db/dbtest"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedSuggestion(t *testing.T, db *gorm.DB, requestID uuid.UUID, score string, status enums.SuggestionStatus, createdAt time.Time) models.CandidateSuggestion {
	t.Helper()
	s := models.CandidateSuggestion{
		ID:        uuid.New(),
		RequestID: requestID,
		WorkerID:  uuid.New(),
		Score:     decimal.RequireFromString(score),
		Status:    status,
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func TestNextPicksHighestScoreExcludingTried(t *testing.T) {
	db := dbtest.Open(t)
	p := NewPool(db)
	req := &models.WorkerAssignmentRequest{ID: uuid.New()}
	now := time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

	best := seedSuggestion(t, db, req.ID, "0.950", enums.SuggestionStatusSuggested, now)
	second := seedSuggestion(t, db, req.ID, "0.800", enums.SuggestionStatusSelected, now)
	seedSuggestion(t, db, req.ID, "0.990", enums.SuggestionStatusWithdrawn, now)
	seedSuggestion(t, db, uuid.New(), "1.000", enums.SuggestionStatusSuggested, now)

	got, err := p.Next(context.Background(), req, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, best.WorkerID, got.WorkerID)
	assert.True(t, got.Score.Equal(decimal.RequireFromString("0.95")))

	got, err = p.Next(context.Background(), req, []uuid.UUID{best.WorkerID})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.WorkerID, got.WorkerID)
}

func TestNextBreaksTiesByAge(t *testing.T) {
	db := dbtest.Open(t)
	p := NewPool(db)
	req := &models.WorkerAssignmentRequest{ID: uuid.New()}
	now := time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

	seedSuggestion(t, db, req.ID, "0.700", enums.SuggestionStatusSuggested, now.Add(time.Hour))
	older := seedSuggestion(t, db, req.ID, "0.700", enums.SuggestionStatusSuggested, now)

	got, err := p.Next(context.Background(), req, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.WorkerID, got.WorkerID)
}

func TestNextExhausted(t *testing.T) {
	db := dbtest.Open(t)
	p := NewPool(db)
	req := &models.WorkerAssignmentRequest{ID: uuid.New()}
	only := seedSuggestion(t, db, req.ID, "0.500", enums.SuggestionStatusSuggested, time.Now())

	got, err := p.Next(context.Background(), req, []uuid.UUID{only.WorkerID})
	require.NoError(t, err)
	assert.Nil(t, got)
}
