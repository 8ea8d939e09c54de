// Package candidates serves replacement workers from the ranked suggestions
// the matching service writes for each request.
package candidates

import (
	"context"
	"errors"

	"github.com/angelmondragon/onboarding-enforcer/internal/repo"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Candidate is the next worker to offer a request.
type Candidate struct {
	WorkerID     uuid.UUID
	SuggestionID uuid.UUID
	Score        decimal.Decimal
}

// Pool returns the best untried worker for a request.
type Pool interface {
	WithTx(tx *gorm.DB) Pool
	Next(ctx context.Context, request *models.WorkerAssignmentRequest, exclude []uuid.UUID) (*Candidate, error)
}

type pool struct {
	repo.Base
}

func NewPool(db *gorm.DB) Pool {
	return &pool{Base: repo.NewBase(db)}
}

func (p *pool) WithTx(tx *gorm.DB) Pool {
	if tx == nil {
		return p
	}
	return &pool{Base: p.Base.WithTx(tx)}
}

// Next returns the highest scored offerable suggestion whose worker is not in
// exclude. Ties fall back to the older suggestion. A nil candidate with a nil
// error means the pool is exhausted.
func (p *pool) Next(ctx context.Context, request *models.WorkerAssignmentRequest, exclude []uuid.UUID) (*Candidate, error) {
	if request == nil {
		return nil, errors.New("request required")
	}
	query := p.DB(ctx).
		Where("request_id = ? AND status IN ?", request.ID, enums.OfferableSuggestionStatuses)
	if len(exclude) > 0 {
		query = query.Where("worker_id NOT IN ?", exclude)
	}

	var suggestion models.CandidateSuggestion
	err := query.
		Order("score DESC").
		Order("created_at ASC").
		Order("id ASC").
		First(&suggestion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Candidate{
		WorkerID:     suggestion.WorkerID,
		SuggestionID: suggestion.ID,
		Score:        suggestion.Score,
	}, nil
}
