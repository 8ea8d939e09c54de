package matches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/deadlines"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	pkgerrors "github.com/angelmondragon/onboarding-enforcer/pkg/errors"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type deadlineCalculator interface {
	Compute(createdAt time.Time) (deadlines.Deadlines, error)
}

// ServiceParams wires the match lifecycle service.
type ServiceParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repo       Repository
	Calculator deadlineCalculator
	Now        func() time.Time
}

// Service applies the externally driven transitions of a match: creation of
// the first match for a request and forward progress along the happy path.
// Expiry and reassignment belong to the reassignment engine.
type Service struct {
	logg *logger.Logger
	db   txRunner
	repo Repository
	calc deadlineCalculator
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("match repository required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("deadline calculator required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repo,
		calc: params.Calculator,
		now:  now,
	}, nil
}

// Get returns a single match.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.CandidateMatch, error) {
	match, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "match not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load match")
	}
	return match, nil
}

// CreateInitialMatch proposes workerID for an open request that has no live
// match. Deadlines are computed from the creation instant and never change.
func (s *Service) CreateInitialMatch(ctx context.Context, requestID, workerID uuid.UUID) (*models.CandidateMatch, error) {
	if requestID == uuid.Nil || workerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id and worker id are required")
	}

	var created *models.CandidateMatch
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		request, err := txRepo.FindRequest(ctx, requestID)
		if err != nil {
			if IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load request")
		}
		if request.Status != enums.RequestStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request is not open").
				WithDetails(map[string]any{"status": request.Status})
		}

		live, err := txRepo.FindLiveByRequest(ctx, requestID)
		if err != nil && !IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load live match")
		}
		if live != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "request already has a live match").
				WithDetails(map[string]any{"match_id": live.ID})
		}

		createdAt := s.now().UTC()
		due, err := s.calc.Compute(createdAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute deadlines")
		}

		match := &models.CandidateMatch{
			ID:                           uuid.New(),
			TenantID:                     request.TenantID,
			RequestID:                    request.ID,
			WorkerID:                     workerID,
			Status:                       enums.MatchStatusProposed,
			AttemptNumber:                1,
			ApplicationDeadline:          due.Application,
			AssignmentOnboardingDeadline: due.AssignmentOnboarding,
			CreatedAt:                    createdAt,
		}
		if err := txRepo.CreateMatch(ctx, match); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "request already has a live match")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create match")
		}
		created = match
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "create match")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"match_id":   created.ID.String(),
		"request_id": created.RequestID.String(),
		"worker_id":  created.WorkerID.String(),
	})
	s.logg.Info(ctx, "match proposed")
	return created, nil
}

// Advance moves a match one step along proposed -> applied -> accepted ->
// onboarding -> active, or cancels it. A match being evaluated by a sweep is
// reported as a state conflict and may be retried.
func (s *Service) Advance(ctx context.Context, id uuid.UUID, to enums.MatchStatus) (*models.CandidateMatch, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown match status").
			WithDetails(map[string]any{"status": to})
	}

	var updated *models.CandidateMatch
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		current, err := txRepo.FindByID(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "match not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load match")
		}
		if !current.Status.CanAdvanceTo(to) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed").
				WithDetails(map[string]any{"from": current.Status, "to": to})
		}

		ok, err := txRepo.AdvanceStatus(ctx, id, current.Status, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update match status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "match is being evaluated, retry shortly").
				WithDetails(map[string]any{"from": current.Status, "to": to})
		}

		if to == enums.MatchStatusActive {
			if _, err := txRepo.UpdateRequestStatus(ctx, current.RequestID, enums.RequestStatusOpen, enums.RequestStatusFilled); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark request filled")
			}
		}

		current.Status = to
		updated = current
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "advance match")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"match_id": updated.ID.String(),
		"status":   updated.Status.String(),
	})
	s.logg.Info(ctx, "match advanced")
	return updated, nil
}

func asTyped(err error, message string) error {
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
