// Package reassignment retires matches that missed their governing deadline
// and offers the position to the next candidate.
package reassignment

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/candidates"
	"github.com/angelmondragon/onboarding-enforcer/internal/deadlines"
	"github.com/angelmondragon/onboarding-enforcer/internal/matches"
	"github.com/angelmondragon/onboarding-enforcer/internal/notifications"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/angelmondragon/onboarding-enforcer/pkg/instance"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome is what a single evaluation did.
type Outcome string

const (
	OutcomeNotDue        Outcome = "not_due"
	OutcomeClaimConflict Outcome = "claim_conflict"
	OutcomeReassigned    Outcome = "reassigned"
	OutcomeNoReplacement Outcome = "no_replacement"
)

// Result describes one evaluation. EventID and Reason are set only when the
// match was expired.
type Result struct {
	Outcome    Outcome
	MatchID    uuid.UUID
	Reason     enums.ReassignmentReason
	NewMatchID *uuid.UUID
	EventID    uuid.UUID
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type deadlineEvaluator interface {
	Overdue(m models.CandidateMatch, now time.Time) (deadlines.Check, bool)
	Compute(createdAt time.Time) (deadlines.Deadlines, error)
}

// EngineParams wires the reassignment engine.
type EngineParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repo       matches.Repository
	Pool       candidates.Pool
	Notifier   notifications.Sink
	Calculator deadlineEvaluator
	InstanceID string
	Now        func() time.Time
}

type Engine struct {
	logg       *logger.Logger
	db         txRunner
	repo       matches.Repository
	pool       candidates.Pool
	notifier   notifications.Sink
	calc       deadlineEvaluator
	instanceID string
	now        func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("match repository required")
	}
	if params.Pool == nil {
		return nil, fmt.Errorf("candidate pool required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("deadline calculator required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Discard
	}
	instanceID := params.InstanceID
	if instanceID == "" {
		instanceID = instance.GetID()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repo,
		pool:       params.Pool,
		notifier:   notifier,
		calc:       params.Calculator,
		instanceID: instanceID,
		now:        now,
	}, nil
}

// Evaluate checks match against its governing deadline and, when it is
// overdue, claims it, expires it and tries to create its successor in one
// transaction. Losing the claim race is not an error. When the transaction
// fails the claim is left in place for the stale-claim release to clear.
func (e *Engine) Evaluate(ctx context.Context, match models.CandidateMatch) (Result, error) {
	result := Result{Outcome: OutcomeNotDue, MatchID: match.ID}
	now := e.now().UTC()

	check, overdue := e.calc.Overdue(match, now)
	if !overdue {
		return result, nil
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"match_id":   match.ID.String(),
		"request_id": match.RequestID.String(),
		"tenant_id":  match.TenantID.String(),
		"reason":     string(check.Reason),
	})

	token := e.newToken()
	claimed, err := e.repo.Claim(ctx, match.ID, match.Status, token, now)
	if err != nil {
		return result, fmt.Errorf("claim match %s: %w", match.ID, err)
	}
	if !claimed {
		e.logg.Debug(logCtx, "match already claimed or moved on")
		result.Outcome = OutcomeClaimConflict
		return result, nil
	}

	var outbound []notifications.Notification
	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, outbound, txErr = e.retire(ctx, tx, match.ID, token, now)
		return txErr
	})
	if err != nil {
		return Result{Outcome: OutcomeNotDue, MatchID: match.ID}, fmt.Errorf("reassign match %s: %w", match.ID, err)
	}
	if result.Outcome == OutcomeNotDue {
		return result, nil
	}

	logCtx = e.logg.WithField(logCtx, "outcome", string(result.Outcome))
	if result.NewMatchID != nil {
		logCtx = e.logg.WithField(logCtx, "new_match_id", result.NewMatchID.String())
	}
	e.logg.Info(logCtx, "overdue match retired")

	for _, n := range outbound {
		e.notifier.Notify(ctx, n)
	}
	return result, nil
}

func (e *Engine) retire(ctx context.Context, tx *gorm.DB, matchID uuid.UUID, token string, now time.Time) (Result, []notifications.Notification, error) {
	repo := e.repo.WithTx(tx)
	pool := e.pool.WithTx(tx)
	result := Result{Outcome: OutcomeNotDue, MatchID: matchID}

	current, err := repo.FindByID(ctx, matchID)
	if err != nil {
		return result, nil, err
	}
	if current.ClaimToken == nil || *current.ClaimToken != token {
		return result, nil, matches.ErrClaimLost
	}
	check, overdue := e.calc.Overdue(*current, now)
	if !overdue {
		return result, nil, repo.ReleaseClaim(ctx, matchID, token)
	}

	if err := repo.ExpireClaimed(ctx, matchID, token, check.Reason.ExpiredStatus()); err != nil {
		return result, nil, err
	}

	request, err := repo.FindRequest(ctx, current.RequestID)
	if err != nil {
		return result, nil, fmt.Errorf("load request: %w", err)
	}

	var candidate *candidates.Candidate
	if request.Status == enums.RequestStatusOpen && !request.AttemptsExhausted(current.AttemptNumber) {
		tried, err := repo.ListTriedWorkers(ctx, request.ID)
		if err != nil {
			return result, nil, fmt.Errorf("list tried workers: %w", err)
		}
		candidate, err = pool.Next(ctx, request, tried)
		if err != nil {
			return result, nil, fmt.Errorf("next candidate: %w", err)
		}
	}

	event := &models.ReassignmentEvent{
		ID:             uuid.New(),
		TenantID:       current.TenantID,
		RequestID:      current.RequestID,
		ExpiredMatchID: current.ID,
		Reason:         check.Reason,
		OccurredAt:     now,
	}

	var successor *models.CandidateMatch
	if candidate != nil {
		fresh, err := e.calc.Compute(now)
		if err != nil {
			return result, nil, fmt.Errorf("compute deadlines: %w", err)
		}
		successor = &models.CandidateMatch{
			ID:                           uuid.New(),
			TenantID:                     current.TenantID,
			RequestID:                    current.RequestID,
			WorkerID:                     candidate.WorkerID,
			Status:                       enums.MatchStatusProposed,
			AttemptNumber:                current.AttemptNumber + 1,
			ApplicationDeadline:          fresh.Application,
			AssignmentOnboardingDeadline: fresh.AssignmentOnboarding,
			CreatedAt:                    now,
		}
		if err := repo.CreateMatch(ctx, successor); err != nil {
			return result, nil, fmt.Errorf("create successor: %w", err)
		}
		if err := repo.MarkReassigned(ctx, matchID, token); err != nil {
			return result, nil, err
		}
		event.NewMatchID = &successor.ID
	} else if err := repo.ReleaseClaim(ctx, matchID, token); err != nil {
		return result, nil, err
	}

	if err := repo.InsertEvent(ctx, event); err != nil {
		return result, nil, fmt.Errorf("insert reassignment event: %w", err)
	}

	result.Reason = check.Reason
	result.EventID = event.ID
	result.NewMatchID = event.NewMatchID
	if successor != nil {
		result.Outcome = OutcomeReassigned
	} else {
		result.Outcome = OutcomeNoReplacement
	}
	return result, buildNotifications(*current, *request, check, successor, now), nil
}

func (e *Engine) newToken() string {
	return e.instanceID + ":" + uuid.NewString()
}

func buildNotifications(expired models.CandidateMatch, request models.WorkerAssignmentRequest, check deadlines.Check, successor *models.CandidateMatch, now time.Time) []notifications.Notification {
	base := notifications.Notification{
		TenantID:      expired.TenantID,
		RequestID:     request.ID,
		RequestNumber: request.RequestNumber,
		JobTitle:      request.JobTitle,
		PositionCount: request.PositionCount,
		MatchID:       expired.ID,
		WorkerID:      expired.WorkerID,
		Reason:        check.Reason,
		DeadlineKind:  string(check.Kind),
		Deadline:      check.Deadline,
		AttemptNumber: expired.AttemptNumber,
		Contact:       contactOf(request),
		OccurredAt:    now,
	}
	if successor != nil {
		base.NewMatchID = &successor.ID
		base.NewWorkerID = &successor.WorkerID
	}

	var out []notifications.Notification
	if successor != nil {
		timeout := base
		timeout.Kind = enums.NotificationKindCustomerTimeout
		assignment := base
		assignment.Kind = enums.NotificationKindNewAssignment
		assignment.DeadlineKind = string(deadlines.KindApplication)
		assignment.Deadline = successor.ApplicationDeadline
		out = append(out, timeout, assignment)
	} else {
		none := base
		none.Kind = enums.NotificationKindNoMatches
		out = append(out, none)
	}
	alert := base
	alert.Kind = enums.NotificationKindAdminAlert
	return append(out, alert)
}

func contactOf(request models.WorkerAssignmentRequest) notifications.Contact {
	var c notifications.Contact
	if request.ContactName != nil {
		c.Name = *request.ContactName
	}
	if request.ContactEmail != nil {
		c.Email = *request.ContactEmail
	}
	if request.ContactPhone != nil {
		c.Phone = *request.ContactPhone
	}
	return c
}
