// Package monitoring serves the read-only projections behind the admin
// background job panel. Nothing here mutates matches or events.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/deadlines"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	pkgerrors "github.com/angelmondragon/onboarding-enforcer/pkg/errors"
	"github.com/angelmondragon/onboarding-enforcer/pkg/pagination"
	"github.com/google/uuid"
)

const (
	DefaultWindow = 24 * time.Hour
	MaxWindow     = 30 * 24 * time.Hour
)

type store interface {
	ListByStatuses(ctx context.Context, statuses ...enums.MatchStatus) ([]models.CandidateMatch, error)
	ListEventsSince(ctx context.Context, since time.Time, cursor *pagination.Cursor, limit int) ([]models.ReassignmentEvent, error)
}

type evaluator interface {
	Evaluate(m models.CandidateMatch, now time.Time) (deadlines.Check, bool)
	Approaching(m models.CandidateMatch, now time.Time) (deadlines.Check, bool)
}

type Params struct {
	Store      store
	Calculator evaluator
	Now        func() time.Time
}

// DeadlineView is a match as the panel shows it: the governing deadline and
// how many business days remain before it lapses.
type DeadlineView struct {
	MatchID          uuid.UUID         `json:"matchId"`
	TenantID         uuid.UUID         `json:"tenantId"`
	RequestID        uuid.UUID         `json:"requestId"`
	WorkerID         uuid.UUID         `json:"workerId"`
	Status           enums.MatchStatus `json:"status"`
	AttemptNumber    int               `json:"attemptNumber"`
	DeadlineKind     deadlines.Kind    `json:"deadlineKind"`
	Deadline         time.Time         `json:"deadline"`
	BusinessDaysLeft int               `json:"businessDaysLeft"`
	Claimed          bool              `json:"claimed"`
}

// Approaching groups matches inside the warning window by deadline kind.
type Approaching struct {
	Application []DeadlineView `json:"application"`
	Assignment  []DeadlineView `json:"assignment"`
}

// Overdue groups matches that missed their governing deadline.
type Overdue struct {
	Applications []DeadlineView `json:"applications"`
	Assignments  []DeadlineView `json:"assignments"`
}

type EventView struct {
	ID             uuid.UUID                `json:"id"`
	TenantID       uuid.UUID                `json:"tenantId"`
	RequestID      uuid.UUID                `json:"requestId"`
	ExpiredMatchID uuid.UUID                `json:"expiredMatchId"`
	NewMatchID     *uuid.UUID               `json:"newMatchId"`
	Reason         enums.ReassignmentReason `json:"reason"`
	OccurredAt     time.Time                `json:"occurredAt"`
}

type ReassignmentPage struct {
	Events     []EventView `json:"events"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// Filter narrows a projection. A nil TenantID returns every tenant.
type Filter struct {
	TenantID *uuid.UUID
}

func (f Filter) match(tenantID uuid.UUID) bool {
	return f.TenantID == nil || *f.TenantID == tenantID
}

type Service struct {
	store store
	calc  evaluator
	now   func() time.Time
}

func NewService(params Params) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("match store required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("deadline calculator required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: params.Store, calc: params.Calculator, now: now}, nil
}

// ListApproachingDeadlines returns matches whose governing deadline has not
// passed but falls inside the warning window.
func (s *Service) ListApproachingDeadlines(ctx context.Context, filter Filter) (Approaching, error) {
	out := Approaching{Application: []DeadlineView{}, Assignment: []DeadlineView{}}
	now := s.now()
	err := s.each(ctx, filter, func(m models.CandidateMatch) {
		check, ok := s.calc.Approaching(m, now)
		if !ok {
			return
		}
		view := toView(m, check)
		if check.Kind == deadlines.KindApplication {
			out.Application = append(out.Application, view)
		} else {
			out.Assignment = append(out.Assignment, view)
		}
	})
	return out, err
}

// ListOverdue returns matches past their governing deadline that the sweep
// has not retired yet.
func (s *Service) ListOverdue(ctx context.Context, filter Filter) (Overdue, error) {
	out := Overdue{Applications: []DeadlineView{}, Assignments: []DeadlineView{}}
	now := s.now()
	err := s.each(ctx, filter, func(m models.CandidateMatch) {
		check, ok := s.calc.Evaluate(m, now)
		if !ok || !check.Overdue {
			return
		}
		view := toView(m, check)
		if check.Kind == deadlines.KindApplication {
			out.Applications = append(out.Applications, view)
		} else {
			out.Assignments = append(out.Assignments, view)
		}
	})
	return out, err
}

// ListRecentReassignments pages through events that occurred within window,
// newest first.
func (s *Service) ListRecentReassignments(ctx context.Context, window time.Duration, params pagination.Params) (ReassignmentPage, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if window > MaxWindow {
		return ReassignmentPage{}, pkgerrors.New(pkgerrors.CodeValidation, "window too large").
			WithDetails(map[string]any{"max": MaxWindow.String()})
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return ReassignmentPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	events, err := s.store.ListEventsSince(ctx, s.now().Add(-window), cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return ReassignmentPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reassignment events")
	}

	page := ReassignmentPage{Events: make([]EventView, 0, min(len(events), limit))}
	if len(events) > limit {
		last := events[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{At: last.OccurredAt, ID: last.ID})
		events = events[:limit]
	}
	for _, e := range events {
		page.Events = append(page.Events, EventView{
			ID:             e.ID,
			TenantID:       e.TenantID,
			RequestID:      e.RequestID,
			ExpiredMatchID: e.ExpiredMatchID,
			NewMatchID:     e.NewMatchID,
			Reason:         e.Reason,
			OccurredAt:     e.OccurredAt,
		})
	}
	return page, nil
}

func (s *Service) each(ctx context.Context, filter Filter, fn func(models.CandidateMatch)) error {
	rows, err := s.store.ListByStatuses(ctx, enums.SweepableMatchStatuses...)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list matches")
	}
	for _, m := range rows {
		if filter.match(m.TenantID) {
			fn(m)
		}
	}
	return nil
}

func toView(m models.CandidateMatch, check deadlines.Check) DeadlineView {
	return DeadlineView{
		MatchID:          m.ID,
		TenantID:         m.TenantID,
		RequestID:        m.RequestID,
		WorkerID:         m.WorkerID,
		Status:           m.Status,
		AttemptNumber:    m.AttemptNumber,
		DeadlineKind:     check.Kind,
		Deadline:         check.Deadline,
		BusinessDaysLeft: check.BusinessDaysLeft,
		Claimed:          m.ClaimToken != nil,
	}
}
