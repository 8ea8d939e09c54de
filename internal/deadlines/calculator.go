package deadlines

import (
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/pkg/businessdays"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
)

const (
	DefaultApplicationDays = 3
	DefaultOnboardingDays  = 1
	DefaultApproachingDays = 1
)

// Deadlines are the two instants written onto a match at creation.
type Deadlines struct {
	Application          time.Time
	AssignmentOnboarding time.Time
}

// Kind names which of the two deadlines governs a match.
type Kind string

const (
	KindApplication Kind = "application"
	KindOnboarding  Kind = "onboarding"
)

// Check is the outcome of evaluating one match against its governing deadline.
type Check struct {
	Kind     Kind
	Deadline time.Time
	Reason   enums.ReassignmentReason
	Overdue  bool
	// BusinessDaysLeft is -1 once the deadline has passed.
	BusinessDaysLeft int
}

type Params struct {
	Calendar        *businessdays.Calendar
	ApplicationDays int
	OnboardingDays  int
	ApproachingDays int
	// Location decides which civil day an instant falls on. Defaults to UTC.
	Location *time.Location
}

// Calculator derives deadlines and evaluates matches against them. It is the
// single source of the breach predicate for both the sweep and read models.
type Calculator struct {
	calendar        *businessdays.Calendar
	applicationDays int
	onboardingDays  int
	approachingDays int
	loc             *time.Location
}

func NewCalculator(p Params) (*Calculator, error) {
	if p.Calendar == nil {
		p.Calendar = businessdays.New()
	}
	if p.ApplicationDays == 0 {
		p.ApplicationDays = DefaultApplicationDays
	}
	if p.OnboardingDays == 0 {
		p.OnboardingDays = DefaultOnboardingDays
	}
	if p.ApproachingDays == 0 {
		p.ApproachingDays = DefaultApproachingDays
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.ApplicationDays < 0 || p.OnboardingDays < 0 || p.ApproachingDays < 0 {
		return nil, errors.New("deadline windows must be positive")
	}
	return &Calculator{
		calendar:        p.Calendar,
		applicationDays: p.ApplicationDays,
		onboardingDays:  p.OnboardingDays,
		approachingDays: p.ApproachingDays,
		loc:             p.Location,
	}, nil
}

// Compute returns the deadlines for a match created at createdAt.
func (c *Calculator) Compute(createdAt time.Time) (Deadlines, error) {
	createdAt = createdAt.In(c.loc)
	app, err := c.calendar.AddBusinessDays(createdAt, c.applicationDays)
	if err != nil {
		return Deadlines{}, fmt.Errorf("application deadline: %w", err)
	}
	onboarding, err := c.calendar.AddBusinessDays(createdAt, c.onboardingDays)
	if err != nil {
		return Deadlines{}, fmt.Errorf("onboarding deadline: %w", err)
	}
	return Deadlines{Application: app.UTC(), AssignmentOnboarding: onboarding.UTC()}, nil
}

// Governing returns the deadline that applies to the match's current status.
// Statuses past acceptance, and terminal statuses, have none.
func Governing(m models.CandidateMatch) (Check, bool) {
	switch m.Status {
	case enums.MatchStatusProposed, enums.MatchStatusApplied:
		return Check{
			Kind:     KindApplication,
			Deadline: m.ApplicationDeadline,
			Reason:   enums.ReassignmentReasonApplicationDeadlineMissed,
		}, true
	case enums.MatchStatusAccepted:
		return Check{
			Kind:     KindOnboarding,
			Deadline: m.AssignmentOnboardingDeadline,
			Reason:   enums.ReassignmentReasonOnboardingDeadlineMissed,
		}, true
	default:
		return Check{}, false
	}
}

// Evaluate reports the governing deadline check for m at now. The second
// return is false when the match has no governing deadline.
func (c *Calculator) Evaluate(m models.CandidateMatch, now time.Time) (Check, bool) {
	check, ok := Governing(m)
	if !ok {
		return Check{}, false
	}
	check.Overdue = now.After(check.Deadline)
	if check.Overdue {
		check.BusinessDaysLeft = -1
	} else {
		check.BusinessDaysLeft = c.calendar.BusinessDaysUntil(now.In(c.loc), check.Deadline.In(c.loc))
	}
	return check, true
}

// Overdue reports whether m has missed its governing deadline at now.
func (c *Calculator) Overdue(m models.CandidateMatch, now time.Time) (Check, bool) {
	check, ok := c.Evaluate(m, now)
	if !ok || !check.Overdue {
		return Check{}, false
	}
	return check, true
}

// Approaching reports whether m is inside the warning window but not yet overdue.
func (c *Calculator) Approaching(m models.CandidateMatch, now time.Time) (Check, bool) {
	check, ok := c.Evaluate(m, now)
	if !ok || check.Overdue {
		return Check{}, false
	}
	if check.BusinessDaysLeft > c.approachingDays {
		return Check{}, false
	}
	return check, true
}
