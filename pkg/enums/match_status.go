package enums

import "fmt"

// MatchStatus tracks a candidate match from proposal to activation.
type MatchStatus string

const (
	MatchStatusProposed           MatchStatus = "proposed"
	MatchStatusApplied            MatchStatus = "applied"
	MatchStatusAccepted           MatchStatus = "accepted"
	MatchStatusOnboarding         MatchStatus = "onboarding"
	MatchStatusActive             MatchStatus = "active"
	MatchStatusExpiredApplication MatchStatus = "expired_application"
	MatchStatusExpiredOnboarding  MatchStatus = "expired_onboarding"
	MatchStatusReassigned         MatchStatus = "reassigned"
	MatchStatusCancelled          MatchStatus = "cancelled"
)

var validMatchStatuses = []MatchStatus{
	MatchStatusProposed,
	MatchStatusApplied,
	MatchStatusAccepted,
	MatchStatusOnboarding,
	MatchStatusActive,
	MatchStatusExpiredApplication,
	MatchStatusExpiredOnboarding,
	MatchStatusReassigned,
	MatchStatusCancelled,
}

// LiveMatchStatuses are the statuses that occupy a request's single live slot.
var LiveMatchStatuses = []MatchStatus{
	MatchStatusProposed,
	MatchStatusApplied,
	MatchStatusAccepted,
	MatchStatusOnboarding,
	MatchStatusActive,
}

// SweepableMatchStatuses are the statuses a sweep evaluates for breaches.
var SweepableMatchStatuses = []MatchStatus{
	MatchStatusProposed,
	MatchStatusApplied,
	MatchStatusAccepted,
}

// happy path order; cancellation is allowed from any live status.
var nextMatchStatus = map[MatchStatus]MatchStatus{
	MatchStatusProposed:   MatchStatusApplied,
	MatchStatusApplied:    MatchStatusAccepted,
	MatchStatusAccepted:   MatchStatusOnboarding,
	MatchStatusOnboarding: MatchStatusActive,
}

// String implements fmt.Stringer.
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known MatchStatus.
func (s MatchStatus) IsValid() bool {
	for _, candidate := range validMatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsLive reports whether the match still holds the request's live slot.
func (s MatchStatus) IsLive() bool {
	for _, candidate := range LiveMatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s MatchStatus) IsTerminal() bool {
	return s.IsValid() && !s.IsLive()
}

// CanAdvanceTo reports whether an external actor may move a match from s to next.
// Expiry and reassignment are reserved for the sweep and are never accepted here.
func (s MatchStatus) CanAdvanceTo(next MatchStatus) bool {
	if !s.IsLive() {
		return false
	}
	if next == MatchStatusCancelled {
		return true
	}
	return nextMatchStatus[s] == next
}

// ParseMatchStatus converts raw input into a MatchStatus.
func ParseMatchStatus(value string) (MatchStatus, error) {
	for _, candidate := range validMatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid match status %q", value)
}
