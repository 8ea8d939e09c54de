package enums

import "fmt"

// ReassignmentReason records which deadline a match missed.
type ReassignmentReason string

const (
	ReassignmentReasonApplicationDeadlineMissed ReassignmentReason = "application_deadline_missed"
	ReassignmentReasonOnboardingDeadlineMissed  ReassignmentReason = "onboarding_deadline_missed"
)

var validReassignmentReasons = []ReassignmentReason{
	ReassignmentReasonApplicationDeadlineMissed,
	ReassignmentReasonOnboardingDeadlineMissed,
}

func (r ReassignmentReason) String() string {
	return string(r)
}

func (r ReassignmentReason) IsValid() bool {
	for _, candidate := range validReassignmentReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ExpiredStatus is the terminal status a match takes when it misses this deadline.
func (r ReassignmentReason) ExpiredStatus() MatchStatus {
	if r == ReassignmentReasonOnboardingDeadlineMissed {
		return MatchStatusExpiredOnboarding
	}
	return MatchStatusExpiredApplication
}

func ParseReassignmentReason(value string) (ReassignmentReason, error) {
	for _, candidate := range validReassignmentReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reassignment reason %q", value)
}
