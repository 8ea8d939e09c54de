package enums

import "fmt"

// NotificationKind identifies the template and audience of an outbound message.
type NotificationKind string

const (
	NotificationKindDeadlineWarning NotificationKind = "deadline_warning"
	NotificationKindCustomerTimeout NotificationKind = "customer_timeout"
	NotificationKindNewAssignment   NotificationKind = "new_assignment"
	NotificationKindNoMatches       NotificationKind = "no_matches"
	NotificationKindAdminAlert      NotificationKind = "admin_alert"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindDeadlineWarning,
	NotificationKindCustomerTimeout,
	NotificationKindNewAssignment,
	NotificationKindNoMatches,
	NotificationKindAdminAlert,
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
