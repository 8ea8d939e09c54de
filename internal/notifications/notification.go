// Package notifications renders and delivers the messages the engine emits
// around deadlines and reassignments. Delivery is best effort: callers hand a
// Notification to a Sink and move on.
package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/google/uuid"
)

// Audience is who a notification is addressed to.
type Audience string

const (
	AudienceWorker   Audience = "worker"
	AudienceCustomer Audience = "customer"
	AudienceAdmin    Audience = "admin"
)

// AudienceFor maps a notification kind to its recipient group.
func AudienceFor(kind enums.NotificationKind) Audience {
	switch kind {
	case enums.NotificationKindDeadlineWarning, enums.NotificationKindNewAssignment:
		return AudienceWorker
	case enums.NotificationKindCustomerTimeout, enums.NotificationKindNoMatches:
		return AudienceCustomer
	default:
		return AudienceAdmin
	}
}

// Contact is the customer's point of contact stored on the request.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Notification is the domain-level description of something to tell someone.
type Notification struct {
	Kind          enums.NotificationKind
	TenantID      uuid.UUID
	RequestID     uuid.UUID
	RequestNumber string
	JobTitle      string
	PositionCount int
	MatchID       uuid.UUID
	WorkerID      uuid.UUID
	NewMatchID    *uuid.UUID
	NewWorkerID   *uuid.UUID
	Reason        enums.ReassignmentReason
	DeadlineKind  string
	Deadline      time.Time
	AttemptNumber int
	Contact       Contact
	OccurredAt    time.Time
}

// Sink accepts notifications without blocking and without reporting failure.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// Message is the rendered, transport-ready form of a Notification.
type Message struct {
	ID         string                 `json:"id"`
	Kind       enums.NotificationKind `json:"kind"`
	Audience   Audience               `json:"audience"`
	TenantID   string                 `json:"tenant_id"`
	RequestID  string                 `json:"request_id"`
	MatchID    string                 `json:"match_id"`
	WorkerID   string                 `json:"worker_id,omitempty"`
	Contact    *Contact               `json:"contact,omitempty"`
	Subject    string                 `json:"subject"`
	Body       string                 `json:"body"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Sender delivers a rendered message to a transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(context.Context, Notification) {})
