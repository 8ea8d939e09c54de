package notifications

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
)

const deadlineLayout = "Monday, January 2, 2006 at 15:04 MST"

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

// TemplateStore renders the subject and body for each notification kind.
type TemplateStore struct {
	templates map[enums.NotificationKind]messageTemplate
	location  *time.Location
}

var defaultTemplates = map[enums.NotificationKind][2]string{
	enums.NotificationKindDeadlineWarning: {
		`Onboarding deadline reminder for request #{{.RequestNumber}}`,
		`You have until {{deadline .Deadline}} to complete the {{.DeadlineKind}} step for {{.JobTitle}}.

Missing this deadline will release the assignment to another worker.`,
	},
	enums.NotificationKindCustomerTimeout: {
		`Staffing update for request #{{.RequestNumber}}`,
		`The worker assigned to {{.JobTitle}} did not complete the {{.DeadlineKind}} step in time.
{{if .NewWorkerID}}
We have assigned the next best match. Their onboarding is being tracked and no action is needed.{{else}}
We are looking for another match.{{end}}`,
	},
	enums.NotificationKindNewAssignment: {
		`New assignment: {{.JobTitle}} (request #{{.RequestNumber}})`,
		`You have been assigned to {{.JobTitle}} (request #{{.RequestNumber}}).

Apply by {{deadline .Deadline}} to secure this assignment.`,
	},
	enums.NotificationKindNoMatches: {
		`No further matches for request #{{.RequestNumber}}`,
		`No additional qualified workers are currently available for {{.JobTitle}}{{if gt .PositionCount 1}} ({{.PositionCount}} positions){{end}}.

Consider adjusting the requirements or posting a new request. We will keep monitoring for new matches.`,
	},
	enums.NotificationKindAdminAlert: {
		`[admin] Auto-reassignment on request #{{.RequestNumber}}`,
		`Request: {{.RequestNumber}} ({{.RequestID}})
Positions: {{.PositionCount}}
Expired match: {{.MatchID}} worker {{.WorkerID}}
Reason: {{.Reason}}
Attempt: {{.AttemptNumber}}
{{if .NewMatchID}}New match: {{.NewMatchID}} worker {{.NewWorkerID}}{{else}}No replacement available{{end}}
Time: {{deadline .OccurredAt}}`,
	},
}

// NewTemplateStore parses the built-in templates, replacing any kinds given in
// overrides (each override is "subject\nbody"). Deadlines render in loc.
func NewTemplateStore(loc *time.Location, overrides map[enums.NotificationKind]string) (*TemplateStore, error) {
	if loc == nil {
		loc = time.UTC
	}
	store := &TemplateStore{
		templates: make(map[enums.NotificationKind]messageTemplate, len(defaultTemplates)),
		location:  loc,
	}
	sources := make(map[enums.NotificationKind][2]string, len(defaultTemplates))
	for kind, src := range defaultTemplates {
		sources[kind] = src
	}
	for kind, raw := range overrides {
		if !kind.IsValid() {
			return nil, fmt.Errorf("template override for unknown kind %q", kind)
		}
		subject, body, ok := strings.Cut(raw, "\n")
		if !ok {
			return nil, fmt.Errorf("template override for %s needs a subject line and a body", kind)
		}
		sources[kind] = [2]string{subject, body}
	}

	funcs := template.FuncMap{"deadline": store.formatDeadline}
	for kind, src := range sources {
		subject, err := template.New(string(kind) + ".subject").Funcs(funcs).Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		body, err := template.New(string(kind) + ".body").Funcs(funcs).Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", kind, err)
		}
		store.templates[kind] = messageTemplate{subject: subject, body: body}
	}
	return store, nil
}

// Render produces the transport-ready message for n.
func (s *TemplateStore) Render(n Notification) (Message, error) {
	tpl, ok := s.templates[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no template for kind %q", n.Kind)
	}
	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, n); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", n.Kind, err)
	}
	if err := tpl.body.Execute(&body, n); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", n.Kind, err)
	}

	msg := Message{
		Kind:       n.Kind,
		Audience:   AudienceFor(n.Kind),
		TenantID:   n.TenantID.String(),
		RequestID:  n.RequestID.String(),
		MatchID:    n.MatchID.String(),
		Subject:    strings.TrimSpace(subject.String()),
		Body:       strings.TrimSpace(body.String()),
		OccurredAt: n.OccurredAt.UTC(),
	}
	switch msg.Audience {
	case AudienceWorker:
		msg.WorkerID = n.WorkerID.String()
		if n.Kind == enums.NotificationKindNewAssignment && n.NewWorkerID != nil {
			msg.WorkerID = n.NewWorkerID.String()
			if n.NewMatchID != nil {
				msg.MatchID = n.NewMatchID.String()
			}
		}
	case AudienceCustomer:
		contact := n.Contact
		msg.Contact = &contact
	}
	return msg, nil
}

func (s *TemplateStore) formatDeadline(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.In(s.location).Format(deadlineLayout)
}
