package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
)

// CandidateMatch pairs one worker with one request. Rows are never deleted;
// deadlines are written once at creation.
type CandidateMatch struct {
	ID                           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID                     uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null"`
	RequestID                    uuid.UUID         `gorm:"column:request_id;type:uuid;not null"`
	WorkerID                     uuid.UUID         `gorm:"column:worker_id;type:uuid;not null"`
	Status                       enums.MatchStatus `gorm:"column:status;not null"`
	AttemptNumber                int               `gorm:"column:attempt_number;not null;default:1"`
	ApplicationDeadline          time.Time         `gorm:"column:application_deadline;not null;<-:create"`
	AssignmentOnboardingDeadline time.Time         `gorm:"column:assignment_onboarding_deadline;not null;<-:create"`
	ClaimToken                   *string           `gorm:"column:claim_token"`
	ClaimedAt                    *time.Time        `gorm:"column:claimed_at"`
	CreatedAt                    time.Time         `gorm:"column:created_at"`
	UpdatedAt                    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
