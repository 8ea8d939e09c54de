package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
)

// WorkerAssignmentRequest is a customer's request for staffed positions.
type WorkerAssignmentRequest struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID      uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null"`
	RequestNumber string              `gorm:"column:request_number;not null"`
	JobTitle      string              `gorm:"column:job_title;not null"`
	PositionCount int                 `gorm:"column:position_count;not null;default:1"`
	MaxAttempts   int                 `gorm:"column:max_attempts;not null;default:0"`
	Status        enums.RequestStatus `gorm:"column:status;not null;default:'open'"`
	ContactName   *string             `gorm:"column:contact_name"`
	ContactEmail  *string             `gorm:"column:contact_email"`
	ContactPhone  *string             `gorm:"column:contact_phone"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// AttemptsExhausted reports whether a match at attempt may not be succeeded.
// A zero MaxAttempts leaves reassignment bounded only by the candidate pool.
func (r WorkerAssignmentRequest) AttemptsExhausted(attempt int) bool {
	return r.MaxAttempts > 0 && attempt >= r.MaxAttempts
}
