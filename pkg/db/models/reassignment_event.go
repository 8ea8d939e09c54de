package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
)

// ReassignmentEvent is the append-only audit record of one expiry.
// NewMatchID is nil when no replacement candidate was available.
type ReassignmentEvent struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID       uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null"`
	RequestID      uuid.UUID                `gorm:"column:request_id;type:uuid;not null"`
	ExpiredMatchID uuid.UUID                `gorm:"column:expired_match_id;type:uuid;not null"`
	NewMatchID     *uuid.UUID               `gorm:"column:new_match_id;type:uuid"`
	Reason         enums.ReassignmentReason `gorm:"column:reason;not null"`
	OccurredAt     time.Time                `gorm:"column:occurred_at;not null"`
}
