package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
)

// CandidateSuggestion is a ranked worker produced by the matching service.
type CandidateSuggestion struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequestID uuid.UUID              `gorm:"column:request_id;type:uuid;not null"`
	WorkerID  uuid.UUID              `gorm:"column:worker_id;type:uuid;not null"`
	Score     decimal.Decimal        `gorm:"column:score;type:numeric(6,3);not null"`
	Status    enums.SuggestionStatus `gorm:"column:status;not null;default:'suggested'"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
