package matches

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	pkgerrors "github.com/angelmondragon/onboarding-enforcer/pkg/errors"
	"github.com/angelmondragon/onboarding-enforcer/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrClaimLost is returned when a write guarded by a claim token matched no
// row, meaning another holder released or replaced the claim.
var ErrClaimLost = fmt.Errorf("matches: %w", pkgerrors.ErrClaimLost)

// Repository is the persistence surface for matches, their requests and the
// reassignment audit trail. Writes that act on a claimed match are
// conditional on the caller's token.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByID(ctx context.Context, id uuid.UUID) (*models.CandidateMatch, error)
	FindLiveByRequest(ctx context.Context, requestID uuid.UUID) (*models.CandidateMatch, error)
	ListByStatuses(ctx context.Context, statuses ...enums.MatchStatus) ([]models.CandidateMatch, error)
	ListTriedWorkers(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error)
	CreateMatch(ctx context.Context, match *models.CandidateMatch) error

	Claim(ctx context.Context, id uuid.UUID, expected enums.MatchStatus, token string, at time.Time) (bool, error)
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time) ([]models.CandidateMatch, error)
	ExpireClaimed(ctx context.Context, id uuid.UUID, token string, status enums.MatchStatus) error
	MarkReassigned(ctx context.Context, id uuid.UUID, token string) error
	ReleaseClaim(ctx context.Context, id uuid.UUID, token string) error
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to enums.MatchStatus) (bool, error)

	FindRequest(ctx context.Context, id uuid.UUID) (*models.WorkerAssignmentRequest, error)
	CreateRequest(ctx context.Context, request *models.WorkerAssignmentRequest) error
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to enums.RequestStatus) (bool, error)

	InsertEvent(ctx context.Context, event *models.ReassignmentEvent) error
	ListEventsSince(ctx context.Context, since time.Time, cursor *pagination.Cursor, limit int) ([]models.ReassignmentEvent, error)
}
