package matches

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/repo"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/angelmondragon/onboarding-enforcer/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	repo.Base
}

// NewRepository builds a match repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CandidateMatch, error) {
	var match models.CandidateMatch
	if err := r.DB(ctx).Where("id = ?", id).First(&match).Error; err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *repository) FindLiveByRequest(ctx context.Context, requestID uuid.UUID) (*models.CandidateMatch, error) {
	var match models.CandidateMatch
	err := r.DB(ctx).
		Where("request_id = ? AND status IN ?", requestID, enums.LiveMatchStatuses).
		First(&match).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *repository) ListByStatuses(ctx context.Context, statuses ...enums.MatchStatus) ([]models.CandidateMatch, error) {
	var out []models.CandidateMatch
	if len(statuses) == 0 {
		return out, nil
	}
	err := r.DB(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListTriedWorkers(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error) {
	var workers []uuid.UUID
	err := r.DB(ctx).
		Model(&models.CandidateMatch{}).
		Where("request_id = ?", requestID).
		Distinct().
		Pluck("worker_id", &workers).Error
	if err != nil {
		return nil, err
	}
	return workers, nil
}

func (r *repository) CreateMatch(ctx context.Context, match *models.CandidateMatch) error {
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	return r.DB(ctx).Create(match).Error
}

// Claim stamps token onto the match only if it is unclaimed and still in the
// expected status. A false result means another holder got there first or
// the status moved on.
func (r *repository) Claim(ctx context.Context, id uuid.UUID, expected enums.MatchStatus, token string, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.CandidateMatch{}).
		Where("id = ? AND claim_token IS NULL AND status = ?", id, expected).
		Updates(map[string]any{
			"claim_token": token,
			"claimed_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) ([]models.CandidateMatch, error) {
	var stale []models.CandidateMatch
	err := r.DB(ctx).
		Where("claim_token IS NOT NULL AND claimed_at < ? AND status IN ?", cutoff, enums.LiveMatchStatuses).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}

	released := make([]models.CandidateMatch, 0, len(stale))
	for _, m := range stale {
		// guard on the observed token so a claim renewed since the read survives
		res := r.DB(ctx).
			Model(&models.CandidateMatch{}).
			Where("id = ? AND claim_token = ? AND claimed_at < ?", m.ID, *m.ClaimToken, cutoff).
			Updates(map[string]any{
				"claim_token": nil,
				"claimed_at":  nil,
			})
		if res.Error != nil {
			return released, res.Error
		}
		if res.RowsAffected == 1 {
			released = append(released, m)
		}
	}
	return released, nil
}

func (r *repository) ExpireClaimed(ctx context.Context, id uuid.UUID, token string, status enums.MatchStatus) error {
	return r.updateClaimed(ctx, id, token, map[string]any{"status": status})
}

func (r *repository) MarkReassigned(ctx context.Context, id uuid.UUID, token string) error {
	return r.updateClaimed(ctx, id, token, map[string]any{
		"status":      enums.MatchStatusReassigned,
		"claim_token": nil,
		"claimed_at":  nil,
	})
}

func (r *repository) ReleaseClaim(ctx context.Context, id uuid.UUID, token string) error {
	return r.updateClaimed(ctx, id, token, map[string]any{
		"claim_token": nil,
		"claimed_at":  nil,
	})
}

func (r *repository) updateClaimed(ctx context.Context, id uuid.UUID, token string, updates map[string]any) error {
	res := r.DB(ctx).
		Model(&models.CandidateMatch{}).
		Where("id = ? AND claim_token = ?", id, token).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrClaimLost
	}
	return nil
}

// AdvanceStatus moves an unclaimed match from one status to another. A match
// under evaluation by a sweep cannot be advanced until its claim clears.
func (r *repository) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to enums.MatchStatus) (bool, error) {
	res := r.DB(ctx).
		Model(&models.CandidateMatch{}).
		Where("id = ? AND status = ? AND claim_token IS NULL", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindRequest(ctx context.Context, id uuid.UUID) (*models.WorkerAssignmentRequest, error) {
	var request models.WorkerAssignmentRequest
	if err := r.DB(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) CreateRequest(ctx context.Context, request *models.WorkerAssignmentRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.DB(ctx).Create(request).Error
}

func (r *repository) UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to enums.RequestStatus) (bool, error) {
	res := r.DB(ctx).
		Model(&models.WorkerAssignmentRequest{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertEvent(ctx context.Context, event *models.ReassignmentEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.DB(ctx).Create(event).Error
}

func (r *repository) ListEventsSince(ctx context.Context, since time.Time, cursor *pagination.Cursor, limit int) ([]models.ReassignmentEvent, error) {
	query := r.DB(ctx).
		Where("occurred_at >= ?", since)
	if cursor != nil {
		query = query.Where("(occurred_at < ?) OR (occurred_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var events []models.ReassignmentEvent
	err := query.
		Order("occurred_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// IsNotFound reports whether err is a missing-row lookup.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
