package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/onboarding-enforcer/api/responses"
	"github.com/angelmondragon/onboarding-enforcer/api/validators"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db/models"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
)

type MatchService interface {
	CreateInitialMatch(ctx context.Context, requestID, workerID uuid.UUID) (*models.CandidateMatch, error)
	Advance(ctx context.Context, id uuid.UUID, to enums.MatchStatus) (*models.CandidateMatch, error)
}

type createMatchRequest struct {
	WorkerID string `json:"workerId" validate:"required,uuid"`
}

type advanceMatchRequest struct {
	Status string `json:"status" validate:"required,oneof=applied accepted onboarding active cancelled"`
}

type matchResponse struct {
	ID                           uuid.UUID         `json:"id"`
	TenantID                     uuid.UUID         `json:"tenantId"`
	RequestID                    uuid.UUID         `json:"requestId"`
	WorkerID                     uuid.UUID         `json:"workerId"`
	Status                       enums.MatchStatus `json:"status"`
	AttemptNumber                int               `json:"attemptNumber"`
	ApplicationDeadline          string            `json:"applicationDeadline"`
	AssignmentOnboardingDeadline string            `json:"assignmentOnboardingDeadline"`
	CreatedAt                    string            `json:"createdAt"`
}

func toMatchResponse(m *models.CandidateMatch) matchResponse {
	return matchResponse{
		ID:                           m.ID,
		TenantID:                     m.TenantID,
		RequestID:                    m.RequestID,
		WorkerID:                     m.WorkerID,
		Status:                       m.Status,
		AttemptNumber:                m.AttemptNumber,
		ApplicationDeadline:          m.ApplicationDeadline.UTC().Format(time.RFC3339),
		AssignmentOnboardingDeadline: m.AssignmentOnboardingDeadline.UTC().Format(time.RFC3339),
		CreatedAt:                    m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateMatch proposes the first worker for an open request.
func CreateMatch(svc MatchService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := validators.ParseURLParamUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createMatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		match, err := svc.CreateInitialMatch(r.Context(), requestID, uuid.MustParse(body.WorkerID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toMatchResponse(match))
	}
}

// AdvanceMatch applies a worker- or customer-driven status change.
func AdvanceMatch(svc MatchService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID, err := validators.ParseURLParamUUID(r, "matchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body advanceMatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		match, err := svc.Advance(r.Context(), matchID, enums.MatchStatus(body.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toMatchResponse(match))
	}
}
