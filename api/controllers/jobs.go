package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/api/responses"
	"github.com/angelmondragon/onboarding-enforcer/api/validators"
	"github.com/angelmondragon/onboarding-enforcer/internal/monitoring"
	"github.com/angelmondragon/onboarding-enforcer/internal/sweep"
	pkgerrors "github.com/angelmondragon/onboarding-enforcer/pkg/errors"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/angelmondragon/onboarding-enforcer/pkg/pagination"
)

// MaxTriggerTimeout caps how long a trigger request may wait on a sweep.
const MaxTriggerTimeout = 5 * time.Minute

type SweepController interface {
	Status() sweep.Status
	Trigger(ctx context.Context, timeout time.Duration) (sweep.Result, error)
}

type Monitor interface {
	ListApproachingDeadlines(ctx context.Context, filter monitoring.Filter) (monitoring.Approaching, error)
	ListOverdue(ctx context.Context, filter monitoring.Filter) (monitoring.Overdue, error)
	ListRecentReassignments(ctx context.Context, window time.Duration, params pagination.Params) (monitoring.ReassignmentPage, error)
}

// SweepStatus reports whether the scheduler is running, its last and next
// run, and the health of the last sweep.
func SweepStatus(sweeper SweepController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, sweeper.Status())
	}
}

// TriggerSweep runs one sweep and waits up to ?timeout for it. A sweep that
// outlives the wait keeps running and is reported with 202. A degraded sweep
// is still a result; only a failed sweep is an error.
func TriggerSweep(sweeper SweepController, defaultTimeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeout, err := validators.ParseQueryDuration(r, "timeout", defaultTimeout, MaxTriggerTimeout)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := sweeper.Trigger(r.Context(), timeout)
		switch {
		case err == nil:
			responses.WriteSuccess(w, result)
		case errors.Is(err, sweep.ErrSweepInProgress):
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeSweepInProgress, "a sweep is already running").
				WithDetails(map[string]any{"status": sweeper.Status()}))
		case errors.Is(err, sweep.ErrSweepStillRunning):
			responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{
				"running": true,
				"status":  sweeper.Status(),
			})
		case errors.Is(err, sweep.ErrStopping):
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sweep scheduler is shutting down"))
		case result.Health == sweep.HealthDegraded:
			// Per-match failures are isolated; the sweep itself completed.
			responses.WriteSuccess(w, result)
		default:
			// The candidate listing failed; its result carries the detail.
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sweep failed").
				WithDetails(result))
		}
	}
}

func ApproachingDeadlines(monitor Monitor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := monitor.ListApproachingDeadlines(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func OverdueDeadlines(monitor Monitor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := monitor.ListOverdue(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func RecentReassignments(monitor Monitor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := validators.ParseQueryDuration(r, "window", monitoring.DefaultWindow, monitoring.MaxWindow)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: validators.SanitizeString(r.URL.Query().Get("cursor"), 256),
		}
		page, err := monitor.ListRecentReassignments(r.Context(), window, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func parseFilter(r *http.Request) (monitoring.Filter, error) {
	tenantID, err := validators.ParseQueryUUID(r, "tenantId")
	if err != nil {
		return monitoring.Filter{}, err
	}
	return monitoring.Filter{TenantID: tenantID}, nil
}
