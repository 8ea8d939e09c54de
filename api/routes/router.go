package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/onboarding-enforcer/api/controllers"
	"github.com/angelmondragon/onboarding-enforcer/api/middleware"
	"github.com/angelmondragon/onboarding-enforcer/pkg/config"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
)

type RouterParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      controllers.Pinger
	Redis   controllers.Pinger
	Sweeper controllers.SweepController
	Monitor controllers.Monitor
	Matches controllers.MatchService
	// Gatherer backs /metrics; nil falls back to the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/admin/v1/background-jobs", func(r chi.Router) {
		r.Get("/status", controllers.SweepStatus(p.Sweeper))
		r.Post("/trigger", controllers.TriggerSweep(p.Sweeper, triggerTimeout(cfg), logg))
		r.Get("/deadlines/approaching", controllers.ApproachingDeadlines(p.Monitor, logg))
		r.Get("/deadlines/overdue", controllers.OverdueDeadlines(p.Monitor, logg))
		r.Get("/reassignments", controllers.RecentReassignments(p.Monitor, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/requests/{requestId}/matches", controllers.CreateMatch(p.Matches, logg))
		r.Post("/matches/{matchId}/status", controllers.AdvanceMatch(p.Matches, logg))
	})

	return r
}

func triggerTimeout(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Onboarding.ManualTriggerTimeout <= 0 {
		return 30 * time.Second
	}
	return cfg.Onboarding.ManualTriggerTimeout
}
