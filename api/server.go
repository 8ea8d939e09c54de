package api

import (
	"net"
	"net/http"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/api/controllers"
	"github.com/angelmondragon/onboarding-enforcer/pkg/config"
)

// NewServer wraps the router in an http.Server. The write timeout outlasts
// the longest wait a manual sweep trigger may ask for.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort("", cfg.App.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      controllers.MaxTriggerTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
