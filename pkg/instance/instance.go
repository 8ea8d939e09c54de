package instance

import (
	"os"
	"strings"
)

const EnvInstanceID = "ONBOARDING_INSTANCE_ID"

// GetID returns the identifier this process stamps onto claim tokens. It
// prefers an explicit id, then the host name.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
