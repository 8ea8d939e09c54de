// Package env reads settings that must be known before config.Load runs,
// such as the log format used while config itself is being parsed.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable the onboarding services read.
const Prefix = "ONBOARDING_"

// Get returns ONBOARDING_<name>, or fallback when it is unset or blank. name
// may be given with or without the prefix.
func Get(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(Key(name))); val != "" {
		return val
	}
	return fallback
}

// Key returns the fully prefixed variable name for name.
func Key(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if strings.HasPrefix(name, Prefix) {
		return name
	}
	return Prefix + name
}
