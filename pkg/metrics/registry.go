// Package metrics provides the daemon's Prometheus registry.
//
// Metrics are optional: when the registry is never initialized,
// NewDaemon returns a nil *Daemon and every caller's metrics calls are
// no-ops, so the orchestrator never needs to branch on whether
// --metrics was passed.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry, written once by
	// InitRegistry and read many times thereafter.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global registry. Safe to call multiple
// times; only the first call takes effect. Call this from main before
// NewDaemon when --metrics is set.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil if InitRegistry was
// never called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
