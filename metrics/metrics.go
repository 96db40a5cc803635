// Package metrics provides Prometheus metrics for the membership service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the auth and list layers.
type Metrics struct {
	enabled bool

	// Authentication metrics
	loginsTotal       *prometheus.CounterVec
	authFailuresTotal *prometheus.CounterVec
	linkTokensTotal   prometheus.Counter

	// Review metrics
	quickActionsTotal *prometheus.CounterVec

	// Credential migration metrics
	hashUpgradesTotal *prometheus.CounterVec

	// List-consistency metrics
	shadowFallbacksTotal *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_logins_total",
		Help: "Successful logins by method",
	}, []string{"method"})

	m.authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_auth_failures_total",
		Help: "Authentication failures by method and reason",
	}, []string{"method", "reason"})

	m.linkTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atrium_link_tokens_issued_total",
		Help: "Login-link tokens issued",
	})

	m.quickActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_quick_actions_total",
		Help: "Quick-action review attempts by action and result",
	}, []string{"action", "result"})

	m.hashUpgradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_hash_upgrades_total",
		Help: "Online password-hash upgrades by result",
	}, []string{"result"})

	m.shadowFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_shadow_fallbacks_total",
		Help: "List reads served from the legacy shadow object",
	}, []string{"collection"})

	return m
}

// RecordLogin records a successful login ("password", "link" or "superuser").
func (m *Metrics) RecordLogin(method string) {
	if !m.enabled {
		return
	}
	m.loginsTotal.WithLabelValues(method).Inc()
}

// RecordAuthFailure records a failed authentication attempt.
func (m *Metrics) RecordAuthFailure(method, reason string) {
	if !m.enabled {
		return
	}
	m.authFailuresTotal.WithLabelValues(method, reason).Inc()
}

// RecordLinkIssued records a login-link token being minted.
func (m *Metrics) RecordLinkIssued() {
	if !m.enabled {
		return
	}
	m.linkTokensTotal.Inc()
}

// RecordQuickAction records a quick-action attempt ("approved", "rejected",
// "replayed", "denied").
func (m *Metrics) RecordQuickAction(action, result string) {
	if !m.enabled {
		return
	}
	m.quickActionsTotal.WithLabelValues(action, result).Inc()
}

// RecordHashUpgrade records a background hash upgrade ("ok" or "failed").
func (m *Metrics) RecordHashUpgrade(result string) {
	if !m.enabled {
		return
	}
	m.hashUpgradesTotal.WithLabelValues(result).Inc()
}

// RecordShadowFallback records a list read that fell back to the shadow.
func (m *Metrics) RecordShadowFallback(collection string) {
	if !m.enabled {
		return
	}
	m.shadowFallbacksTotal.WithLabelValues(collection).Inc()
}
