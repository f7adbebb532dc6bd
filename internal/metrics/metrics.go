// Package metrics holds the service's domain counters. HTTP, database pool
// and Kafka metrics live in their pkg packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeLocked  = "locked"
	OutcomeLimited = "rate_limited"
)

// Cache result labels.
const (
	ResultOK    = "ok"
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_auth_attempts_total",
			Help: "Auth operations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_rate_limited_total",
			Help: "Requests denied by the per-identity rate limiter",
		},
		[]string{"op"},
	)

	accountsLocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_accounts_locked_total",
			Help: "Accounts locked after repeated failed logins",
		},
	)

	cacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_cache_operations_total",
			Help: "Ephemeral cache operations by result",
		},
		[]string{"op", "result"},
	)

	emailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_emails_total",
			Help: "Outgoing emails by driver and outcome",
		},
		[]string{"driver", "outcome"},
	)
)

// AuthAttempt counts one auth operation outcome.
func AuthAttempt(op, outcome string) {
	authAttempts.WithLabelValues(op, outcome).Inc()
}

// RateLimited counts a rate limiter denial for op.
func RateLimited(op string) {
	rateLimited.WithLabelValues(op).Inc()
}

// AccountLocked counts an account transitioning to locked.
func AccountLocked() {
	accountsLocked.Inc()
}

// CacheOperation counts a cache call.
func CacheOperation(op, result string) {
	cacheOperations.WithLabelValues(op, result).Inc()
}

// EmailSent counts a delivery attempt.
func EmailSent(driver string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	emailsSent.WithLabelValues(driver, outcome).Inc()
}
