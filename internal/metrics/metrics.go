// Package metrics holds the Prometheus collectors for the auth subsystem.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "admin_auth"

// Login results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultLocked  = "locked"
)

// Password reset stages.
const (
	StageRequested = "requested"
	StageIssued    = "issued"
	StageCooldown  = "cooldown"
	StageCompleted = "completed"
	StageRejected  = "rejected"
)

var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	Lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Identities locked after repeated failures.",
	})

	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Sessions issued on successful login.",
	})

	SessionsTerminated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_terminated_total",
		Help:      "Sessions ended, by reason.",
	}, []string{"reason"})

	PasswordResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_resets_total",
		Help:      "Password reset flow transitions, by stage.",
	}, []string{"stage"})

	PasswordHashSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "password_hash_seconds",
		Help:      "Time spent computing argon2id password hashes, including pool wait.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_events_dropped_total",
		Help:      "Security events dropped because the export buffer was full.",
	})
)

func ObserveHash(start time.Time) {
	PasswordHashSeconds.Observe(time.Since(start).Seconds())
}

func TerminatedSessions(reason string, n int) {
	if n > 0 {
		SessionsTerminated.WithLabelValues(reason).Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
