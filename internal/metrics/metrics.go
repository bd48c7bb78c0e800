// Package metrics counts auth and session-key flows for the host's
// Prometheus registry. A nil *Metrics is a valid no-op recorder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
)

const namespace = "quill_wallet"

// Metrics holds the flow counters.
type Metrics struct {
	logins          *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	sessionKeys     *prometheus.CounterVec
	signingRequests *prometheus.CounterVec
}

// New registers the counters with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Registration attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		sessionKeys: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_key_operations_total",
			Help:      "Session key operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		signingRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "signing_requests_total",
			Help:      "Relayed signing requests by outcome",
		}, []string{"outcome"}),
	}
}

// Login records a login attempt.
func (m *Metrics) Login(provider string, err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(provider, outcome(err)).Inc()
}

// Registration records a registration attempt.
func (m *Metrics) Registration(provider string, err error) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(provider, outcome(err)).Inc()
}

// SessionKey records a session key operation ("register", "remove",
// "verify").
func (m *Metrics) SessionKey(operation string, err error) {
	if m == nil {
		return
	}
	m.sessionKeys.WithLabelValues(operation, outcome(err)).Inc()
}

// SigningRequest records a relayed signing request.
func (m *Metrics) SigningRequest(err error) {
	if m == nil {
		return
	}
	m.signingRequests.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if appErr, ok := apperrors.IsAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeTimeout:
			return "timeout"
		case apperrors.ErrCodeCancelled:
			return "cancelled"
		}
	}
	return "error"
}
