package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delegation flow metrics. Defined in a standalone package to avoid import
// cycles between the orchestrator and HTTP packages.

var (
	FlowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delegation_flows_started_total",
		Help: "Flujos de autenticación delegada iniciados, por provider",
	}, []string{"provider"})

	Callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delegation_callbacks_total",
		Help: "Callbacks procesados, por resultado (authenticated|failed)",
	}, []string{"outcome"})

	Failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delegation_failures_total",
		Help: "Fallos clasificados, por kind de la taxonomía",
	}, []string{"kind"})

	CorrelationTakes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delegation_correlation_takes_total",
		Help: "Intentos de retrieveAndInvalidate, por resultado (hit|miss)",
	}, []string{"result"})

	CallbackDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "delegation_callback_duration_ms",
		Help:    "Duración del procesamiento de callback en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	LogoutNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delegation_logout_notifications_total",
		Help: "Notificaciones de logout a providers, por resultado (ok|failed|skipped)",
	}, []string{"result"})
)

// Register registers the delegation metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		FlowsStarted, Callbacks, Failures, CorrelationTakes, CallbackDuration, LogoutNotifications,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
