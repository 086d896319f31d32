package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Login flows, used as the "flow" label.
const (
	FlowBridge = "bridge"
	FlowLaunch = "launch"
)

// The collectors exist from package init so code paths can record without
// InitCustomMetrics having run (tests); they are only exported once registered.
var (
	LoginAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "psso_login_attempts_total",
		Help: "Partner login attempts by flow and outcome.",
	}, []string{"flow", "outcome"})

	LoginFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "psso_login_failures_total",
		Help: "Failed partner logins by flow and error kind.",
	}, []string{"flow", "kind"})

	UsersLinkedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "psso_users_linked_total",
		Help: "Identity resolutions, split by whether a new local account was created.",
	}, []string{"created"})

	SessionsMintedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "psso_sessions_minted_total",
		Help: "Local sessions minted by login source.",
	}, []string{"source"})

	GradeSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "psso_grade_submissions_total",
		Help: "Best-effort grade passback attempts by outcome.",
	}, []string{"outcome"})

	ActiveAttemptsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "psso_bridge_active_attempts",
		Help: "Popup login attempts currently in flight.",
	})
)

// InitCustomMetrics registers the custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"LoginAttemptsTotal":    LoginAttemptsTotal,
		"LoginFailuresTotal":    LoginFailuresTotal,
		"UsersLinkedTotal":      UsersLinkedTotal,
		"SessionsMintedTotal":   SessionsMintedTotal,
		"GradeSubmissionsTotal": GradeSubmissionsTotal,
		"ActiveAttemptsGauge":   ActiveAttemptsGauge,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}

// ObserveLogin records the outcome of one login attempt. kind is empty on success.
func ObserveLogin(flow, kind string) {
	if kind == "" {
		LoginAttemptsTotal.WithLabelValues(flow, "success").Inc()
		return
	}
	LoginAttemptsTotal.WithLabelValues(flow, "failure").Inc()
	LoginFailuresTotal.WithLabelValues(flow, kind).Inc()
}
