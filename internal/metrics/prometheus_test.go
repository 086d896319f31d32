package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveLogin(t *testing.T) {
	before := testutil.ToFloat64(LoginFailuresTotal.WithLabelValues(FlowBridge, "timeout"))

	ObserveLogin(FlowBridge, "")
	ObserveLogin(FlowBridge, "timeout")

	assert.Equal(t, before+1, testutil.ToFloat64(LoginFailuresTotal.WithLabelValues(FlowBridge, "timeout")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(LoginAttemptsTotal.WithLabelValues(FlowBridge, "success")), 1.0)
}

func TestInitCustomMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitCustomMetrics(reg)
	SessionsMintedTotal.WithLabelValues("lti_launch").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "psso_sessions_minted_total")

	// Registering twice only logs.
	InitCustomMetrics(reg)
}
