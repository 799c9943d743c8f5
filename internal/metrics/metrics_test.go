package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveProviderCall("esxi_resource_pool", "create", nil, 20*time.Millisecond)
	m.ObserveProviderCall("esxi_resource_pool", "create", errors.New("boom"), time.Millisecond)
	m.ObserveResource("create", "succeeded")
	m.ObserveRun("up", 1, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("esxi_resource_pool", "create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("esxi_resource_pool", "create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resourceOutcomes.WithLabelValues("create", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lastRunFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.providerCallDuration), "both calls share one series")
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveProviderCall("k", "op", nil, 0)
		m.ObserveResource("create", "failed")
		m.ObserveRun("up", 0, 0)
	})
}
