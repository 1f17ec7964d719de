package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSend("email", true)
	m.ObserveSend("email", false)
	m.ObserveSend("email", true)
	m.ObserveHubRequest("subscribe", true)
	m.ObserveAlertOperation("add", errors.New("boom"))
	m.ObserveDelivery("processed")
	m.ObserveDispatch(120 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChannelSends.WithLabelValues("email", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelSends.WithLabelValues("email", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HubRequests.WithLabelValues("subscribe", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertOperations.WithLabelValues("add", "failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DispatchDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSend("sms", false)
		m.ObserveHubRequest("unsubscribe", false)
		m.ObserveQuery("rule")
		m.ObserveAlertOperation("remove", nil)
		m.ObserveDelivery("stale")
		m.ObserveDispatch(time.Second)
	})
}
