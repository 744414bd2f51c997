package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "activeoi/config"
)

type pushCapture struct {
	mu     sync.Mutex
	method string
	path   string
	body   string
}

func newPushgateway(t *testing.T, status int) (*httptest.Server, *pushCapture) {
	t.Helper()
	capture := &pushCapture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		capture.mu.Lock()
		capture.method = r.Method
		capture.path = r.URL.Path
		capture.body = string(body)
		capture.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, capture
}

func gaugeValue(t *testing.T, m *RunMetrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.NotEmpty(t, mf.GetMetric())
		metric := mf.GetMetric()[0]
		if metric.GetGauge() != nil {
			return metric.GetGauge().GetValue()
		}
		return metric.GetCounter().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestObserveSetsGaugesWithoutPush(t *testing.T) {
	m := NewRunMetrics(appconfig.PushgatewayConfig{})
	finished := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	err := m.Observe(context.Background(), RunSummary{
		RunID:       "r-1",
		Status:      "Success",
		Fetched:     9,
		RawRows:     2880,
		DerivedRows: 2017,
		Duration:    1500 * time.Millisecond,
		Finished:    finished,
		Succeeded:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, 9.0, gaugeValue(t, m, "activeoi_fetched_entries"))
	assert.Equal(t, 2880.0, gaugeValue(t, m, "activeoi_raw_rows"))
	assert.Equal(t, 2017.0, gaugeValue(t, m, "activeoi_derived_rows"))
	assert.Equal(t, 1.5, gaugeValue(t, m, "activeoi_run_duration_seconds"))
	assert.Equal(t, float64(finished.Unix()), gaugeValue(t, m, "activeoi_last_success_timestamp_seconds"))
	assert.Equal(t, 1.0, gaugeValue(t, m, "activeoi_runs_total"))
}

func TestObserveFailedRunKeepsLastSuccess(t *testing.T) {
	m := NewRunMetrics(appconfig.PushgatewayConfig{})

	require.NoError(t, m.Observe(context.Background(), RunSummary{Status: "No data fetched."}))

	assert.Equal(t, 0.0, gaugeValue(t, m, "activeoi_last_success_timestamp_seconds"))
}

func TestObservePushesToGateway(t *testing.T) {
	srv, capture := newPushgateway(t, http.StatusOK)
	m := NewRunMetrics(appconfig.PushgatewayConfig{URL: srv.URL, Job: "activeoi-test"})

	err := m.Observe(context.Background(), RunSummary{RunID: "r-2", Status: "Success", RawRows: 5, Succeeded: true})
	require.NoError(t, err)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	assert.Equal(t, http.MethodPut, capture.method)
	assert.Equal(t, "/metrics/job/activeoi-test", capture.path)
	assert.NotEmpty(t, capture.body)
}

func TestObserveReturnsPushError(t *testing.T) {
	srv, _ := newPushgateway(t, http.StatusInternalServerError)
	m := NewRunMetrics(appconfig.PushgatewayConfig{URL: srv.URL})

	err := m.Observe(context.Background(), RunSummary{Status: "Success"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push run metrics")
}
