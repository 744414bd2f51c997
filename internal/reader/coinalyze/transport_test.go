package coinalyze

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activeoi/internal/metrics"
)

func TestInstrumentedTransportSetsHeadersAndReportsLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent/1", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var got []metrics.Metric
	id := metrics.RegisterMetricHandler(func(m metrics.Metric) {
		if m.Component == "coinalyze_reader" {
			got = append(got, m)
		}
	})
	t.Cleanup(func() { metrics.UnregisterMetricHandler(id) })

	client := &http.Client{Transport: instrumentedTransport{agent: "agent/1"}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, got, 1)
	assert.Equal(t, "request_latency", got[0].Name)
	assert.Equal(t, "429", got[0].Fields["status"])
	assert.Empty(t, req.Header.Get("User-Agent"), "caller's request is not mutated")
}
