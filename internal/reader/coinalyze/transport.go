package coinalyze

import (
	"net/http"
	"strconv"
	"time"

	"activeoi/internal/metrics"
	"activeoi/logger"
)

// instrumentedTransport stamps the fixed request headers and reports every
// round trip as a request_latency metric tagged with the response status.
type instrumentedTransport struct {
	agent string
	base  http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.agent != "" {
		req.Header.Set("User-Agent", t.agent)
	}
	req.Header.Set("Accept", "application/json")

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.EmitMetric(nil, "coinalyze_reader", "request_latency", time.Since(start).Milliseconds(), "gauge", logger.Fields{
		"unit":   "milliseconds",
		"status": status,
	})
	return resp, err
}
