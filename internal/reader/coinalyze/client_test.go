package coinalyze

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "activeoi/config"
	"activeoi/internal/models"
)

func testConfig(baseURL string) appconfig.CoinalyzeConfig {
	return appconfig.CoinalyzeConfig{
		BaseURL:              baseURL,
		Interval:             "5min",
		ConvertToUSD:         true,
		Timeout:              5 * time.Second,
		MaxSymbolsPerRequest: 2,
		UserAgent:            "activeoi-test",
		RateLimit:            appconfig.RateLimitConfig{RequestsPerMinute: 60000, Burst: 10},
		Retry: appconfig.RetryConfig{
			MaxAttempts:       3,
			BaseDelay:         time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	}
}

func historyFor(symbols []string) []models.OIHistory {
	out := make([]models.OIHistory, 0, len(symbols))
	for _, s := range symbols {
		v := 1.0
		out = append(out, models.OIHistory{Symbol: s, History: []models.OICandle{{T: 1700000000, O: &v, H: &v, L: &v, C: &v}}})
	}
	return out
}

func TestFetchChunksSymbolsAndSendsQuery(t *testing.T) {
	var mu sync.Mutex
	var seen [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, historyPath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		assert.Equal(t, "activeoi-test", r.Header.Get("User-Agent"))
		q := r.URL.Query()
		assert.Equal(t, "5min", q.Get("interval"))
		assert.Equal(t, "true", q.Get("convert_to_usd"))
		assert.Equal(t, "1000", q.Get("from"))
		assert.Equal(t, "2000", q.Get("to"))

		syms := strings.Split(q.Get("symbols"), ",")
		mu.Lock()
		seen = append(seen, syms)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(historyFor(syms))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	got := c.Fetch(context.Background(), "secret", []string{"A.1", "B.1", "C.1", "D.1", "E.1"}, time.Unix(1000, 0), time.Unix(2000, 0))

	require.Len(t, got, 5)
	assert.Equal(t, [][]string{{"A.1", "B.1"}, {"C.1", "D.1"}, {"E.1"}}, seen)
	require.Len(t, got[0].History, 1)
	assert.Equal(t, 1.0, *got[0].History[0].C)
}

func TestFetchRetriesOnTooManyRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(historyFor([]string{"A.1"}))
	}))
	defer srv.Close()

	got := NewClient(testConfig(srv.URL)).Fetch(context.Background(), "k", []string{"A.1"}, time.Unix(0, 0), time.Unix(1, 0))

	require.Len(t, got, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchFailedChunkReturnsNothing(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if strings.Contains(r.URL.Query().Get("symbols"), "C.1") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(historyFor(strings.Split(r.URL.Query().Get("symbols"), ",")))
	}))
	defer srv.Close()

	got := NewClient(testConfig(srv.URL)).Fetch(context.Background(), "k", []string{"A.1", "B.1", "C.1"}, time.Unix(0, 0), time.Unix(1, 0))

	assert.Empty(t, got)
	assert.Equal(t, int32(1+3), atomic.LoadInt32(&calls), "second chunk is retried up to max attempts")
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	got := NewClient(testConfig(srv.URL)).Fetch(context.Background(), "bad", []string{"A.1"}, time.Unix(0, 0), time.Unix(1, 0))

	assert.Empty(t, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChunkSymbols(t *testing.T) {
	assert.Nil(t, chunkSymbols(nil, 3))
	assert.Equal(t, [][]string{{"a", "b", "c"}}, chunkSymbols([]string{"a", "b", "c"}, 20))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, chunkSymbols([]string{"a", "b"}, 1))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
}
