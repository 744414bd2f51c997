package coinalyze

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appconfig "activeoi/config"
	"activeoi/internal/models"
	"activeoi/logger"
)

const historyPath = "/open-interest-history"

// Client reads open-interest history from the Coinalyze REST API.
type Client struct {
	cfg     appconfig.CoinalyzeConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient builds a client from the coinalyze configuration section.
func NewClient(cfg appconfig.CoinalyzeConfig) *Client {
	rpm := cfg.RateLimit.RequestsPerMinute
	if rpm <= 0 {
		rpm = 40
	}
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.MaxSymbolsPerRequest <= 0 {
		cfg.MaxSymbolsPerRequest = 20
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: instrumentedTransport{agent: cfg.UserAgent, base: http.DefaultTransport},
		},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		log:     logger.GetLogger(),
	}
}

// Fetch downloads the history of every symbol between from and to. Symbols are
// requested in chunks; if any chunk fails the error is logged and nothing is
// returned, so a partial batch never reaches the history.
func (c *Client) Fetch(ctx context.Context, apiKey string, symbols []string, from, to time.Time) []models.OIHistory {
	log := c.log.WithComponent("coinalyze_reader").WithFields(logger.Fields{
		"symbols": len(symbols),
		"from":    from.Unix(),
		"to":      to.Unix(),
	})
	if len(symbols) == 0 {
		log.Warn("no symbols to fetch")
		return nil
	}

	start := time.Now()
	var out []models.OIHistory
	for i, chunk := range chunkSymbols(symbols, c.cfg.MaxSymbolsPerRequest) {
		var batch []models.OIHistory
		err := withRetry(ctx, c.cfg.Retry,
			func(attempt int, wait time.Duration, err error) {
				log.WithError(err).WithFields(logger.Fields{
					"chunk":   i,
					"attempt": attempt,
					"wait_ms": wait.Milliseconds(),
				}).Warn("coinalyze request failed, retrying")
			},
			func(ctx context.Context) error {
				var err error
				batch, err = c.fetchChunk(ctx, apiKey, chunk, from, to)
				return err
			})
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"chunk": i, "chunk_symbols": chunk}).Error("failed to fetch open interest history")
			return nil
		}
		out = append(out, batch...)
	}

	logger.LogPerformanceEntry(log, "coinalyze_reader", "fetch", time.Since(start), logger.Fields{"entries": len(out)})
	return out
}

func (c *Client) fetchChunk(ctx context.Context, apiKey string, symbols []string, from, to time.Time) ([]models.OIHistory, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("interval", c.cfg.Interval)
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	q.Set("convert_to_usd", strconv.FormatBool(c.cfg.ConvertToUSD))
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + historyPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("api-key", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request open interest history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{
			Code:       resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var out []models.OIHistory
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode open interest history: %w", err)
	}
	return out, nil
}

// chunkSymbols splits symbols into groups of at most size.
func chunkSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[start:end])
	}
	return out
}
