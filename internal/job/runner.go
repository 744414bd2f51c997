package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"activeoi/internal/lock"
	"activeoi/internal/metrics"
	"activeoi/internal/models"
	"activeoi/internal/processor"
	"activeoi/internal/secret"
	"activeoi/internal/storage"
	"activeoi/internal/writer"
	"activeoi/logger"
)

// Run outcomes.
const (
	StatusSuccess = "Success"
	StatusNoData  = "No data fetched."
	StatusLocked  = "Another run is in progress."
	StatusFailed  = "Failed"
)

// Fetcher returns the open-interest history of symbols in [from, to]. An empty
// result means the fetch failed or returned nothing.
type Fetcher interface {
	Fetch(ctx context.Context, apiKey string, symbols []string, from, to time.Time) []models.OIHistory
}

// Normalizer aligns fetched histories into market rows.
type Normalizer interface {
	Normalize(entries []models.OIHistory) ([]models.MarketRow, error)
}

// Recorder receives the summary of every run.
type Recorder interface {
	Observe(ctx context.Context, s metrics.RunSummary) error
}

// Deps are the collaborators of a Runner. Locker, Transfer and Recorder are
// optional.
type Deps struct {
	Fetcher    Fetcher
	Normalizer Normalizer
	Store      storage.Store
	Secrets    secret.Provider
	Transfer   writer.Transfer
	Locker     lock.Locker
	Recorder   Recorder
}

// Options configure a Runner.
type Options struct {
	// Symbols requested from the upstream API.
	Symbols []string
	// Exchanges gives the column order of the stored tables.
	Exchanges  []string
	Window     int
	Lookback   time.Duration
	RawKey     string
	DerivedKey string
}

// Result describes a finished run.
type Result struct {
	RunID       string
	Status      string
	Fetched     int
	RawRows     int
	DerivedRows int
}

// Runner executes one ingest-and-derive batch.
type Runner struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func NewRunner(deps Deps, opts Options) *Runner {
	if deps.Transfer == nil {
		deps.Transfer = writer.NopTransfer{}
	}
	if deps.Locker == nil {
		deps.Locker = lock.Nop{}
	}
	if opts.Window <= 0 {
		opts.Window = processor.DefaultWindow
	}
	return &Runner{deps: deps, opts: opts, now: time.Now}
}

// Run executes the batch. A run that finds no data or cannot take the lock
// returns a Result with that status and no error; every other failure is
// returned.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := logger.GetLogger().WithComponent("job").WithRunID(res.RunID)
	start := r.now()
	logger.ResetReport()

	log.WithFields(logger.Fields{
		"symbols": len(r.opts.Symbols),
		"window":  r.opts.Window,
	}).Info("run started")

	release, err := r.deps.Locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			res.Status = StatusLocked
			log.Warn("run lock held elsewhere; skipping")
			r.finish(ctx, log, start, &res, nil)
			return res, nil
		}
		err = fmt.Errorf("acquire run lock: %w", err)
		r.finish(ctx, log, start, &res, err)
		return res, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("failed to release run lock")
		}
	}()

	err = r.process(ctx, log, &res)
	r.finish(ctx, log, start, &res, err)
	return res, err
}

func (r *Runner) process(ctx context.Context, log *logger.Entry, res *Result) error {
	rawPath := r.deps.Store.Path(r.opts.RawKey)
	found, err := r.deps.Transfer.Download(ctx, r.opts.RawKey, rawPath)
	if err != nil {
		return fmt.Errorf("download raw history: %w", err)
	}
	if !found {
		log.WithField("key", r.opts.RawKey).Info("no remote raw history; cold start")
	}

	apiKey, err := r.deps.Secrets.APIKey(ctx)
	if err != nil {
		return fmt.Errorf("load api key: %w", err)
	}

	to := r.now()
	from := to.Add(-r.opts.Lookback)
	entries := r.deps.Fetcher.Fetch(ctx, apiKey, r.opts.Symbols, from, to)
	res.Fetched = len(entries)
	if len(entries) == 0 {
		res.Status = StatusNoData
		log.Warn("no data fetched; nothing written")
		return nil
	}
	logger.LogDataFlowEntry(log, "coinalyze", "normalizer", len(entries), "oi_history")

	incoming, err := r.deps.Normalizer.Normalize(entries)
	if err != nil {
		return fmt.Errorf("normalize batch: %w", err)
	}
	if len(incoming) == 0 {
		res.Status = StatusNoData
		log.Warn("normalized batch is empty; nothing written")
		return nil
	}

	existing, err := r.deps.Store.Read(ctx, r.opts.RawKey)
	if err != nil {
		log.WithError(err).WithField("key", r.opts.RawKey).Warn("failed to read raw history; starting from empty")
		existing = &models.Table{}
	}

	merged := processor.Merge(existing.MarketRows(), incoming)
	raw := models.MarketTable(merged, r.opts.Exchanges)
	if err := r.deps.Store.Write(ctx, r.opts.RawKey, raw); err != nil {
		return fmt.Errorf("write raw history: %w", err)
	}
	res.RawRows = raw.Len()
	logger.LogDataFlowEntry(log, "merger", r.opts.RawKey, res.RawRows, "market_rows")

	active := processor.ComputeActiveOI(merged, r.opts.Window)
	standardized := processor.Standardize(active, r.opts.Window)
	derived := models.DerivedTable(standardized, r.opts.Exchanges)
	if err := r.deps.Store.Write(ctx, r.opts.DerivedKey, derived); err != nil {
		return fmt.Errorf("write derived table: %w", err)
	}
	res.DerivedRows = derived.Len()
	logger.LogDataFlowEntry(log, "standardizer", r.opts.DerivedKey, res.DerivedRows, "active_oi_rows")

	if res.DerivedRows == 0 {
		log.WithFields(logger.Fields{
			"raw_rows": res.RawRows,
			"window":   r.opts.Window,
		}).Info("history shorter than window; derived table is empty")
	}

	for _, key := range []string{r.opts.RawKey, r.opts.DerivedKey} {
		if err := r.deps.Transfer.Upload(ctx, key, r.deps.Store.Path(key)); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
	}

	res.Status = StatusSuccess
	return nil
}

func (r *Runner) finish(ctx context.Context, log *logger.Entry, start time.Time, res *Result, runErr error) {
	duration := r.now().Sub(start)
	if runErr != nil {
		res.Status = StatusFailed
	}

	entry := log.WithFields(logger.Fields{
		"status":       res.Status,
		"fetched":      res.Fetched,
		"raw_rows":     res.RawRows,
		"derived_rows": res.DerivedRows,
	})
	logger.LogPerformanceEntry(entry, "job", "run", duration, nil)
	if runErr != nil {
		entry.WithError(runErr).Error("run failed")
	} else {
		entry.Info("run finished")
	}

	if r.deps.Recorder != nil {
		summary := metrics.RunSummary{
			RunID:       res.RunID,
			Status:      res.Status,
			Fetched:     res.Fetched,
			RawRows:     res.RawRows,
			DerivedRows: res.DerivedRows,
			Duration:    duration,
			Finished:    r.now(),
			Succeeded:   res.Status == StatusSuccess,
		}
		if err := r.deps.Recorder.Observe(context.WithoutCancel(ctx), summary); err != nil {
			log.WithError(err).Warn("failed to record run metrics")
		}
	}

	logger.LogReport(log)
}
