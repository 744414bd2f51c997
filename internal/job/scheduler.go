package job

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"activeoi/logger"
)

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct {
	log *logger.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) logger.Fields {
	fields := make(logger.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// Scheduler runs the job on a standard five-field cron expression. A tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	log    *logger.Entry
	ctx    context.Context
}

func NewScheduler(expr string, runner *Runner) (*Scheduler, error) {
	log := logger.GetLogger().WithComponent("scheduler")
	cl := cronLogger{log: log}

	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s := &Scheduler{cron: c, runner: runner, log: log, ctx: context.Background()}

	if _, err := c.AddFunc(expr, s.tick); err != nil {
		return nil, fmt.Errorf("failed to add cron job: %w", err)
	}
	log.WithField("schedule", expr).Info("scheduled run")
	return s, nil
}

func (s *Scheduler) tick() {
	res, err := s.runner.Run(s.ctx)
	if err != nil {
		// The next tick retries; the error was already logged by the runner.
		s.log.WithField("run_id", res.RunID).Debug("scheduled run failed")
		return
	}
	s.log.WithFields(logger.Fields{"run_id": res.RunID, "status": res.Status}).Debug("scheduled run done")
}

// Start begins scheduling in a background goroutine. Runs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop prevents further ticks and waits for a running job to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("timed out waiting for the running job")
	}
}
