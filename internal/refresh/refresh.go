// Package refresh periodically re-imports subscribed calendar URLs.
package refresh

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"uqconnect/internal/calendar"
	appLog "uqconnect/internal/log"
	"uqconnect/internal/metrics"
)

// Refresher is the work a scheduled run performs.
type Refresher interface {
	RefreshAll(ctx context.Context) (calendar.RefreshReport, error)
}

// Scheduler runs a Refresher on a cron schedule. Runs never overlap: a tick
// that fires while the previous run is still in progress is skipped.
type Scheduler struct {
	spec     string
	r        Refresher
	wrappers []cron.JobWrapper
}

func New(spec string, r Refresher) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:     spec,
		r:        r,
		wrappers: []cron.JobWrapper{cron.SkipIfStillRunning(cronLogger{})},
	}, nil
}

// Start schedules the job and blocks until ctx is cancelled, then waits for
// an in-flight run to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithLogger(cronLogger{}), cron.WithChain(s.wrappers...))
	if _, err := c.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return err
	}
	c.Start()
	appLog.Info("refresh scheduler started", "schedule", s.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("refresh scheduler stopped")
	return nil
}

// job is the scheduled unit with the scheduler's wrappers applied.
func (s *Scheduler) job(ctx context.Context) cron.Job {
	return cron.NewChain(s.wrappers...).Then(cron.FuncJob(func() { s.run(ctx) }))
}

func (s *Scheduler) run(ctx context.Context) {
	report, err := s.r.RefreshAll(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		appLog.Info("refresh run cancelled",
			"subscriptions", report.Subscriptions,
			"added", report.Added,
		)
		metrics.RefreshRuns.WithLabelValues("cancelled").Inc()
		return
	case err != nil:
		appLog.Error("refresh run failed", err)
		metrics.RefreshRuns.WithLabelValues("error").Inc()
		return
	}
	metrics.RefreshRuns.WithLabelValues("ok").Inc()
	appLog.Info("refresh run completed",
		"subscriptions", report.Subscriptions,
		"added", report.Added,
		"failed", report.Failed,
	)
}

// cronLogger routes cron's own messages to the application log. Skipped
// ticks arrive here as "skip".
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		appLog.Info("refresh still running; skipping tick")
		metrics.RefreshRuns.WithLabelValues("skipped").Inc()
		return
	}
	appLog.Debug("cron "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron "+msg, err, keysAndValues...)
}
