// Package scheduler runs the maintenance jobs on fixed intervals with
// gocron. Each job runs in singleton mode: a tick that arrives while the
// previous run is still going is rescheduled instead of overlapping it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/infra/metrics"
	"github.com/blockrush/blockrush/internal/logger"
)

// Job is the unit the scheduler runs. jobs.Job satisfies it.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry binds a job to its interval.
type Entry struct {
	Job      Job
	Interval time.Duration
}

// RunRecord is the outcome of a job's latest run.
type RunRecord struct {
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Scheduler owns a gocron scheduler and the run history of its jobs.
type Scheduler struct {
	entries []Entry
	log     *logger.Logger

	mu      sync.Mutex
	cron    gocron.Scheduler
	running bool
	last    map[string]RunRecord
}

// New creates a scheduler for entries. Nothing runs until Start.
func New(log *logger.Logger, entries ...Entry) *Scheduler {
	return &Scheduler{
		entries: entries,
		log:     log.With("component", "scheduler"),
		last:    make(map[string]RunRecord),
	}
}

// Start registers every entry and starts ticking. Each job runs once
// immediately. Runs receive ctx; cancel it and call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	for _, e := range s.entries {
		if e.Interval <= 0 {
			s.log.Warn("job disabled", "job", e.Job.Name())
			continue
		}
		job := e.Job
		_, err := cron.NewJob(
			gocron.DurationJob(e.Interval),
			gocron.NewTask(func() { _ = s.run(ctx, job) }),
			gocron.WithName(job.Name()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			_ = cron.Shutdown()
			return fmt.Errorf("schedule %s: %w", job.Name(), err)
		}
		s.log.Info("job scheduled", "job", job.Name(), "interval", e.Interval.String())
	}
	cron.Start()
	s.cron = cron
	s.running = true
	return nil
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cron := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if cron == nil {
		return nil
	}
	return cron.Shutdown()
}

// Running reports whether Start succeeded and Stop has not been called.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs the named job synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, e := range s.entries {
		if e.Job.Name() == name {
			return s.run(ctx, e.Job)
		}
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownJob, name)
}

// LastRun returns the latest run of the named job.
func (s *Scheduler) LastRun(name string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[name]
	return r, ok
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	name := job.Name()
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	metrics.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	rec := RunRecord{At: start, Duration: elapsed}
	if err != nil {
		rec.Error = err.Error()
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
		s.log.Error("job failed", "job", name, "duration", elapsed.String(), "error", err)
	} else {
		metrics.JobRuns.WithLabelValues(name, "ok").Inc()
		s.log.Debug("job finished", "job", name, "duration", elapsed.String())
	}

	s.mu.Lock()
	s.last[name] = rec
	s.mu.Unlock()
	return err
}
