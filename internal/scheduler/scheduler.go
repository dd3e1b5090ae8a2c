// Package scheduler runs configured tasks on cron schedules through the
// agent runtime. Scheduled tasks go through the same policy gate as
// interactive ones; a job whose profile lacks a skill simply completes with
// a denial answer.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wardlabs/wardclaw/internal/agent"
	"github.com/wardlabs/wardclaw/internal/config"
)

// Runner executes one task to completion.
type Runner interface {
	RunTask(ctx context.Context, text, profile string) (agent.Result, error)
}

// JobState tracks one job's execution history.
type JobState struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	RunCount  int64     `json:"run_count"`
	ErrCount  int64     `json:"err_count"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-driven task jobs.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *slog.Logger
	timeout time.Duration

	mu    sync.RWMutex
	jobs  map[string]config.Job
	state map[string]*JobState
	ctx   context.Context
}

// New creates a scheduler. Each job run is bounded by timeout; zero means
// ten minutes.
func New(runner Runner, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		logger:  logger.With("component", "scheduler"),
		timeout: timeout,
		jobs:    make(map[string]config.Job),
		state:   make(map[string]*JobState),
	}
}

// Load registers jobs from configuration. Invalid jobs are skipped with a
// warning so one bad entry does not take down the rest.
func (s *Scheduler) Load(jobs []config.Job) {
	for _, job := range jobs {
		if err := s.Add(job); err != nil {
			s.logger.Warn("skipping invalid job", "job", job.Name, "error", err)
		}
	}
	s.logger.Info("jobs loaded", "count", len(s.jobs))
}

// Add registers a single job.
func (s *Scheduler) Add(job config.Job) error {
	if err := validate(job); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already exists", job.Name)
	}

	name := job.Name
	if _, err := s.cron.AddFunc(job.Spec, func() { s.runJob(name) }); err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name, err)
	}

	s.jobs[job.Name] = job
	s.state[job.Name] = &JobState{Name: job.Name, Spec: job.Spec}
	return nil
}

func validate(job config.Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name required")
	}
	if job.Task == "" {
		return fmt.Errorf("job %s: task text required", job.Name)
	}
	if _, err := cron.ParseStandard(job.Spec); err != nil {
		return fmt.Errorf("job %s: invalid cron spec %q: %w", job.Name, job.Spec, err)
	}
	return nil
}

// Start begins firing jobs and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	count := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", count)
	s.cron.Start()

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	// Let in-flight jobs drain before returning.
	select {
	case <-stopCtx.Done():
	case <-time.After(s.timeout):
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// RunNow fires a job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	_, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job not found: %s", name)
	}
	s.runJob(name)
	return nil
}

func (s *Scheduler) runJob(name string) {
	s.mu.RLock()
	job := s.jobs[name]
	base := s.ctx
	s.mu.RUnlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("job starting", "job", name, "profile", job.Profile)
	res, err := s.runner.RunTask(ctx, job.Task, job.Profile)

	s.mu.Lock()
	st := s.state[name]
	st.RunCount++
	st.LastRunAt = start
	if err != nil {
		st.ErrCount++
		st.LastError = err.Error()
	} else {
		st.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("job completed", "job", name, "task", res.TaskID, "duration", time.Since(start))
}

// States returns a snapshot of every job's execution state.
func (s *Scheduler) States() []JobState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobState, 0, len(s.state))
	for _, st := range s.state {
		out = append(out, *st)
	}
	return out
}
