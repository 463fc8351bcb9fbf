// Package scheduler runs the operational jobs of OpsClone (analytics digests
// and webhook probes) on cron schedules. Uses robfig/cron for expression
// parsing and execution.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/opsclone/pkg/opsclone/metrics"
)

// Job kinds.
const (
	KindAnalyticsDigest = "analytics_digest"
	KindWebhookProbe    = "webhook_probe"
)

const defaultJobTimeout = 2 * time.Minute

// Config configures the scheduler.
type Config struct {
	// Enabled turns the scheduler on/off.
	Enabled bool `yaml:"enabled"`

	// JobTimeout bounds a single run unless the job sets its own (default: 2m).
	JobTimeout time.Duration `yaml:"job_timeout"`

	Jobs []*Job `yaml:"jobs"`
}

// DefaultConfig returns a daily analytics digest and an hourly webhook probe.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		JobTimeout: defaultJobTimeout,
		Jobs: []*Job{
			{ID: "daily-digest", Kind: KindAnalyticsDigest, Schedule: "0 8 * * *", TimeRange: "1d", Enabled: true},
			{ID: "webhook-probe", Kind: KindWebhookProbe, Schedule: "@hourly", Enabled: true},
		},
	}
}

// Job is a scheduled operational task.
type Job struct {
	// ID is the unique job identifier.
	ID string `json:"id" yaml:"id"`

	// Kind selects what the job does: analytics_digest or webhook_probe.
	Kind string `json:"kind" yaml:"kind"`

	// Schedule is a 5-field cron expression or a descriptor such as
	// @hourly or @every 30m.
	Schedule string `json:"schedule" yaml:"schedule"`

	// TimeRange is the analytics window of a digest (1d, 7d, 30d).
	TimeRange string `json:"time_range,omitempty" yaml:"time_range,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`

	// TimeoutSeconds overrides the scheduler's job timeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`

	LastRunAt       *time.Time    `json:"last_run_at,omitempty" yaml:"-"`
	LastError       string        `json:"last_error,omitempty" yaml:"-"`
	LastRunDuration time.Duration `json:"last_run_duration,omitempty" yaml:"-"`
	RunCount        int           `json:"run_count" yaml:"-"`
}

// JobHandler is called when a job fires. Returns a short summary or error.
type JobHandler func(ctx context.Context, job *Job) (string, error)

// Scheduler manages jobs on a cron.
type Scheduler struct {
	jobs map[string]*Job
	cron *cron.Cron

	// cronIDs maps job IDs to their cron entry IDs for removal.
	cronIDs map[string]cron.EntryID

	// runningJobs prevents a job from overlapping with its previous run.
	runningJobs map[string]bool

	handler    JobHandler
	jobTimeout time.Duration

	logger *slog.Logger
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler that runs jobs through handler.
func New(handler JobHandler, jobTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:        make(map[string]*Job),
		cronIDs:     make(map[string]cron.EntryID),
		runningJobs: make(map[string]bool),
		handler:     handler,
		jobTimeout:  jobTimeout,
		logger:      logger.With("component", "scheduler"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func newCron() *cron.Cron {
	return cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
}

// Add registers a job. The schedule is validated even when the job is
// disabled.
func (s *Scheduler) Add(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %q already exists", job.ID)
	}
	switch job.Kind {
	case KindAnalyticsDigest, KindWebhookProbe:
	default:
		return fmt.Errorf("job %q: unknown kind %q", job.ID, job.Kind)
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", job.Schedule, err)
	}

	if s.cron != nil && job.Enabled {
		if err := s.scheduleCronJob(job); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", job.Schedule, err)
		}
	}
	s.jobs[job.ID] = job

	s.logger.Info("job added", "id", job.ID, "kind", job.Kind, "schedule", job.Schedule)
	return nil
}

// Remove deletes a job by ID.
func (s *Scheduler) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return fmt.Errorf("job %q not found", jobID)
	}
	if entryID, ok := s.cronIDs[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.cronIDs, jobID)
	}
	delete(s.jobs, jobID)

	s.logger.Info("job removed", "id", jobID)
	return nil
}

// List returns all registered jobs ordered by ID.
func (s *Scheduler) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, j)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID < result[k].ID })
	return result
}

// Get returns a job by ID.
func (s *Scheduler) Get(jobID string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	return j, ok
}

// Start schedules every enabled job and starts the cron. Jobs are cancelled
// when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = newCron()
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		if err := s.scheduleCronJob(job); err != nil {
			s.logger.Warn("skipping job with invalid schedule",
				"id", job.ID, "schedule", job.Schedule, "error", err)
		}
	}
	entries := len(s.cron.Entries())
	jobCount := len(s.jobs)
	s.cron.Start()
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", jobCount, "cron_entries", entries)
	return nil
}

// Stop shuts down the cron and waits briefly for running jobs.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	c := s.cron
	s.mu.RUnlock()

	if c != nil {
		done := c.Stop()
		select {
		case <-done.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("scheduler stop timed out")
		}
	}
	s.cancel()
	s.logger.Info("scheduler stopped")
}

// RunNow executes a job immediately, outside its schedule. It reports false
// when the job is unknown or already running.
func (s *Scheduler) RunNow(jobID string) bool {
	job, ok := s.Get(jobID)
	if !ok {
		return false
	}
	return s.executeJob(job)
}

// scheduleCronJob registers a job with the cron. Callers hold s.mu.
func (s *Scheduler) scheduleCronJob(job *Job) error {
	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		s.executeJob(job)
	})
	if err != nil {
		return err
	}
	s.cronIDs[job.ID] = entryID
	return nil
}

// executeJob runs one job with an overlap guard, panic recovery and a
// timeout. It reports whether the job ran.
func (s *Scheduler) executeJob(job *Job) (ran bool) {
	s.mu.Lock()
	if s.runningJobs[job.ID] {
		s.mu.Unlock()
		s.logger.Warn("skipping job (already running)", "id", job.ID)
		metrics.ScheduledRuns.WithLabelValues(job.Kind, "skipped").Inc()
		return false
	}
	s.runningJobs[job.ID] = true
	now := time.Now()
	job.LastRunAt = &now
	job.RunCount++
	parent := s.ctx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.runningJobs, job.ID)
		s.mu.Unlock()

		if r := recover(); r != nil {
			ran = true
			s.mu.Lock()
			job.LastError = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
			s.logger.Error("scheduled job panicked", "id", job.ID, "panic", r)
			metrics.ScheduledRuns.WithLabelValues(job.Kind, "panic").Inc()
		}
	}()

	if s.handler == nil {
		s.mu.Lock()
		job.LastError = "no handler configured"
		s.mu.Unlock()
		return true
	}

	timeout := s.jobTimeout
	if job.TimeoutSeconds > 0 {
		timeout = time.Duration(job.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	s.logger.Info("executing scheduled job", "id", job.ID, "kind", job.Kind)

	start := time.Now()
	result, err := s.handler(ctx, job)
	elapsed := time.Since(start)

	s.mu.Lock()
	job.LastRunDuration = elapsed
	if err != nil {
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		metrics.ScheduledRuns.WithLabelValues(job.Kind, "error").Inc()
		s.logger.Error("scheduled job failed", "id", job.ID, "error", err, "duration", elapsed)
		return true
	}
	metrics.ScheduledRuns.WithLabelValues(job.Kind, "ok").Inc()
	s.logger.Info("scheduled job completed", "id", job.ID, "result", result, "duration", elapsed)
	return true
}
