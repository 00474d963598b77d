package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/metrics"
)

// JobFunc is one scheduled unit of work. runID identifies the run in logs.
type JobFunc func(ctx context.Context, runID string) error

// JobInfo represents information about a scheduled job
type JobInfo struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Schedule   string        `json:"schedule"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	Status     string        `json:"status"`
	RunCount   int           `json:"run_count"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Duration   time.Duration `json:"duration"`
	IsEnabled  bool          `json:"is_enabled"`
}

type job struct {
	info    JobInfo
	entryID cron.EntryID
	fn      JobFunc
}

// Scheduler runs feature rebuild and retraining jobs on cron schedules.
type Scheduler struct {
	logger    *logrus.Logger
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	jobs      map[string]*job
	isRunning bool
}

func New(logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(logger)), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	return &Scheduler{
		logger: logger,
		cron:   c,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// AddJob registers fn under id on a standard five-field cron schedule.
func (s *Scheduler) AddJob(id, schedule, name string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("job %s already scheduled", id)
	}
	entryID, err := s.cron.AddFunc(schedule, func() {
		_ = s.runJob(id)
	})
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", id, err)
	}

	s.jobs[id] = &job{
		info: JobInfo{
			ID:        id,
			Name:      name,
			Schedule:  schedule,
			NextRun:   s.cron.Entry(entryID).Next,
			Status:    "scheduled",
			IsEnabled: true,
		},
		entryID: entryID,
		fn:      fn,
	}

	s.logger.WithFields(logrus.Fields{
		"component": "scheduler",
		"job_id":    id,
		"job_name":  name,
		"schedule":  schedule,
	}).Info("Scheduled job added")
	return nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	s.cron.Start()
	s.isRunning = true
	s.logger.WithFields(logrus.Fields{
		"component": "scheduler",
		"jobs":      len(s.jobs),
	}).Info("Scheduler started")
	return nil
}

// Stop waits up to timeout for running jobs, then cancels their context.
// Running jobs record their outcome under s.mu, so the wait happens unlocked.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stopped := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-stopped.Done():
		s.logger.WithField("component", "scheduler").Info("Scheduler stopped gracefully")
	case <-time.After(timeout):
		s.logger.WithField("component", "scheduler").Warn("Scheduler stop timed out")
	}
	s.cancel()
}

// RunNow runs a job immediately and returns its error.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	_, exists := s.jobs[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job %s not found", id)
	}
	return s.runJob(id)
}

func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job %s not found", id)
	}
	j.info.IsEnabled = enabled
	s.logger.WithFields(logrus.Fields{"job_id": id, "enabled": enabled}).Info("Job toggled")
	return nil
}

// Jobs returns a snapshot of every job.
func (s *Scheduler) Jobs() map[string]JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]JobInfo, len(s.jobs))
	for id, j := range s.jobs {
		out[id] = j.info
	}
	return out
}

// runJob executes a job with panic recovery and records its outcome.
func (s *Scheduler) runJob(id string) (err error) {
	s.mu.Lock()
	j, exists := s.jobs[id]
	if !exists || !j.info.IsEnabled {
		s.mu.Unlock()
		return nil
	}
	j.info.Status = "running"
	j.info.LastRun = time.Now()
	j.info.RunCount++
	fn, name, runCount := j.fn, j.info.Name, j.info.RunCount
	s.mu.Unlock()

	runID := uuid.New().String()
	logger := s.logger.WithFields(logrus.Fields{
		"component": "scheduler",
		"job_id":    id,
		"job_name":  name,
		"run_id":    runID,
		"run_count": runCount,
	})
	logger.Info("Starting scheduled job")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", id, r)
		}
		status := "completed"
		if err != nil {
			status = "failed"
			logger.WithError(err).Error("Job failed")
		} else {
			logger.WithField("duration", time.Since(start)).Info("Job completed successfully")
		}
		metrics.ScheduledJobs.WithLabelValues(id, status).Inc()
		s.finish(id, status, err, time.Since(start))
	}()

	return fn(s.ctx, runID)
}

func (s *Scheduler) finish(id, status string, err error, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return
	}
	j.info.Status = status
	j.info.Duration = duration
	if err != nil {
		j.info.ErrorCount++
		j.info.LastError = err.Error()
	}
	j.info.NextRun = s.cron.Entry(j.entryID).Next
}
