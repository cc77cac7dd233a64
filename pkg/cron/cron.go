// Package cron schedules recurring jobs owned by plugins or by the framework.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"guildkeeper/pkg/logger"
)

// JobFunc is the body of a job.
type JobFunc func(ctx context.Context) error

// Job represents a scheduled job.
type Job struct {
	ID          string    `json:"id"`           // owner:name
	Name        string    `json:"name"`         // Name within the owner
	Owner       string    `json:"owner"`        // Plugin that scheduled it
	Schedule    string    `json:"schedule"`     // Cron expression or descriptor
	CreatedAt   time.Time `json:"created_at"`   // Creation timestamp
	LastRun     time.Time `json:"last_run"`     // Last execution time
	NextRun     time.Time `json:"next_run"`     // Next scheduled run
	RunCount    int       `json:"run_count"`    // Total executions
	LastError   string    `json:"last_error"`   // Last error message
	LastSuccess bool      `json:"last_success"` // Whether last run succeeded
}

// Manager manages scheduled jobs.
type Manager struct {
	log *logger.Logger

	scheduler *cron.Cron
	jobs      map[string]*Job
	funcs     map[string]JobFunc
	entries   map[string]cron.EntryID
	mu        sync.RWMutex

	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a new cron manager. Schedules use the standard five-field syntax
// plus descriptors such as "@every 1m" and "@hourly".
func New(log *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		log:       log,
		scheduler: cron.New(),
		jobs:      make(map[string]*Job),
		funcs:     make(map[string]JobFunc),
		entries:   make(map[string]cron.EntryID),
		timeout:   5 * time.Minute,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// JobID returns the ID of owner's job called name.
func JobID(owner, name string) string {
	return owner + ":" + name
}

// Start starts the scheduler.
func (m *Manager) Start() error {
	m.log.Info("Starting cron manager", zap.Int("jobs", len(m.ListJobs())))
	m.scheduler.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (m *Manager) Stop() error {
	m.log.Info("Stopping cron manager")

	ctx := m.scheduler.Stop()
	m.cancel()
	<-ctx.Done()

	m.log.Info("Cron manager stopped")
	return nil
}

// AddJob schedules fn under owner/name, replacing a job with the same ID.
func (m *Manager) AddJob(owner, name, schedule string, fn JobFunc) (*Job, error) {
	if owner == "" || name == "" {
		return nil, fmt.Errorf("job owner and name are required")
	}
	if fn == nil {
		return nil, fmt.Errorf("job %s has no function", JobID(owner, name))
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}

	job := &Job{
		ID:        JobID(owner, name),
		Name:      name,
		Owner:     owner,
		Schedule:  schedule,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[job.ID] = job
	m.funcs[job.ID] = fn
	if err := m.scheduleJob(job); err != nil {
		delete(m.jobs, job.ID)
		delete(m.funcs, job.ID)
		return nil, fmt.Errorf("scheduling job: %w", err)
	}

	m.log.Info("Added cron job",
		zap.String("job_id", job.ID),
		zap.String("schedule", schedule))

	jobCopy := *job
	return &jobCopy, nil
}

// RemoveJob removes a job.
func (m *Manager) RemoveJob(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobID]; !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	m.removeLocked(jobID)

	m.log.Info("Removed cron job", zap.String("job_id", jobID))
	return nil
}

// RemoveOwner removes every job of owner and returns how many were removed.
func (m *Manager) RemoveOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		if job.Owner != owner {
			continue
		}
		m.removeLocked(id)
		removed++
	}
	if removed > 0 {
		m.log.Info("Removed cron jobs of owner", zap.String("owner", owner), zap.Int("count", removed))
	}
	return removed
}

// removeLocked requires m.mu.
func (m *Manager) removeLocked(jobID string) {
	if entryID, exists := m.entries[jobID]; exists {
		m.scheduler.Remove(entryID)
		delete(m.entries, jobID)
	}
	delete(m.jobs, jobID)
	delete(m.funcs, jobID)
}

// ListJobs returns copies of all jobs sorted by ID.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

// GetJob returns a job by ID.
func (m *Manager) GetJob(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// RunNow executes a job immediately on the calling goroutine.
func (m *Manager) RunNow(jobID string) error {
	m.mu.RLock()
	_, exists := m.jobs[jobID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return m.executeJob(jobID)
}

// scheduleJob requires m.mu.
func (m *Manager) scheduleJob(job *Job) error {
	if entryID, exists := m.entries[job.ID]; exists {
		m.scheduler.Remove(entryID)
	}

	jobID := job.ID
	entryID, err := m.scheduler.AddFunc(job.Schedule, func() {
		_ = m.executeJob(jobID)
	})
	if err != nil {
		return err
	}

	m.entries[job.ID] = entryID
	// Entry.Next stays zero until the scheduler is running.
	job.NextRun = m.scheduler.Entry(entryID).Schedule.Next(time.Now())
	return nil
}

func (m *Manager) executeJob(jobID string) error {
	m.mu.RLock()
	fn, exists := m.funcs[jobID]
	m.mu.RUnlock()
	if !exists {
		return nil
	}

	m.log.Debug("Executing cron job", zap.String("job_id", jobID))

	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()
	err := runJob(ctx, fn)

	m.mu.Lock()
	if job, exists := m.jobs[jobID]; exists {
		job.LastRun = time.Now()
		job.RunCount++
		if err != nil {
			job.LastSuccess = false
			job.LastError = err.Error()
		} else {
			job.LastSuccess = true
			job.LastError = ""
		}
		if entryID, exists := m.entries[jobID]; exists {
			entry := m.scheduler.Entry(entryID)
			job.NextRun = entry.Next
			if job.NextRun.IsZero() && entry.Schedule != nil {
				job.NextRun = entry.Schedule.Next(time.Now())
			}
		}
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Error("Cron job failed", zap.String("job_id", jobID), zap.Error(err))
	}
	return err
}

func runJob(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}
