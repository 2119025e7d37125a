package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ourpurple/PDFOptimizer/internal/database"
	"github.com/ourpurple/PDFOptimizer/internal/logging"
	"github.com/ourpurple/PDFOptimizer/internal/models"
)

// JobRunner executes one job. It receives the job's ID, reports
// progress through report, and returns the per-file outcomes. A
// context cancellation means the job was cancelled by the user or by
// shutdown.
type JobRunner func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error)

type jobEntry struct {
	job    *models.Job
	cancel context.CancelFunc
}

// JobManager runs each job on its own goroutine, tracks live state,
// broadcasts progress, and persists finished jobs to history.
type JobManager struct {
	mu      sync.RWMutex
	entries map[string]*jobEntry

	db      *database.DB
	hub     *ProgressHub
	metrics *Metrics

	baseCtx context.Context
	wg      sync.WaitGroup

	// finished in-memory jobs are kept this long for polling clients
	// before history takes over.
	retainFinished time.Duration
}

// NewJobManager creates a job manager. db may be nil to disable
// history persistence (used in tests).
func NewJobManager(ctx context.Context, db *database.DB, hub *ProgressHub, metrics *Metrics) *JobManager {
	return &JobManager{
		entries:        make(map[string]*jobEntry),
		db:             db,
		hub:            hub,
		metrics:        metrics,
		baseCtx:        ctx,
		retainFinished: 10 * time.Minute,
	}
}

// Start launches a job of the given type and returns it immediately in
// pending state.
func (m *JobManager) Start(jobType models.JobType, totalUnits int, run JobRunner) *models.Job {
	job := &models.Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     models.JobPending,
		TotalUnits: totalUnits,
		CreatedAt:  time.Now(),
	}

	ctx, cancel := context.WithCancel(m.baseCtx)

	m.mu.Lock()
	m.entries[job.ID] = &jobEntry{job: job, cancel: cancel}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runJob(ctx, job, run)

	return job
}

func (m *JobManager) runJob(ctx context.Context, job *models.Job, run JobRunner) {
	defer m.wg.Done()

	logger := logging.WithJob(job.ID, string(job.Type))

	now := time.Now()
	m.mu.Lock()
	job.Status = models.JobRunning
	job.StartedAt = &now
	m.mu.Unlock()

	m.metrics.RecordJobStart(string(job.Type))
	logger.Info("job started", "total_units", job.TotalUnits)
	m.broadcast(job, "")

	report := func(event models.ProgressEvent) {
		m.mu.Lock()
		if event.Progress > 0 {
			job.Progress = event.Progress
		}
		if event.CurrentUnit > 0 {
			job.CurrentUnit = event.CurrentUnit
		}
		if event.TotalUnits > 0 {
			job.TotalUnits = event.TotalUnits
		}
		if event.Message != "" {
			job.Message = event.Message
		}
		m.mu.Unlock()

		event.JobID = job.ID
		event.Type = job.Type
		event.Status = models.JobRunning
		m.hub.Broadcast(event)
	}

	files, err := run(ctx, job.ID, report)

	finished := time.Now()
	m.mu.Lock()
	job.FinishedAt = &finished
	job.Files = files
	switch {
	case err == nil:
		job.Status = models.JobCompleted
		job.Progress = 100
		job.Message = ""
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		job.Status = models.JobCancelled
		job.Message = "cancelled"
	default:
		job.Status = models.JobFailed
		job.Message = err.Error()
	}
	snapshot := *job
	m.mu.Unlock()

	duration := finished.Sub(now)
	m.metrics.RecordJobEnd(string(job.Type), string(snapshot.Status), duration)

	switch snapshot.Status {
	case models.JobCompleted:
		logger.Info("job completed", "duration", duration.String(), "files", len(files))
	case models.JobCancelled:
		logger.Warn("job cancelled", "duration", duration.String())
	default:
		logger.Error("job failed", "duration", duration.String(), "error", err)
	}

	m.broadcast(&snapshot, snapshot.Message)

	if m.db != nil {
		if err := m.db.SaveJob(&snapshot); err != nil {
			logger.Error("failed to persist job history", "error", err)
		}
	}

	// Drop the in-memory entry after the retention window.
	time.AfterFunc(m.retainFinished, func() {
		m.mu.Lock()
		delete(m.entries, snapshot.ID)
		m.mu.Unlock()
	})
}

func (m *JobManager) broadcast(job *models.Job, message string) {
	m.hub.Broadcast(models.ProgressEvent{
		JobID:       job.ID,
		Type:        job.Type,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentUnit: job.CurrentUnit,
		TotalUnits:  job.TotalUnits,
		Message:     message,
	})
}

// Get returns a job by ID, falling back to history for jobs that have
// aged out of memory.
func (m *JobManager) Get(jobID string) (*models.Job, error) {
	m.mu.RLock()
	entry, ok := m.entries[jobID]
	if ok {
		snapshot := *entry.job
		m.mu.RUnlock()
		return &snapshot, nil
	}
	m.mu.RUnlock()

	if m.db == nil {
		return nil, nil
	}
	return m.db.GetJob(jobID)
}

// List returns active and recent jobs, newest first.
func (m *JobManager) List(limit int) ([]*models.Job, error) {
	m.mu.RLock()
	jobs := make([]*models.Job, 0, len(m.entries))
	seen := make(map[string]bool, len(m.entries))
	for _, entry := range m.entries {
		snapshot := *entry.job
		jobs = append(jobs, &snapshot)
		seen[snapshot.ID] = true
	}
	m.mu.RUnlock()

	if m.db != nil {
		history, err := m.db.ListJobs(limit)
		if err != nil {
			return nil, err
		}
		for _, job := range history {
			if !seen[job.ID] {
				jobs = append(jobs, job)
			}
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Cancel requests cooperative cancellation of a running job.
func (m *JobManager) Cancel(jobID string) error {
	m.mu.RLock()
	entry, ok := m.entries[jobID]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if entry.job.Terminal() {
		return fmt.Errorf("job already finished: %s", jobID)
	}
	entry.cancel()
	return nil
}

// ActiveCount returns the number of jobs not yet finished.
func (m *JobManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, entry := range m.entries {
		if !entry.job.Terminal() {
			n++
		}
	}
	return n
}

// Wait blocks until all running jobs finish, up to the given timeout.
// Used during graceful shutdown.
func (m *JobManager) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
