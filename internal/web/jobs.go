package web

import (
	"context"
	"sync"
	"time"

	"github.com/phajek/mediascan/internal/pipeline"
)

// JobStatus represents the status of an async scan job.
type JobStatus string

// Scan job lifecycle states.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ScanJobView is the JSON shape of a job, detached from the job's locking.
type ScanJobView struct {
	ID          string           `json:"id"`
	Status      JobStatus        `json:"status"`
	Report      *pipeline.Report `json:"report,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ScanJob tracks one asynchronous pipeline run.
type ScanJob struct {
	ID          string
	Status      JobStatus
	Report      *pipeline.Report
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	cancel context.CancelFunc
	mu     sync.RWMutex
}

// Cancel requests cooperative cancellation of the underlying run.
func (j *ScanJob) Cancel() {
	if j.cancel != nil {
		j.cancel()
	}
}

// Snapshot returns a copy safe for JSON encoding.
func (j *ScanJob) Snapshot() ScanJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return ScanJobView{
		ID:          j.ID,
		Status:      j.Status,
		Report:      j.Report,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func (j *ScanJob) finish(status JobStatus, report *pipeline.Report, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.Status = status
	j.Report = report
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
	}
}

// JobManager manages async scan jobs.
type JobManager struct {
	jobs map[string]*ScanJob
	mu   sync.RWMutex
}

// NewJobManager creates an empty job manager.
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*ScanJob)}
}

// CreateJob registers a new running job.
func (m *JobManager) CreateJob(id string, cancel context.CancelFunc) *ScanJob {
	job := &ScanJob{
		ID:        id,
		Status:    JobStatusRunning,
		StartedAt: time.Now(),
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID, nil if unknown.
func (m *JobManager) GetJob(id string) *ScanJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ActiveJob returns the currently running job, if any.
func (m *JobManager) ActiveJob() *ScanJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		job.mu.RLock()
		running := job.Status == JobStatusRunning
		job.mu.RUnlock()
		if running {
			return job
		}
	}
	return nil
}

// CancelAll cancels every running job, used during shutdown.
func (m *JobManager) CancelAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		job.Cancel()
	}
}
