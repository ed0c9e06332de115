package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/orchestrator"
	"github.com/maltedev/listing-autoposter/internal/queue"
	"github.com/maltedev/listing-autoposter/internal/runlog"
)

var ErrJobNotFound = errors.New("job not found")

// DefaultRetainFinished is how many completed or failed jobs a manager
// keeps for the API.
const DefaultRetainFinished = 200

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Runner is the orchestrator as seen by the worker.
type Runner interface {
	Run(ctx context.Context, listing *models.Listing, sink runlog.Sink, opts ...orchestrator.RunOption) (*orchestrator.RunReport, error)
}

// Job is a snapshot of one publish request.
type Job struct {
	ID          string                  `json:"id"`
	ListingID   string                  `json:"listing_id"`
	Title       string                  `json:"title"`
	Status      Status                  `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Report      *orchestrator.RunReport `json:"report,omitempty"`
	Logs        []string                `json:"logs"`
}

// Stats counts jobs by status.
type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	QueuedJobs    int `json:"queued_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
}

type record struct {
	job     Job
	listing *models.Listing
	log     runlog.Log
}

// LogFactory returns a fresh log for a job.
type LogFactory func(jobID string) runlog.Log

type Manager struct {
	runner   Runner
	queue    queue.Queue
	newLog   LogFactory
	terminal models.Status
	retain   int
	logger   *slog.Logger

	mu     sync.RWMutex
	jobs   map[string]*record
	latest string
}

func NewManager(runner Runner, newLog LogFactory, logger *slog.Logger) *Manager {
	if newLog == nil {
		newLog = func(string) runlog.Log { return runlog.NewMemoryLog(1000) }
	}
	return &Manager{
		runner:   runner,
		queue:    queue.NewInMemoryQueue(),
		newLog:   newLog,
		terminal: models.StatusPublished,
		retain:   DefaultRetainFinished,
		logger:   logger.With("component", "job_manager"),
		jobs:     make(map[string]*record),
	}
}

// Submit queues a run for listing and returns the new job.
func (m *Manager) Submit(listing *models.Listing) (*Job, error) {
	id := uuid.New().String()
	rec := &record{
		job: Job{
			ID:        id,
			ListingID: listing.ID,
			Title:     listing.Title,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
		},
		listing: listing,
		log:     m.newLog(id),
	}
	rec.log.Reset()

	m.mu.Lock()
	m.jobs[id] = rec
	m.latest = id
	pruned := m.pruneLocked()
	m.mu.Unlock()

	if pruned > 0 {
		m.logger.Debug("finished jobs pruned", "count", pruned)
	}

	if err := m.queue.Push(&queue.Task{JobID: id, ListingID: listing.ID}); err != nil {
		m.finish(id, nil, fmt.Errorf("failed to queue job: %w", err))
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", id, "listing_id", listing.ID, "queue_depth", m.queue.Size())
	job, _ := m.Get(id)
	return job, nil
}

func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return rec.snapshot(), nil
}

// List returns jobs newest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, rec := range m.jobs {
		jobs = append(jobs, rec.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// LatestLogs returns the log of the most recently submitted job.
func (m *Manager) LatestLogs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.jobs[m.latest]
	if !ok {
		return []string{}
	}
	return rec.log.Entries()
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalJobs: len(m.jobs)}
	for _, rec := range m.jobs {
		switch rec.job.Status {
		case StatusQueued:
			stats.QueuedJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
	}
	return stats
}

// pruneLocked drops the oldest finished jobs beyond the retain limit.
// Queued and running jobs are never dropped.
func (m *Manager) pruneLocked() int {
	finished := make([]*record, 0, len(m.jobs))
	for _, rec := range m.jobs {
		if rec.job.Status == StatusCompleted || rec.job.Status == StatusFailed {
			finished = append(finished, rec)
		}
	}
	excess := len(finished) - m.retain
	if excess <= 0 {
		return 0
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].job.CompletedAt.Before(*finished[j].job.CompletedAt)
	})
	for _, rec := range finished[:excess] {
		delete(m.jobs, rec.job.ID)
	}
	return excess
}

func (r *record) snapshot() *Job {
	job := r.job
	job.Logs = r.log.Entries()
	return &job
}

func (m *Manager) start(id string) (*record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	now := time.Now().UTC()
	rec.job.Status = StatusRunning
	rec.job.StartedAt = &now
	return rec, true
}

func (m *Manager) finish(id string, report *orchestrator.RunReport, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	rec.job.CompletedAt = &now
	rec.job.Report = report
	if err != nil {
		rec.job.Status = StatusFailed
		rec.job.Error = err.Error()
		return
	}
	rec.job.Status = StatusCompleted
}
