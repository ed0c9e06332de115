package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/orchestrator"
	"github.com/maltedev/listing-autoposter/internal/runlog"
)

type fakeRunner struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	ran     []string
	options int
}

func (r *fakeRunner) Run(ctx context.Context, listing *models.Listing, sink runlog.Sink, opts ...orchestrator.RunOption) (*orchestrator.RunReport, error) {
	if r.block != nil {
		<-r.block
	}
	sink.Append("Starting automation for: " + listing.Title)

	r.mu.Lock()
	r.ran = append(r.ran, listing.ID)
	r.options = len(opts)
	r.mu.Unlock()

	sink.Append("Job complete: " + listing.Title)
	return &orchestrator.RunReport{ListingID: listing.ID, Status: models.StatusPublished}, r.err
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Get(id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestManager_SubmitRunsJob(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManager(runner, nil, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.StartWorker(ctx)

	job, err := m.Submit(&models.Listing{ID: "lst-1", Title: "Desk"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "lst-1", job.ListingID)

	done := waitForStatus(t, m, job.ID, StatusCompleted)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.Report)
	assert.Equal(t, "lst-1", done.Report.ListingID)
	assert.Equal(t, []string{"> Starting automation for: Desk", "> Job complete: Desk"}, done.Logs)
	assert.Equal(t, 1, runner.options)
}

func TestManager_FailedJob(t *testing.T) {
	runner := &fakeRunner{err: errors.New("browser session launch failed")}
	m := NewManager(runner, nil, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.StartWorker(ctx)

	job, err := m.Submit(&models.Listing{ID: "lst-1", Title: "Desk"})
	require.NoError(t, err)

	failed := waitForStatus(t, m, job.ID, StatusFailed)
	assert.Equal(t, "browser session launch failed", failed.Error)
	assert.Equal(t, 1, m.Stats().FailedJobs)
}

func TestManager_QueuedUntilWorkerFree(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	m := NewManager(runner, nil, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.StartWorker(ctx)

	first, err := m.Submit(&models.Listing{ID: "a", Title: "Desk"})
	require.NoError(t, err)
	second, err := m.Submit(&models.Listing{ID: "b", Title: "Chair"})
	require.NoError(t, err)

	waitForStatus(t, m, first.ID, StatusRunning)
	queued, err := m.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, queued.Status)

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.RunningJobs)
	assert.Equal(t, 1, stats.QueuedJobs)

	close(runner.block)
	waitForStatus(t, m, second.ID, StatusCompleted)

	runner.mu.Lock()
	assert.Equal(t, []string{"a", "b"}, runner.ran)
	runner.mu.Unlock()
}

func TestManager_LatestLogsFollowNewestJob(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, slog.Default())
	assert.Empty(t, m.LatestLogs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.StartWorker(ctx)

	first, err := m.Submit(&models.Listing{ID: "a", Title: "Desk"})
	require.NoError(t, err)
	waitForStatus(t, m, first.ID, StatusCompleted)
	assert.Contains(t, m.LatestLogs(), "> Job complete: Desk")

	second, err := m.Submit(&models.Listing{ID: "b", Title: "Chair"})
	require.NoError(t, err)
	waitForStatus(t, m, second.ID, StatusCompleted)

	assert.Equal(t, []string{"> Starting automation for: Chair", "> Job complete: Chair"}, m.LatestLogs())

	jobs := m.List()
	require.Len(t, jobs, 2)
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, slog.Default())

	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_StopEndsWorker(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, slog.Default())
	done := make(chan struct{})
	go func() {
		m.StartWorker(context.Background())
		close(done)
	}()

	require.NoError(t, m.Stop())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	_, err := m.Submit(&models.Listing{ID: "late"})
	assert.Error(t, err)
}

func TestManager_PrunesOldestFinishedJobs(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, slog.Default())
	m.retain = 2
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.StartWorker(ctx)

	var ids []string
	for _, id := range []string{"a", "b", "c", "d"} {
		job, err := m.Submit(&models.Listing{ID: id, Title: "Desk"})
		require.NoError(t, err)
		waitForStatus(t, m, job.ID, StatusCompleted)
		ids = append(ids, job.ID)
	}

	_, err := m.Get(ids[0])
	assert.ErrorIs(t, err, ErrJobNotFound)
	for _, id := range ids[1:] {
		_, err := m.Get(id)
		assert.NoError(t, err)
	}
	assert.Equal(t, 3, m.Stats().TotalJobs)
}

func TestManager_PruneKeepsUnfinishedJobs(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	m := NewManager(runner, nil, slog.Default())
	m.retain = 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.StartWorker(ctx)

	var ids []string
	for _, id := range []string{"a", "b", "c"} {
		job, err := m.Submit(&models.Listing{ID: id, Title: "Desk"})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	waitForStatus(t, m, ids[0], StatusRunning)
	assert.Equal(t, 3, m.Stats().TotalJobs)

	close(runner.block)
	for _, id := range ids {
		waitForStatus(t, m, id, StatusCompleted)
	}

	last, err := m.Submit(&models.Listing{ID: "d", Title: "Chair"})
	require.NoError(t, err)
	waitForStatus(t, m, last.ID, StatusCompleted)

	jobs := m.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, last.ID, jobs[0].ID)
	assert.Contains(t, m.LatestLogs(), "> Starting automation for: Chair")
}
