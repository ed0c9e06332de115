package jobs

import (
	"context"
	"errors"

	"github.com/maltedev/listing-autoposter/internal/orchestrator"
	"github.com/maltedev/listing-autoposter/internal/queue"
)

// StartWorker runs queued jobs one at a time until ctx ends or Stop is
// called.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to take job", "error", err)
			continue
		}

		m.processJob(ctx, task.JobID)
	}
}

// Stop closes the queue; the worker drains what is queued and exits.
func (m *Manager) Stop() error {
	return m.queue.Close()
}

func (m *Manager) processJob(ctx context.Context, jobID string) {
	rec, ok := m.start(jobID)
	if !ok {
		m.logger.Warn("job disappeared before start", "id", jobID)
		return
	}

	m.logger.Info("processing job", "id", jobID, "listing_id", rec.listing.ID)

	report, err := m.runner.Run(ctx, rec.listing, rec.log, orchestrator.WithTerminalStatus(m.terminal))
	if err != nil {
		m.logger.Error("job failed", "id", jobID, "error", err)
		m.finish(jobID, report, err)
		return
	}

	m.finish(jobID, report, nil)
	m.logger.Info("job completed", "id", jobID)
}
