// Package watcher polls the store for Pending listings and posts them one
// at a time.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/listing-autoposter/internal/events"
	"github.com/maltedev/listing-autoposter/internal/jobs"
	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/runlog"
	"github.com/maltedev/listing-autoposter/internal/storage"
)

const DefaultInterval = 5 * time.Second

type Watcher struct {
	store    storage.Store
	runner   jobs.Runner
	sink     runlog.Sink
	interval time.Duration
	logger   *slog.Logger
}

// New returns a watcher writing every run to the same sink.
func New(store storage.Store, runner jobs.Runner, sink runlog.Sink, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sink == nil {
		sink = runlog.Discard
	}
	return &Watcher{
		store:    store,
		runner:   runner,
		sink:     sink,
		interval: interval,
		logger:   logger.With("component", "watcher"),
	}
}

// Run polls until ctx is cancelled. Errors never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching for pending listings", "interval", w.interval)

	for {
		w.RunOnce(ctx)

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("watcher stopping")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce processes every Pending listing sequentially and returns how many
// runs were attempted.
func (w *Watcher) RunOnce(ctx context.Context) int {
	pending, err := w.store.FindByStatus(ctx, models.StatusPending)
	if err != nil {
		w.logger.Error("failed to query pending listings", "error", err)
		return 0
	}

	processed := 0
	for _, listing := range pending {
		if ctx.Err() != nil {
			break
		}

		w.logger.Info("new job received", "listing_id", listing.ID, "title", listing.Title)
		processed++

		report, err := w.runner.Run(ctx, listing, w.sink)
		if err != nil {
			w.logger.Error("automation run failed", "listing_id", listing.ID, "error", err)
			continue
		}
		w.logger.Info("automation run finished", "listing_id", listing.ID, "status", report.Status)
	}
	return processed
}

// HandleEvent runs automation for a listing whose status change arrived on
// the lifecycle stream. Events for anything but Pending are ignored, and the
// store decides whether the listing is still waiting to be posted.
func (w *Watcher) HandleEvent(ctx context.Context, event *events.ListingStatusChangedPayload) error {
	if event.Status != string(models.StatusPending) {
		return nil
	}

	listing, err := w.store.Get(ctx, event.ListingID)
	if err != nil {
		return fmt.Errorf("loading listing %s: %w", event.ListingID, err)
	}
	if listing.Status.IsTerminal() {
		w.logger.Info("listing already posted", "listing_id", listing.ID, "status", listing.Status)
		return nil
	}
	if listing.Status != models.StatusPending {
		w.logger.Info("listing no longer pending", "listing_id", listing.ID, "status", listing.Status)
		return nil
	}

	w.logger.Info("new job received", "listing_id", listing.ID, "title", listing.Title, "event_id", event.EventID)
	_, err = w.runner.Run(ctx, listing, w.sink)
	return err
}
