package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StreamClient is the subset of the Redis client the relay publishes with.
type StreamClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// OutboxStore is what the relay needs from the outbox table.
type OutboxStore interface {
	ClaimDue(ctx context.Context, limit int) ([]*OutboxEvent, error)
	Ack(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, publishErr error) error
	Counts(ctx context.Context) (OutboxCounts, error)
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen trims target streams approximately; zero keeps everything.
	StreamMaxLen int64
}

// Relay publishes outbox rows to their Redis streams.
type Relay struct {
	redis  StreamClient
	outbox OutboxStore
	cfg    RelayConfig
	logger *slog.Logger
}

func NewRelay(db *DB, redisClient StreamClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	return newRelay(NewOutboxRepository(db), redisClient, logger, cfg)
}

func newRelay(outbox OutboxStore, redisClient StreamClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StreamMaxLen == 0 {
		cfg.StreamMaxLen = 10000
	}
	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		cfg:    cfg,
		logger: logger.With("component", "relay"),
	}
}

// Start drains the outbox immediately and then every PollInterval until
// ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil {
			r.logger.Error("failed to drain outbox", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch of due events and returns how many made it to
// Redis. A single event failing does not stop the batch.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	events, err := r.outbox.ClaimDue(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range events {
		if err := r.publish(ctx, event); err != nil {
			r.logger.Warn("outbox event not published",
				"event_id", event.ID,
				"listing_id", event.AggregateID,
				"attempt", event.RetryCount+1,
				"error", err)
			if failErr := r.outbox.Fail(ctx, event.ID, err); failErr != nil {
				r.logger.Error("failed to record publish failure", "event_id", event.ID, "error", failErr)
			}
			continue
		}

		if err := r.outbox.Ack(ctx, event.ID); err != nil {
			// the claim lease expires and the event is published again
			r.logger.Error("failed to ack outbox event", "event_id", event.ID, "error", err)
			continue
		}
		published++

		r.logger.Debug("outbox event published",
			"event_id", event.ID,
			"event_type", event.EventType,
			"listing_id", event.AggregateID,
			"stream", event.TargetStream)
	}

	if published > 0 {
		r.logger.Info("outbox drained", "published", published, "claimed", len(events))
	}
	return published, nil
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	args, err := streamMessage(event)
	if err != nil {
		return err
	}
	if r.cfg.StreamMaxLen > 0 {
		args.MaxLen = r.cfg.StreamMaxLen
		args.Approx = true
	}

	if err := r.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", event.TargetStream, err)
	}
	return nil
}

// streamEnvelope is the JSON carried in the "data" field of each stream
// entry. Consumers decode Payload into the event's own type.
type streamEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Attempt       int             `json:"attempt"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

func streamMessage(event *OutboxEvent) (*redis.XAddArgs, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("outbox event %s has invalid payload", event.ID)
	}

	data, err := json.Marshal(streamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.UTC(),
		Attempt:       event.RetryCount + 1,
		Source:        "listing-autoposter",
		Payload:       event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding stream entry: %w", err)
	}

	return &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: map[string]interface{}{
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
			"outbox_id":      event.ID.String(),
			"created_at":     strconv.FormatInt(event.CreatedAt.UnixMilli(), 10),
			"data":           string(data),
		},
	}, nil
}

// GetPendingCount returns events still waiting to reach Redis.
func (r *Relay) GetPendingCount(ctx context.Context) (int64, error) {
	c, err := r.outbox.Counts(ctx)
	return c.Pending, err
}

// GetDeadLetterCount returns events the relay gave up on.
func (r *Relay) GetDeadLetterCount(ctx context.Context) (int64, error) {
	c, err := r.outbox.Counts(ctx)
	return c.DeadLetter, err
}
