package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessed  OutboxStatus = "processed"
	OutboxFailed     OutboxStatus = "failed"
	OutboxDeadLetter OutboxStatus = "dead_letter"

	// DefaultTargetStream receives listing lifecycle events
	DefaultTargetStream = "stream:listing_lifecycle"
)

// OutboxEvent is one row of the transactional outbox.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        OutboxStatus    `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// RetryPolicy decides when a failed event is retried and when it is given up.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Minute,
	}
}

// Backoff returns the delay before retry number attempt (1-based): base,
// 2*base, 4*base... capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether attempt failures move the event to dead letter.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// OutboxCounts is the backlog reported by the health endpoint.
type OutboxCounts struct {
	Pending    int64
	DeadLetter int64
}

type OutboxRepository struct {
	db     *DB
	policy RetryPolicy
	lease  time.Duration
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		policy: DefaultRetryPolicy(),
		lease:  time.Minute,
	}
}

// Enqueue inserts event inside tx so it commits with the listing change.
func (r *OutboxRepository) Enqueue(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxPending
	}
	if event.TargetStream == "" {
		event.TargetStream = DefaultTargetStream
	}
	event.CreatedAt = time.Now()
	if event.NextRetryAt == nil {
		due := event.CreatedAt
		event.NextRetryAt = &due
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type, payload,
			target_stream, status, retry_count, created_at, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload,
		event.TargetStream, event.Status, event.RetryCount, event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// ClaimDue returns up to limit due events and pushes their next_retry_at out
// by the lease, so relays in other processes skip them meanwhile.
func (r *OutboxRepository) ClaimDue(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx, `
		UPDATE outbox_event
		SET next_retry_at = NOW() + make_interval(secs => $4)
		WHERE id IN (
			SELECT id FROM outbox_event
			WHERE status IN ($1, $2) AND next_retry_at <= NOW()
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, aggregate_type, aggregate_id, event_type, payload,
			target_stream, status, retry_count, error_message, created_at,
			processed_at, next_retry_at`,
		OutboxPending, OutboxFailed, limit, r.lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*OutboxEvent, error) {
		e := &OutboxEvent{}
		err := row.Scan(
			&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload,
			&e.TargetStream, &e.Status, &e.RetryCount, &e.ErrorMessage, &e.CreatedAt,
			&e.ProcessedAt, &e.NextRetryAt,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox events: %w", err)
	}

	// RETURNING does not keep the subquery order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func (r *OutboxRepository) Ack(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE outbox_event SET status = $1, processed_at = NOW() WHERE id = $2`,
		OutboxProcessed, id)
	if err != nil {
		return fmt.Errorf("failed to ack outbox event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// Fail records publishErr and schedules the next attempt, or dead-letters
// the event once the policy is exhausted.
func (r *OutboxRepository) Fail(ctx context.Context, id uuid.UUID, publishErr error) error {
	var attempts int
	err := r.db.pool.QueryRow(ctx,
		`SELECT retry_count + 1 FROM outbox_event WHERE id = $1`, id).Scan(&attempts)
	if err != nil {
		return fmt.Errorf("failed to load outbox event %s: %w", id, err)
	}

	status := OutboxFailed
	if r.policy.Exhausted(attempts) {
		status = OutboxDeadLetter
	}
	next := time.Now().Add(r.policy.Backoff(attempts))

	_, err = r.db.pool.Exec(ctx, `
		UPDATE outbox_event
		SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4
		WHERE id = $5`,
		status, attempts, publishErr.Error(), next, id)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Counts(ctx context.Context) (OutboxCounts, error) {
	var c OutboxCounts
	err := r.db.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ($1, $2)),
			COUNT(*) FILTER (WHERE status = $3)
		FROM outbox_event`,
		OutboxPending, OutboxFailed, OutboxDeadLetter).Scan(&c.Pending, &c.DeadLetter)
	if err != nil {
		return OutboxCounts{}, fmt.Errorf("failed to count outbox events: %w", err)
	}
	return c, nil
}
