package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/listing-autoposter/internal/database"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeListingStatusChanged is published whenever a listing moves to a new status
	EventTypeListingStatusChanged EventType = "LISTING_STATUS_CHANGED"
)

// ListingStatusChangedPayload is the body of a LISTING_STATUS_CHANGED event
type ListingStatusChangedPayload struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	Timestamp      time.Time `json:"timestamp"`
	ListingID      string    `json:"listing_id"`
	Title          string    `json:"title,omitempty"`
	Price          string    `json:"price,omitempty"`
	Platform       string    `json:"platform,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Status         string    `json:"status"`
	Source         string    `json:"source"`
}

// TxRunner runs fn inside a database transaction
type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// OutboxWriter inserts outbox rows inside an open transaction
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes listing events to the transactional outbox
type Publisher struct {
	db     TxRunner
	outbox OutboxWriter
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishStatusChanged writes the event in its own transaction
func (p *Publisher) PublishStatusChanged(ctx context.Context, payload *ListingStatusChangedPayload) error {
	err := p.db.Transaction(ctx, func(tx pgx.Tx) error {
		return p.PublishStatusChangedTx(ctx, tx, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// PublishStatusChangedTx writes the event inside the caller's transaction so
// the status update and the event commit together.
func (p *Publisher) PublishStatusChangedTx(ctx context.Context, tx pgx.Tx, payload *ListingStatusChangedPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeListingStatusChanged)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	if payload.Source == "" {
		payload.Source = "autoposter"
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "listing",
		AggregateID:   payload.ListingID,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  database.DefaultTargetStream,
	}

	if err := p.outbox.Enqueue(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"listing_id", payload.ListingID,
		"status", payload.Status,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
