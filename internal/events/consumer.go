package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/listing-autoposter/internal/database"
)

// GroupClient is the consumer-group subset of the Redis client.
type GroupClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler is called once per listing status event. A returned error leaves
// the message unacknowledged.
type Handler func(ctx context.Context, event *ListingStatusChangedPayload) error

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Block  time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Stream: database.DefaultTargetStream,
		Group:  "autoposter-group",
		Name:   "autoposter-1",
		Block:  5 * time.Second,
	}
}

// Consumer reads listing lifecycle events that the outbox relay put on a
// Redis stream.
type Consumer struct {
	client  GroupClient
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client GroupClient, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Stream == "" {
		cfg.Stream = def.Stream
	}
	if cfg.Group == "" {
		cfg.Group = def.Group
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Block <= 0 {
		cfg.Block = def.Block
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "event_consumer", "stream", cfg.Stream),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("starting consumer", "group", c.cfg.Group)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := c.ReadOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ReadOnce reads one batch and returns how many messages were acknowledged.
func (c *Consumer) ReadOnce(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    10,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}

			if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
				continue
			}
			acked++
		}
	}
	return acked, nil
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(EventTypeListingStatusChanged) {
		return nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("missing data in event")
	}

	var envelope struct {
		Payload ListingStatusChangedPayload `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	if envelope.Payload.ListingID == "" {
		return fmt.Errorf("missing listing_id in event")
	}

	c.logger.Debug("processing event",
		"message_id", msg.ID,
		"listing_id", envelope.Payload.ListingID,
		"status", envelope.Payload.Status)

	return c.handler(ctx, &envelope.Payload)
}
