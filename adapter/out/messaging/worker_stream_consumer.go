package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// JobHandler processes jobs from streams.
type JobHandler interface {
	Handle(ctx context.Context, stream string, data []byte) error
}

// ErrPoison marks a message that can never succeed, e.g. undecodable
// payloads. Poison messages go to the DLQ at once instead of being retried.
var ErrPoison = errors.New("poison message")

// Consumer consumes messages from Redis Streams.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	streams  []string
	handler  JobHandler
	log      zerolog.Logger

	batchSize            int64
	block                time.Duration
	pendingCheckInterval time.Duration // how often stuck messages are looked for
	pendingIdleTime      time.Duration // idle time before a message is reclaimed
	maxRetries           int           // deliveries before a message goes to the DLQ
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  JobHandler
	Logger   zerolog.Logger

	// Optional
	BatchSize            int64
	Block                time.Duration
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

// NewConsumer creates a new Consumer.
func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		streams:              cfg.Streams,
		handler:              cfg.Handler,
		log:                  cfg.Logger.With().Str("component", "stream_consumer").Logger(),
		batchSize:            cfg.BatchSize,
		block:                cfg.Block,
		pendingCheckInterval: cfg.PendingCheckInterval,
		pendingIdleTime:      cfg.PendingIdleTime,
		maxRetries:           cfg.MaxRetries,
	}

	if c.batchSize <= 0 {
		c.batchSize = 10
	}
	if c.block <= 0 {
		c.block = 5 * time.Second
	}
	if c.pendingCheckInterval <= 0 {
		c.pendingCheckInterval = 30 * time.Second
	}
	if c.pendingIdleTime <= 0 {
		c.pendingIdleTime = 2 * time.Minute
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Strs("streams", c.streams).
		Msg("starting consumer")

	for _, stream := range c.streams {
		if err := c.createConsumerGroup(ctx, stream); err != nil {
			return err
		}
	}

	go c.processPendingMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.readMessages(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("error reading from streams")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				c.handleMessage(ctx, stream.Stream, msg)
			}
		}
	}
}

// handleMessage processes one delivery and settles it: ack on success,
// DLQ on poison, left pending otherwise so the claim loop retries it.
func (c *Consumer) handleMessage(ctx context.Context, stream string, msg redis.XMessage) {
	err := c.processMessage(ctx, stream, msg)
	switch {
	case err == nil:
		c.ack(ctx, stream, msg.ID)
	case errors.Is(err, ErrPoison):
		c.log.Warn().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("poison message, moving to DLQ")
		if err := c.moveToDeadLetterQueue(ctx, stream, msg, err); err != nil {
			c.log.Error().Err(err).Str("id", msg.ID).Msg("error moving message to DLQ")
			return
		}
		c.ack(ctx, stream, msg.ID)
	default:
		c.log.Error().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("error processing message")
	}
}

func (c *Consumer) ack(ctx context.Context, stream, id string) {
	if err := c.client.XAck(ctx, stream, c.group, id).Err(); err != nil {
		c.log.Error().Err(err).Str("stream", stream).Str("id", id).Msg("error acknowledging message")
	}
}

// processPendingMessages periodically reclaims stuck pending messages.
func (c *Consumer) processPendingMessages(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimAndProcessPending(ctx)
		}
	}
}

// claimAndProcessPending claims stuck pending messages and reprocesses them.
func (c *Consumer) claimAndProcessPending(ctx context.Context) {
	for _, stream := range c.streams {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  c.group,
			Idle:   c.pendingIdleTime,
			Start:  "-",
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				c.log.Error().Err(err).Str("stream", stream).Msg("error getting pending messages")
			}
			continue
		}

		for _, p := range pending {
			if p.Idle < c.pendingIdleTime {
				continue
			}

			claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
				Stream:   stream,
				Group:    c.group,
				Consumer: c.consumer,
				MinIdle:  c.pendingIdleTime,
				Messages: []string{p.ID},
			}).Result()
			if err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
				continue
			}

			for _, msg := range claimed {
				if exceedsRetries(p.RetryCount, c.maxRetries) {
					c.log.Warn().
						Str("stream", stream).
						Str("id", msg.ID).
						Int64("deliveries", p.RetryCount).
						Msg("message exceeded max retries, moving to DLQ")
					if err := c.moveToDeadLetterQueue(ctx, stream, msg, errors.New("max retries exceeded")); err != nil {
						c.log.Error().Err(err).Str("id", msg.ID).Msg("error moving message to DLQ")
						continue
					}
					c.ack(ctx, stream, msg.ID)
					continue
				}

				c.log.Info().
					Str("stream", stream).
					Str("id", msg.ID).
					Str("previous_consumer", p.Consumer).
					Dur("idle", p.Idle).
					Msg("reprocessing stuck pending message")
				c.handleMessage(ctx, stream, msg)
			}
		}
	}
}

// exceedsRetries reports whether a message delivered count times has used
// up its retries.
func exceedsRetries(count int64, maxRetries int) bool {
	return count >= int64(maxRetries)
}

// createConsumerGroup creates a consumer group if it doesn't exist.
func (c *Consumer) createConsumerGroup(ctx context.Context, stream string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group on %s: %w", stream, err)
	}
	return nil
}

// readMessages reads messages from all streams using XREADGROUP.
func (c *Consumer) readMessages(ctx context.Context) ([]redis.XStream, error) {
	if len(c.streams) == 0 {
		return nil, redis.Nil
	}

	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  readGroupStreams(c.streams),
		Count:    c.batchSize,
		Block:    c.block,
	}).Result()
}

// readGroupStreams builds the XREADGROUP stream list: names, then ">" ids.
func readGroupStreams(streams []string) []string {
	args := make([]string, len(streams)*2)
	for i, stream := range streams {
		args[i] = stream
		args[len(streams)+i] = ">"
	}
	return args
}

// processMessage hands the "data" field of a message to the handler.
func (c *Consumer) processMessage(ctx context.Context, stream string, msg redis.XMessage) error {
	data, err := messageData(msg)
	if err != nil {
		return err
	}
	return c.handler.Handle(ctx, stream, data)
}

func messageData(msg redis.XMessage) ([]byte, error) {
	data, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("%w: missing data field", ErrPoison)
	}

	dataStr, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("%w: data is not a string", ErrPoison)
	}
	return []byte(dataStr), nil
}

// DeadLetterStream returns the DLQ stream name for stream.
func DeadLetterStream(stream string) string {
	return dlqPrefix + stream
}

// moveToDeadLetterQueue copies a failed message to dlq:<stream> with metadata.
func (c *Consumer) moveToDeadLetterQueue(ctx context.Context, stream string, msg redis.XMessage, cause error) error {
	dlqStream := DeadLetterStream(stream)

	_, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: c.deadLetterValues(stream, msg, cause),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add message to DLQ: %w", err)
	}

	c.log.Info().
		Str("dlq_stream", dlqStream).
		Str("original_stream", stream).
		Str("original_id", msg.ID).
		Msg("message moved to DLQ")
	return nil
}

func (c *Consumer) deadLetterValues(stream string, msg redis.XMessage, cause error) map[string]interface{} {
	values := map[string]interface{}{
		"original_stream": stream,
		"original_id":     msg.ID,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"consumer":        c.consumer,
		"group":           c.group,
	}
	if cause != nil {
		values["error"] = cause.Error()
	}
	for k, v := range msg.Values {
		values["original_"+k] = v
	}
	return values
}
