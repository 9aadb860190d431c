// Package messaging provides Redis Streams adapters for the triage queues.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"triage_worker/core/port/out"
)

// Default stream names
const (
	StreamInbound = "triage:inbound"
	StreamReview  = "triage:review"
	StreamRouted  = "triage:routed"

	dlqPrefix = "dlq:"
)

// Streams names the streams the producer writes to.
type Streams struct {
	Inbound string
	Review  string
	Routed  string
	MaxLen  int64 // approximate cap per stream, 0 for unbounded
}

// DefaultStreams returns the default stream names.
func DefaultStreams() Streams {
	return Streams{
		Inbound: StreamInbound,
		Review:  StreamReview,
		Routed:  StreamRouted,
		MaxLen:  100000,
	}
}

// RedisProducer implements out.ReviewQueue and out.InboundQueue using Redis Streams.
type RedisProducer struct {
	client  *redis.Client
	streams Streams
}

var (
	_ out.ReviewQueue  = (*RedisProducer)(nil)
	_ out.InboundQueue = (*RedisProducer)(nil)
)

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client, streams Streams) *RedisProducer {
	return &RedisProducer{client: client, streams: streams}
}

// PublishReview publishes a result awaiting human review.
func (p *RedisProducer) PublishReview(ctx context.Context, job *out.ReviewJob) error {
	_, err := p.publish(ctx, p.streams.Review, job)
	return err
}

// PublishRouted publishes a decided result for its business queue.
func (p *RedisProducer) PublishRouted(ctx context.Context, job *out.RoutedJob) error {
	_, err := p.publish(ctx, p.streams.Routed, job)
	return err
}

// EnqueueInbound queues an email for the triage worker and returns the
// stream message id.
func (p *RedisProducer) EnqueueInbound(ctx context.Context, job *out.InboundEmailJob) (string, error) {
	return p.publish(ctx, p.streams.Inbound, job)
}

// publish publishes a job to a stream under the "data" field.
func (p *RedisProducer) publish(ctx context.Context, stream string, job interface{}) (string, error) {
	args, err := p.xaddArgs(stream, job)
	if err != nil {
		return "", err
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return id, nil
}

func (p *RedisProducer) xaddArgs(stream string, job interface{}) (*redis.XAddArgs, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}
	if p.streams.MaxLen > 0 {
		args.MaxLen = p.streams.MaxLen
		args.Approx = true
	}
	return args, nil
}
