// Package queue is the Queue+PubSub adapter (spec.md §4.4) over Redis:
// BLPOP-based blocking pop for at-least-once job delivery, and
// SET-with-TTL plus PUBLISH/SUBSCRIBE for progress snapshots and
// fan-out, grounded on the BLPOP loop in stack-echo-Chimera's
// backend-go/internal/worker/etl_worker.go and the go-redis client
// wiring in vasic-digital-SuperAgent's internal/cache/redis.go.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/redis/go-redis/v9"
)

// Queue is the Queue+PubSub interface from spec.md §4.4.
type Queue interface {
	Push(ctx context.Context, job model.Job) error
	BlockingPop(ctx context.Context, timeout time.Duration) (*model.Job, error)
	SetProgress(ctx context.Context, docID string, ev model.ProgressEvent, ttl time.Duration) error
	GetProgress(ctx context.Context, docID string) (*model.ProgressEvent, error)
	Publish(ctx context.Context, ev model.ProgressEvent) error
	Subscribe(ctx context.Context) Subscription
	Close() error
}

// Subscription is a live feed of ProgressEvents, closed by calling
// Close or cancelling the context passed to Subscribe.
type Subscription interface {
	Events() <-chan model.ProgressEvent
	Close() error
}

// Client implements Queue over go-redis.
type Client struct {
	rdb      *redis.Client
	queueKey string
	channel  string
}

// New builds a Client. queueKey is REDIS_QUEUE, channel is
// REDIS_PROGRESS_CHANNEL.
func New(addr, password string, db int, queueKey, channel string) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		queueKey: queueKey,
		channel:  channel,
	}
}

func (c *Client) Close() error { return c.rdb.Close() }

// Ping surfaces connectivity for /health.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return ragerr.Wrap(ragerr.DependencyTransient, "queue: ping", err)
	}
	return nil
}

func (c *Client) Push(ctx context.Context, job model.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return ragerr.Wrap(ragerr.Internal, "queue: marshal job", err)
	}
	if err := c.rdb.RPush(ctx, c.queueKey, b).Err(); err != nil {
		return ragerr.Wrap(ragerr.DependencyTransient, "queue: push", err)
	}
	return nil
}

// BlockingPop uses BLPOP with a bounded timeout so the worker can
// re-enter its loop and observe shutdown, per spec.md §5.
func (c *Client) BlockingPop(ctx context.Context, timeout time.Duration) (*model.Job, error) {
	result, err := c.rdb.BLPop(ctx, timeout, c.queueKey).Result()
	if err == redis.Nil {
		return nil, nil // timed out, no job — caller loops
	}
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyTransient, "queue: blocking pop", err)
	}
	var job model.Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, ragerr.Wrap(ragerr.MalformedUpstream, "queue: unmarshal job", err)
	}
	return &job, nil
}

func progressKey(docID string) string {
	return "progress:" + docID
}

func (c *Client) SetProgress(ctx context.Context, docID string, ev model.ProgressEvent, ttl time.Duration) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return ragerr.Wrap(ragerr.Internal, "queue: marshal progress", err)
	}
	if err := c.rdb.Set(ctx, progressKey(docID), b, ttl).Err(); err != nil {
		return ragerr.Wrap(ragerr.DependencyTransient, "queue: set progress", err)
	}
	return nil
}

func (c *Client) GetProgress(ctx context.Context, docID string) (*model.ProgressEvent, error) {
	result, err := c.rdb.Get(ctx, progressKey(docID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, ragerr.Wrap(ragerr.DependencyTransient, "queue: get progress", err)
	}
	var ev model.ProgressEvent
	if err := json.Unmarshal([]byte(result), &ev); err != nil {
		return nil, ragerr.Wrap(ragerr.MalformedUpstream, "queue: unmarshal progress", err)
	}
	return &ev, nil
}

func (c *Client) Publish(ctx context.Context, ev model.ProgressEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return ragerr.Wrap(ragerr.Internal, "queue: marshal progress event", err)
	}
	if err := c.rdb.Publish(ctx, c.channel, b).Err(); err != nil {
		return ragerr.Wrap(ragerr.DependencyTransient, "queue: publish", err)
	}
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan model.ProgressEvent
	done   chan struct{}
}

func (c *Client) Subscribe(ctx context.Context) Subscription {
	pubsub := c.rdb.Subscribe(ctx, c.channel)
	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan model.ProgressEvent, 64),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.events)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev model.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue // malformed event, drop it, keep streaming
				}
				select {
				case sub.events <- ev:
				default:
					// Slow consumer: drop the event rather than block the
					// fan-out for everyone else (spec.md §4.9).
				}
			case <-sub.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub
}

func (s *redisSubscription) Events() <-chan model.ProgressEvent { return s.events }

func (s *redisSubscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}
