// Package progress fans out ingestion ProgressEvents to SSE-connected
// clients, filtering each event by the connection's Visibility so a
// client never observes another tenant/workspace/user's documents
// (spec.md §4.9). The teacher's handlers_docs.go left this as a stub
// ("SSE implementation will go here"); this package is the real thing,
// built on the queue.Subscribe fan-out from internal/store/queue.
package progress

import (
	"context"
	"time"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/scope"
	"github.com/ragline/ragline/internal/store/queue"
	"github.com/sirupsen/logrus"
)

// Connected is sent once to a newly-subscribed client before any real
// events, so the client can distinguish "connected, nothing happening
// yet" from a dropped connection.
type Connected struct {
	Type string `json:"type"`
}

// Broadcaster gives each client its own queue pub/sub subscription,
// filtered by that client's visibility.
type Broadcaster struct {
	q      queue.Queue
	logger *logrus.Logger
}

// New builds a Broadcaster over q.
func New(q queue.Queue, logger *logrus.Logger) *Broadcaster {
	if logger == nil {
		logger = logrus.New()
	}
	return &Broadcaster{q: q, logger: logger}
}

// ClientFeed is a single client's visibility-filtered view of the
// progress stream.
type ClientFeed struct {
	Events <-chan model.ProgressEvent
	close  func()
}

func (f *ClientFeed) Close() { f.close() }

// Subscribe opens a feed for vis. The returned channel is closed when
// ctx is cancelled or Close is called; slow clients have events dropped
// rather than stalling the underlying subscription, per spec.md §4.9.
func (b *Broadcaster) Subscribe(ctx context.Context, vis scope.Visibility) *ClientFeed {
	sub := b.q.Subscribe(ctx)
	out := make(chan model.ProgressEvent, 32)

	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if !vis.Contains(ev.Key) {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return &ClientFeed{Events: out, close: func() { _ = sub.Close() }}
}

// ActiveSnapshot looks up the last known progress for each doc, serving
// GET /v1/ingestions/active's synthesized snapshot without waiting for
// the next event. A doc with no Redis snapshot yet (queued, never
// dequeued) gets a synthesized {stage:"queued", progress:0} event
// instead of being silently omitted, per spec.md §4.9.
func (b *Broadcaster) ActiveSnapshot(ctx context.Context, docs []*model.Document, vis scope.Visibility) ([]model.ProgressEvent, error) {
	var out []model.ProgressEvent
	for _, d := range docs {
		if !vis.Contains(d.Key) {
			continue
		}
		ev, err := b.q.GetProgress(ctx, d.DocID)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			out = append(out, model.ProgressEvent{
				DocID: d.DocID, Key: d.Key, Filename: d.Filename,
				Stage: model.PQueued, Progress: 0,
			})
			continue
		}
		if !vis.Contains(ev.Key) {
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

// HeartbeatInterval is how often a keep-alive comment line is written
// to an idle SSE connection so intermediary proxies don't time it out.
const HeartbeatInterval = 25 * time.Second
