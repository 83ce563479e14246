// Package activity records user mutations through a Redis stream and persists
// them in batches.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentdesk/agentdesk/internal/metrics"
)

const (
	// StreamKey is the Redis stream for activity events.
	StreamKey = "stream:activity"

	// DeadLetterStreamKey receives entries the worker cannot decode or store.
	DeadLetterStreamKey = "stream:activity:dlq"

	// MaxStreamLen caps the stream approximately.
	MaxStreamLen = 100000

	// PublishTimeout bounds a single XADD issued by PublishAsync.
	PublishTimeout = 250 * time.Millisecond

	// maxInFlight bounds concurrent PublishAsync calls; events past it are dropped.
	maxInFlight = 256
)

// Event is the compact stream encoding of an activity entry.
type Event struct {
	UserID     string          `json:"uid"`
	ProjectID  string          `json:"pid,omitempty"`
	Action     string          `json:"a"`
	Detail     json.RawMessage `json:"d,omitempty"`
	OccurredAt int64           `json:"t"` // Unix milliseconds
}

// NewEvent builds an event stamped with the current time. A nil detail, or one
// that does not marshal, is omitted.
func NewEvent(userID, projectID, action string, detail any) Event {
	e := Event{
		UserID:     userID,
		ProjectID:  projectID,
		Action:     action,
		OccurredAt: time.Now().UnixMilli(),
	}
	if detail != nil {
		if raw, err := json.Marshal(detail); err == nil {
			e.Detail = raw
		}
	}
	return e
}

// Publisher appends events to the activity stream. Request paths use
// PublishAsync so a slow or absent Redis never delays a response.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder

	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a publisher writing to client.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "activity.publisher"),
		metrics: recorder,
		slots:   make(chan struct{}, maxInFlight),
	}
}

// Publish appends event and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		Values: map[string]any{"payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishAsync publishes in the background. Failures are logged and counted
// as dropped, as are events arriving after Close or while maxInFlight
// publishes are pending.
func (p *Publisher) PublishAsync(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(event, "publisher closed")
		return
	}
	select {
	case p.slots <- struct{}{}:
	default:
		p.drop(event, "too many pending publishes")
		return
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		id, err := p.Publish(ctx, event)
		if err != nil {
			p.drop(event, err.Error())
			return
		}
		p.logger.Debug("activity event published", "action", event.Action, "stream_id", id)
		p.metrics.IncActivityEventPublished("success")
	}()
}

func (p *Publisher) drop(event Event, reason string) {
	p.logger.Warn("activity event dropped", "action", event.Action, "reason", reason)
	p.metrics.IncActivityEventPublished("dropped")
}

// Close stops accepting events and waits for pending publishes or ctx.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
