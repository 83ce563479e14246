package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/model"
)

// ConsumerGroup is the consumer group every worker replica joins.
const ConsumerGroup = "activity_workers"

// deadLetterMaxLen caps the dead-letter stream.
const deadLetterMaxLen = 10000

// Store persists decoded events. Inserts must be idempotent on EventID
// because a reclaimed batch can be delivered twice.
type Store interface {
	BulkInsert(ctx context.Context, events []*model.ActivityEvent) error
}

// WorkerConfig tunes a Worker. Zero fields take the defaults below.
type WorkerConfig struct {
	// Consumer names this replica inside the group. Defaults to host-pid-time.
	Consumer string
	// BatchSize caps entries read or claimed per iteration (200).
	BatchSize int
	// Block is the XREADGROUP block time (5s).
	Block time.Duration
	// MaxAttempts bounds inserts per batch before it is left pending (3).
	MaxAttempts uint
	// MaxDeliveries is how often an entry may be delivered before a reclaimed
	// batch is stored entry by entry and the entries the store rejects are
	// dead-lettered (5).
	MaxDeliveries int64
	// RetryBackoff is the first retry delay; later ones double (1s).
	RetryBackoff time.Duration
	// ClaimEvery is how often pending entries of dead consumers are scanned (10s).
	ClaimEvery time.Duration
	// ClaimMinIdle is how long an entry must sit unacked before it is taken over (30s).
	ClaimMinIdle time.Duration
	// DepthEvery is how often the queue depth gauge is refreshed (5s).
	DepthEvery time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Consumer == "" {
		c.Consumer = defaultConsumer()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.ClaimEvery <= 0 {
		c.ClaimEvery = 10 * time.Second
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = 30 * time.Second
	}
	if c.DepthEvery <= 0 {
		c.DepthEvery = 5 * time.Second
	}
	return c
}

func defaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

// interval reports when a periodic chore is due inside the read loop.
type interval struct {
	every time.Duration
	last  time.Time
}

func (iv *interval) due(now time.Time) bool {
	if !iv.last.IsZero() && now.Sub(iv.last) < iv.every {
		return false
	}
	iv.last = now
	return true
}

// Worker drains the activity stream into a Store. Each replica reads new
// entries, takes over entries left pending by crashed replicas, and moves
// undecodable entries to the dead-letter stream.
type Worker struct {
	redis   *redis.Client
	store   Store
	metrics metrics.Recorder
	logger  *slog.Logger
	cfg     WorkerConfig

	claim     interval
	depth     interval
	claimFrom string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker builds a worker; recorder may be nil.
func NewWorker(client *redis.Client, store Store, recorder metrics.Recorder, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	cfg = cfg.withDefaults()
	return &Worker{
		redis:     client,
		store:     store,
		metrics:   recorder,
		logger:    logger.With("component", "activity.worker", "consumer", cfg.Consumer),
		cfg:       cfg,
		claim:     interval{every: cfg.ClaimEvery},
		depth:     interval{every: cfg.DepthEvery},
		claimFrom: "0-0",
	}
}

// Run consumes until ctx is cancelled or Shutdown is called. A worker runs
// at most once at a time.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("activity worker already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(done)
	}()

	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}

	w.logger.Info("activity worker started", "batch_size", w.cfg.BatchSize)
	for ctx.Err() == nil {
		if err := w.step(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("activity batch failed", "error", err)
			pause(ctx, w.cfg.RetryBackoff)
		}
	}
	w.logger.Info("activity worker stopped")
	return nil
}

// Shutdown stops Run after the batch in flight and waits for it to return.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("activity worker shutdown timed out")
		return ctx.Err()
	}
}

// step handles one batch: reclaimed entries first, otherwise fresh ones.
func (w *Worker) step(ctx context.Context) error {
	now := time.Now()
	if w.depth.due(now) {
		w.refreshDepth(ctx)
	}

	var (
		msgs      []redis.XMessage
		reclaimed bool
	)
	if w.claim.due(now) {
		claimed, err := w.claimStale(ctx)
		if err != nil {
			w.logger.Warn("claim pending entries", "error", err)
		}
		msgs, reclaimed = claimed, len(claimed) > 0
	}
	if len(msgs) == 0 {
		read, err := w.read(ctx)
		if err != nil {
			return err
		}
		msgs = read
	}
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(msgs))
	events := make([]*model.ActivityEvent, 0, len(msgs))
	byID := make(map[string]redis.XMessage, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID)
		event, reason, err := decodeMessage(msg)
		if err != nil {
			w.deadLetter(ctx, msg, reason, err)
			continue
		}
		events = append(events, event)
		byID[msg.ID] = msg
	}

	switch {
	case len(events) == 0:
	case reclaimed && w.exhausted(ctx, ids):
		rejected, err := w.insertEach(ctx, events)
		if err != nil {
			return err
		}
		for _, rj := range rejected {
			w.deadLetter(ctx, byID[rj.event.EventID], "store_error", rj.err)
		}
	default:
		if err := w.persist(ctx, events); err != nil {
			// Left unacked so a later claim retries the whole batch.
			return err
		}
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("ack %d entries: %w", len(ids), err)
	}
	return nil
}

func (w *Worker) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.cfg.Consumer,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.Block,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read stream: %w", err)
	case len(streams) == 0:
		return nil, nil
	}
	return streams[0].Messages, nil
}

// claimStale takes over entries other consumers read but never acked.
func (w *Worker) claimStale(ctx context.Context) ([]redis.XMessage, error) {
	msgs, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.cfg.Consumer,
		MinIdle:  w.cfg.ClaimMinIdle,
		Start:    w.claimFrom,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if next != "" {
		w.claimFrom = next
	}
	return msgs, nil
}

// exhausted reports whether any of the pending entries ids has been delivered
// MaxDeliveries times.
func (w *Worker) exhausted(ctx context.Context, ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	pending, err := w.redis.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Start:    ids[0],
		End:      ids[len(ids)-1],
		Count:    int64(w.cfg.BatchSize),
		Consumer: w.cfg.Consumer,
	}).Result()
	if err != nil {
		w.logger.Warn("read delivery counts", "error", err)
		return false
	}
	return maxDeliveries(pending) >= w.cfg.MaxDeliveries
}

func maxDeliveries(pending []redis.XPendingExt) int64 {
	var n int64
	for _, p := range pending {
		n = max(n, p.RetryCount)
	}
	return n
}

// rejection is an event the store refused on its own.
type rejection struct {
	event *model.ActivityEvent
	err   error
}

// insertEach stores events one at a time so that a single bad row cannot
// hold back the rest of its batch. It fails only when ctx ends.
func (w *Worker) insertEach(ctx context.Context, events []*model.ActivityEvent) ([]rejection, error) {
	var rejected []rejection
	for _, e := range events {
		err := w.store.BulkInsert(ctx, []*model.ActivityEvent{e})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			rejected = append(rejected, rejection{event: e, err: err})
			continue
		}
		w.metrics.IncActivityEventProcessed("success")
		w.metrics.ObserveActivityIngestLag(time.Since(e.OccurredAt))
	}
	if len(rejected) > 0 {
		w.logger.Warn("activity batch stored entry by entry",
			"events", len(events),
			"rejected", len(rejected),
		)
	}
	return rejected, nil
}

func (w *Worker) refreshDepth(ctx context.Context) {
	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("read consumer group info", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetActivityQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// persist inserts a batch, retrying with exponential backoff.
func (w *Worker) persist(ctx context.Context, events []*model.ActivityEvent) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.RetryBackoff
	policy.RandomizationFactor = 0.2
	policy.Multiplier = 2

	start := time.Now()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.store.BulkInsert(ctx, events)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(w.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			w.logger.Warn("activity insert failed, retrying",
				"batch_size", len(events),
				"retry_in_ms", wait.Milliseconds(),
				"error", err,
			)
		}),
	)
	if err != nil {
		for range events {
			w.metrics.IncActivityEventProcessed("failed")
		}
		return fmt.Errorf("insert %d activity events: %w", len(events), err)
	}

	elapsed := time.Since(start)
	w.metrics.ObserveActivityBatchSize(len(events))
	w.metrics.ObserveActivityBatchDuration(elapsed)
	for _, e := range events {
		w.metrics.IncActivityEventProcessed("success")
		w.metrics.ObserveActivityIngestLag(time.Since(e.OccurredAt))
	}
	w.logger.Debug("activity batch stored", "events", len(events), "duration_ms", elapsed.Milliseconds())
	return nil
}

// decodeMessage turns a stream entry into an event. On failure it also
// returns the dead-letter reason.
func decodeMessage(msg redis.XMessage) (*model.ActivityEvent, string, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, "invalid_format", errors.New("payload field missing or not a string")
	}

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, "unmarshal_error", err
	}
	if err := ValidateEvent(event); err != nil {
		return nil, "validation_error", err
	}

	return &model.ActivityEvent{
		ID:         ulid.Make().String(),
		EventID:    msg.ID,
		UserID:     event.UserID,
		ProjectID:  event.ProjectID,
		Action:     event.Action,
		Detail:     event.Detail,
		OccurredAt: time.UnixMilli(event.OccurredAt).UTC(),
	}, "", nil
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason string, cause error) {
	w.logger.Warn("dead-lettering activity entry", "message_id", msg.ID, "reason", reason, "error", cause)
	w.metrics.IncActivityEventProcessed("dead_lettered")

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]any{
			"original_id":      msg.ID,
			"reason":           reason,
			"error":            cause.Error(),
			"payload":          fmt.Sprint(msg.Values["payload"]),
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("write dead-letter entry", "message_id", msg.ID, "error", err)
	}
}

// pause sleeps for d unless ctx ends first.
func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
