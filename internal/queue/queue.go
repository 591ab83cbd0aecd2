// ABOUTME: Bounded, concurrency-limited, retrying outbound delivery queue.
// ABOUTME: Back-pressure policy is drop-oldest; exhausted messages are logged and dropped.

package queue

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one outbound reply awaiting delivery.
type Message struct {
	ID        string
	ChannelID string
	ChatID    string
	Text      string
	ReplyToID string
	CreatedAt time.Time
	Attempt   int
}

// DeliverFunc performs one delivery attempt.
type DeliverFunc func(ctx context.Context, msg *Message) error

// Config bounds the queue and its retry behavior.
type Config struct {
	MaxSize     int
	Concurrency int
	MaxAttempts int
	RetryBase   time.Duration
	RetryCap    time.Duration
}

// Queue is a FIFO outbound dispatcher. Enqueue never blocks the caller:
// at capacity the oldest entry is evicted and logged. Deliveries run on
// up to Concurrency workers with jittered exponential backoff; a message
// that exhausts its attempts is logged and dropped, never requeued.
type Queue struct {
	deliver DeliverFunc
	cfg     Config
	logger  *slog.Logger

	mu       sync.Mutex
	items    []*Message
	inflight int
	stopped  bool

	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a queue and starts its dispatcher.
func New(deliver DeliverFunc, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		deliver: deliver,
		cfg:     cfg,
		logger:  logger.With("component", "delivery-queue"),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	go q.run()
	return q
}

// Enqueue appends msg. At capacity the oldest queued entry is dropped so
// the newest is never rejected and the caller never blocks. After Close
// the message is dropped: nothing would ever deliver it.
func (q *Queue) Enqueue(msg *Message) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.logger.Warn("queue closed, dropping message",
			"id", msg.ID, "channel", msg.ChannelID, "chat", msg.ChatID)
		return
	}
	if len(q.items) >= q.cfg.MaxSize {
		dropped := q.items[0]
		q.items = q.items[1:]
		q.logger.Warn("queue full, dropping oldest message",
			"dropped_id", dropped.ID,
			"channel", dropped.ChannelID,
			"chat", dropped.ChatID,
			"depth", len(q.items),
		)
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Depth reports how many messages are queued (not counting in-flight
// deliveries). Exposed as an observability metric.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain blocks until the queue is empty and no deliveries are in flight,
// or ctx expires. Used during shutdown so in-flight replies are not lost.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		q.mu.Lock()
		idle := len(q.items) == 0 && q.inflight == 0
		q.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops accepting work and cancels in-flight deliveries. Callers
// that care about pending replies should Drain first.
func (q *Queue) Close() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		q.cancel()
	})
}

// run pulls queued messages and hands them to delivery goroutines,
// holding at the configured concurrency limit.
func (q *Queue) run() {
	sem := make(chan struct{}, q.cfg.Concurrency)

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			if len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			msg := q.items[0]
			q.items = q.items[1:]
			q.inflight++
			q.mu.Unlock()

			select {
			case sem <- struct{}{}:
			case <-q.ctx.Done():
				q.taskDone()
				return
			}

			go func(m *Message) {
				defer func() {
					<-sem
					q.taskDone()
				}()
				q.deliverWithRetry(m)
			}(msg)
		}
	}
}

func (q *Queue) taskDone() {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
}

// deliverWithRetry attempts delivery up to MaxAttempts times with
// jittered exponential backoff between attempts.
func (q *Queue) deliverWithRetry(msg *Message) {
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		msg.Attempt = attempt

		err := q.deliver(q.ctx, msg)
		if err == nil {
			q.logger.Debug("message delivered",
				"id", msg.ID, "channel", msg.ChannelID, "chat", msg.ChatID, "attempt", attempt)
			return
		}

		if attempt == q.cfg.MaxAttempts {
			break
		}

		delay := q.backoff(attempt)
		q.logger.Debug("delivery failed, retrying",
			"id", msg.ID, "attempt", attempt, "retry_in", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-q.ctx.Done():
			return
		}
	}

	// Attempts exhausted: drop, never requeue
	q.logger.Error("delivery failed permanently, dropping message",
		"id", msg.ID, "channel", msg.ChannelID, "chat", msg.ChatID, "attempts", q.cfg.MaxAttempts)
}

// backoff computes base<<(attempt-1) capped at RetryCap, with ±50% jitter.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.cfg.RetryBase << (attempt - 1)
	if d > q.cfg.RetryCap {
		d = q.cfg.RetryCap
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(d-half)+1))
}
