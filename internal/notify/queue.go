package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queue hands cards to a background worker so that callers never wait on
// delivery. A full queue drops the card.
type Queue struct {
	sender  Sender
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Card
	done   chan struct{}
}

// NewQueue starts a worker that delivers up to size buffered cards through
// sender, giving each delivery timeout.
func NewQueue(sender Sender, size int, timeout time.Duration, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		sender:  sender,
		timeout: timeout,
		log:     log,
		jobs:    make(chan Card, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Notify enqueues c without blocking.
func (q *Queue) Notify(_ context.Context, c Card) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.log.Warn("notification dropped, queue closed", zap.String("title", c.Title))
		return
	}
	select {
	case q.jobs <- c:
	default:
		q.log.Warn("notification dropped, queue full", zap.String("title", c.Title))
	}
}

// Close stops accepting cards and waits for queued ones to be delivered or
// for ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for c := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		q.sender.Send(ctx, c)
		cancel()
	}
}

// Inline delivers synchronously within the caller's request. It is used
// where no goroutine may outlive the invocation, e.g. on Lambda. The caller's
// cancellation is ignored; timeout still bounds the call.
type Inline struct {
	Sender  Sender
	Timeout time.Duration
}

// Notify sends c and discards the outcome.
func (i Inline) Notify(ctx context.Context, c Card) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.Timeout)
	defer cancel()
	i.Sender.Send(ctx, c)
}
