package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flashbill/flashbill/internal/retry"
)

// Queue decorates a Sender with an in-process buffer and background
// delivery. Send returns as soon as the message is accepted; delivery is
// retried with backoff and dropped with a logged error once the retry
// budget runs out. It trades durability for latency, which suits emails
// the caller already treats as best effort.
type Queue struct {
	sender Sender
	logger *slog.Logger
	retry  retry.Config

	jobs chan *Email
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue over the given sender. buffer is the number of
// messages held before Send blocks.
func NewQueue(sender Sender, buffer int, logger *slog.Logger) *Queue {
	if buffer < 1 {
		buffer = 64
	}
	return &Queue{
		sender: sender,
		logger: logger,
		retry:  retry.Network(),
		jobs:   make(chan *Email, buffer),
	}
}

// Start launches the delivery worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Send enqueues the message for background delivery and returns a local
// queue ID. The provider's message ID is only visible in the worker's logs.
func (q *Queue) Send(ctx context.Context, email *Email) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	q.mu.Unlock()

	select {
	case q.jobs <- email:
		return fmt.Sprintf("queued-%d", time.Now().UnixNano()), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop closes the queue and waits for in-flight deliveries to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	for msg := range q.jobs {
		// Each delivery gets its own deadline independent of the caller,
		// who has already moved on.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := retry.Do(ctx, q.retry, func(ctx context.Context) error {
			_, sendErr := q.sender.Send(ctx, msg)
			return retry.Transient(sendErr)
		})
		cancel()

		if err != nil {
			q.logger.Error("email delivery abandoned",
				"to", msg.To,
				"subject", msg.Subject,
				"error", err,
			)
		}
	}
}
