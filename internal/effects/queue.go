// Package effects is the durable retry queue for external side effects.
//
// State transitions commit first; refund initiation and notification
// dispatch follow as best-effort calls. When one of those calls fails it is
// logged and parked here, and a background drainer re-attempts it until it
// succeeds or exhausts its attempts. A failed side effect never rolls back
// or fails the transition that triggered it.
package effects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/devxankit/neargud-sub001/internal/order"
)

// Kind discriminates the side-effect envelope payload.
type Kind string

const (
	KindCapture Kind = "capture"
	KindRefund  Kind = "refund"
	KindNotify  Kind = "notify"
)

// Envelope is one queued side effect, JSON-serialized onto a redis list.
type Envelope struct {
	Kind        Kind            `json:"kind"`
	ReferenceID string          `json:"reference_id"`
	Amount      decimal.Decimal `json:"amount,omitempty"`
	ActorID     string          `json:"actor_id,omitempty"`
	Role        order.Role      `json:"role,omitempty"`
	Event       string          `json:"event,omitempty"`
	Payload     map[string]any  `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// Handler re-executes a queued side effect.
type Handler func(ctx context.Context, env Envelope) error

// Queue is a redis-list-backed retry queue.
type Queue struct {
	client      *redis.Client
	key         string
	maxAttempts int
	logger      *slog.Logger
}

func NewQueue(addr, key string, maxAttempts int, logger *slog.Logger) *Queue {
	return &Queue{
		client:      redis.NewClient(&redis.Options{Addr: addr}),
		key:         key,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Enqueue parks a failed side effect for retry.
func (q *Queue) Enqueue(ctx context.Context, env Envelope) error {
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue side effect: %w", err)
	}
	return nil
}

// Run drains the queue until ctx is cancelled, waking every interval.
// Envelopes whose handler fails go back to the end of the queue with an
// incremented attempt count; envelopes that exhaust their attempts are
// dropped with an error log so they can be replayed manually.
func (q *Queue) Run(ctx context.Context, handle Handler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drain(ctx, handle)
		}
	}
}

func (q *Queue) drain(ctx context.Context, handle Handler) {
	for {
		data, err := q.client.LPop(ctx, q.key).Result()
		if errors.Is(err, redis.Nil) {
			return
		}
		if err != nil {
			q.logger.ErrorContext(ctx, "side effect queue pop failed", "error", err)
			return
		}

		var env Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			q.logger.ErrorContext(ctx, "discarding malformed side effect envelope", "error", err)
			continue
		}

		if err := handle(ctx, env); err != nil {
			env.Attempts++
			if env.Attempts >= q.maxAttempts {
				q.logger.ErrorContext(ctx, "side effect dropped after max attempts",
					"kind", env.Kind, "reference_id", env.ReferenceID, "attempts", env.Attempts, "error", err)
				continue
			}
			q.logger.WarnContext(ctx, "side effect retry failed, re-queueing",
				"kind", env.Kind, "reference_id", env.ReferenceID, "attempts", env.Attempts, "error", err)
			if reErr := q.Enqueue(ctx, env); reErr != nil {
				q.logger.ErrorContext(ctx, "re-enqueue failed", "error", reErr)
			}
			continue
		}

		q.logger.InfoContext(ctx, "queued side effect delivered",
			"kind", env.Kind, "reference_id", env.ReferenceID, "attempts", env.Attempts)
	}
}

// Close releases the redis connection.
func (q *Queue) Close() error { return q.client.Close() }
