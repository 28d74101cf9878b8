// queue.go
//
// Redis-backed async audit queue. QueuedLog implements auth.AuditLog and
// enqueues login events instead of writing them synchronously; StartWorker
// drains the queue in a background goroutine and hands each event to the
// inner Recorder (PostgresStore).
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MGallo-Code/tgbridge/internal/store"
	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis list used as the audit queue.
const QueueKey = "tgbridge:audit:queue"

// DefaultMaxQueueSize caps the queue when Postgres is slow or down. 0 = unlimited.
const DefaultMaxQueueSize int64 = 10000

// ErrQueueFull is returned by RecordLoginEvent when the queue has reached its cap.
var ErrQueueFull = errors.New("audit queue full")

// Recorder persists a login event. Satisfied by *store.PostgresStore.
type Recorder interface {
	RecordLoginEvent(ctx context.Context, ev store.LoginEvent) error
}

// QueuedLog enqueues login events to Redis so the HTTP handler returns
// without waiting on Postgres. StartWorker drains the queue asynchronously.
type QueuedLog struct {
	inner        Recorder
	rdb          *redis.Client
	maxQueueSize int64 // 0 = unlimited
}

// NewQueuedLog wraps inner with a Redis-backed async queue.
// maxSize caps the queue length (0 = unlimited); use DefaultMaxQueueSize for production.
func NewQueuedLog(inner Recorder, rdb *redis.Client, maxSize int64) *QueuedLog {
	return &QueuedLog{inner: inner, rdb: rdb, maxQueueSize: maxSize}
}

// enqueueScript pushes the event only if the queue is under the cap.
// Returns 1 if enqueued, 0 if rejected (queue full).
// KEYS[1] = queue key, ARGV[1] = max size (0 = skip check), ARGV[2] = payload.
var enqueueScript = redis.NewScript(`
local max = tonumber(ARGV[1])
if max > 0 and redis.call('LLEN', KEYS[1]) >= max then
    return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
return 1
`)

// RecordLoginEvent stamps ev with its time and enqueues it.
// Returns ErrQueueFull if the queue has reached maxQueueSize.
func (q *QueuedLog) RecordLoginEvent(ctx context.Context, ev store.LoginEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling login event: %w", err)
	}
	ok, err := enqueueScript.Run(ctx, q.rdb, []string{QueueKey}, q.maxQueueSize, data).Int64()
	if err != nil {
		return fmt.Errorf("enqueuing login event: %w", err)
	}
	if ok == 0 {
		return ErrQueueFull
	}
	return nil
}

// StartWorker drains the queue in a loop, writing each event through inner.
// Blocks until ctx is cancelled (server shutdown). Call in a goroutine.
func (q *QueuedLog) StartWorker(ctx context.Context) {
	for {
		// BLPop blocks up to 2s then returns redis.Nil, so ctx is rechecked regularly.
		res, err := q.rdb.BLPop(ctx, 2*time.Second, QueueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			slog.Error("audit worker: queue pop failed", "err", err)
			continue
		}
		// res[0] = key name, res[1] = payload
		q.dispatch(ctx, []byte(res[1]))
	}
}

// dispatch decodes one payload and records it. Errors are logged and dropped.
func (q *QueuedLog) dispatch(ctx context.Context, payload []byte) {
	var ev store.LoginEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		slog.Error("audit worker: bad event payload", "err", err)
		return
	}
	if err := q.inner.RecordLoginEvent(ctx, ev); err != nil {
		slog.Error("audit worker: record failed", "event", ev.Event, "outcome", ev.Outcome, "err", err)
	}
}
