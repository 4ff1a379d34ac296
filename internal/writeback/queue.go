// Package writeback buffers durable-store mutations so store latency never
// touches the engine's hot path. The queue is bounded: under sustained
// overload the oldest tasks are dropped, an explicit and logged data-loss
// trade for bounded memory.
package writeback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/fixed"
	"main/internal/ledger"
	"main/internal/schema"
)

const (
	DefaultCapacity      = 10000
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
)

// TaskKind tags the write-back task variant.
type TaskKind string

const (
	TaskBalanceUpsert  TaskKind = "balance-upsert"
	TaskPositionCreate TaskKind = "position-create"
	TaskPositionClose  TaskKind = "position-close"
)

// BalanceUpsert persists one (user, asset) balance.
type BalanceUpsert struct {
	UserID  string
	Symbol  string
	Balance fixed.Fixed
}

// PositionClose persists the terminal update of a closed position.
type PositionClose struct {
	ID         string
	ClosePrice fixed.Fixed
	Pnl        fixed.Fixed
	Reason     schema.CloseReason
	ClosedAt   time.Time
}

// Task is one pending store mutation. Exactly one variant is set, selected
// by Kind.
type Task struct {
	Kind    TaskKind
	Balance *BalanceUpsert
	Create  *ledger.Position
	Close   *PositionClose
}

// Applier applies a single task to the durable store.
type Applier interface {
	Apply(ctx context.Context, task Task) error
}

// Config sizes the queue. Zero values fall back to defaults.
type Config struct {
	Capacity      int
	BatchSize     int
	FlushInterval time.Duration
}

// Queue is the bounded write-back buffer.
type Queue struct {
	mu      sync.Mutex
	tasks   []Task
	dropped uint64

	capacity  int
	batchSize int
	interval  time.Duration

	applier  Applier
	flushing atomic.Bool
}

// NewQueue creates a write-back queue flushing into the given applier.
func NewQueue(applier Applier, cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	return &Queue{
		capacity:  cfg.Capacity,
		batchSize: cfg.BatchSize,
		interval:  cfg.FlushInterval,
		applier:   applier,
	}
}

// Enqueue appends a task. At capacity the oldest task is dropped so the
// queue never grows past its bound.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) >= q.capacity {
		dropped := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.dropped++
		logs.Errorf("writeback queue overflow, dropping oldest task kind=%s dropped_total=%d", dropped.Kind, q.dropped)
	}
	q.tasks = append(q.tasks, task)
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Dropped returns the total number of tasks lost to overflow.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Flush drains up to one batch, applying tasks one by one. Individual task
// failures are logged and skipped; the batch never aborts. Overlapping
// flushes collapse into one: a call while another flush is running is a
// no-op.
func (q *Queue) Flush(ctx context.Context) int {
	if !q.flushing.CompareAndSwap(false, true) {
		return 0
	}
	defer q.flushing.Store(false)

	q.mu.Lock()
	n := len(q.tasks)
	if n == 0 {
		q.mu.Unlock()
		return 0
	}
	if n > q.batchSize {
		n = q.batchSize
	}
	batch := make([]Task, n)
	copy(batch, q.tasks[:n])
	q.tasks = q.tasks[n:]
	q.mu.Unlock()

	applied := 0
	for _, task := range batch {
		if err := q.applier.Apply(ctx, task); err != nil {
			logs.Errorf("writeback apply failed kind=%s, err: %v", task.Kind, err)
			continue
		}
		applied++
	}
	return applied
}

// Run flushes on a fixed interval until the context is done, then drains
// what it can one last time.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for q.Flush(context.WithoutCancel(ctx)) > 0 {
			}
			return
		case <-ticker.C:
			q.Flush(ctx)
		}
	}
}
