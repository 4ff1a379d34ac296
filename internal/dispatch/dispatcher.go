// Package dispatch is the request/reply correlation layer the API tier uses
// to talk to the engine: one request appended to the input stream, exactly
// one resolution per correlation id — reply, timeout or publish failure,
// whichever comes first.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/internal/stream"
)

const (
	// DefaultTimeout bounds how long a dispatch waits for its reply.
	DefaultTimeout = 5 * time.Second
	// DefaultRetryDelay is the pause after a failed reply-stream read.
	DefaultRetryDelay = 5 * time.Second
)

var (
	ErrAlreadyPending = errors.New("correlation id already pending")
	ErrTimeout        = errors.New("no reply within timeout")
)

// RequestLog is the engine input stream.
type RequestLog interface {
	Append(ctx context.Context, fields map[string]any) (string, error)
}

// ReplyLog is the reply stream the background listener drains.
type ReplyLog interface {
	Read(ctx context.Context, cursor string, block time.Duration) ([]stream.Message, error)
	Delete(ctx context.Context, ids ...string) error
}

type waiter struct {
	ch    chan schema.Reply
	timer *time.Timer
}

// Dispatcher correlates requests with replies over the two streams. One
// Dispatcher serves a whole process; the listener starts lazily on the
// first dispatch and runs for the process lifetime.
type Dispatcher struct {
	requests RequestLog
	replies  ReplyLog

	mu      sync.Mutex
	waiters map[string]*waiter

	retryDelay   time.Duration
	listenerOnce sync.Once
}

// New creates a dispatcher over the request and reply logs.
func New(requests RequestLog, replies ReplyLog) *Dispatcher {
	return &Dispatcher{
		requests:   requests,
		replies:    replies,
		waiters:    make(map[string]*waiter),
		retryDelay: DefaultRetryDelay,
	}
}

// Pending returns the number of registered waiters.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}

// Dispatch publishes one request and blocks until its reply, the timeout,
// or ctx cancellation. A second dispatch for a still-pending id fails
// immediately without touching the first.
func (d *Dispatcher) Dispatch(ctx context.Context, correlationID string, kind schema.Kind, payload any, timeout time.Duration) (schema.Reply, error) {
	d.listenerOnce.Do(func() { go d.listen() })

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	w := &waiter{ch: make(chan schema.Reply, 1)}

	d.mu.Lock()
	if _, ok := d.waiters[correlationID]; ok {
		d.mu.Unlock()
		return schema.Reply{}, ErrAlreadyPending
	}
	d.waiters[correlationID] = w
	w.timer = time.AfterFunc(timeout, func() { d.expire(correlationID) })
	d.mu.Unlock()

	doc, err := schema.EncodeEnvelope(kind, payload)
	if err == nil {
		_, err = d.requests.Append(ctx, map[string]any{
			"id":      correlationID,
			"payload": string(doc),
		})
	}
	if err != nil {
		if w, ok := d.deregister(correlationID); ok {
			w.timer.Stop()
		}
		return schema.Reply{}, errors.Wrap(err, "publish request "+correlationID)
	}

	select {
	case reply, ok := <-w.ch:
		if !ok {
			return schema.Reply{}, ErrTimeout
		}
		return reply, nil
	case <-ctx.Done():
		if w, ok := d.deregister(correlationID); ok {
			w.timer.Stop()
		}
		return schema.Reply{}, ctx.Err()
	}
}

// expire resolves a still-pending waiter with a timeout. A reply that
// arrives later finds no waiter and is dropped.
func (d *Dispatcher) expire(correlationID string) {
	if w, ok := d.deregister(correlationID); ok {
		close(w.ch)
	}
}

func (d *Dispatcher) deregister(correlationID string) (*waiter, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.waiters[correlationID]
	if ok {
		delete(d.waiters, correlationID)
	}
	return w, ok
}

// listen drains the reply stream from "latest" for the process lifetime,
// resolving waiters as their replies arrive. Read failures retry after a
// fixed delay; the loop never terminates on its own.
func (d *Dispatcher) listen() {
	ctx := context.Background()
	cursor := stream.CursorLatest
	logs.Infof("dispatch listener running")

	for {
		msgs, err := d.replies.Read(ctx, cursor, 0)
		if err != nil {
			if err != stream.ErrNoEntries {
				logs.Errorf("reply stream read failed, retrying in %s, err: %v", d.retryDelay, err)
				time.Sleep(d.retryDelay)
			}
			continue
		}

		for _, m := range msgs {
			cursor = m.ID
			d.resolve(ctx, m)
		}
	}
}

func (d *Dispatcher) resolve(ctx context.Context, m stream.Message) {
	id := m.Field("id")
	if id == "" {
		logs.Errorf("reply entry %s missing correlation id", m.ID)
		return
	}

	w, ok := d.deregister(id)
	if !ok {
		// Unsolicited notification (risk close) or a reply after giveup.
		logs.Infof("no waiter for reply id=%s status=%s", id, m.Field("status"))
		return
	}
	w.timer.Stop()

	// Clean the consumed entry out of the stream, best effort.
	if err := d.replies.Delete(ctx, m.ID); err != nil {
		logs.Errorf("reply entry %s delete failed, err: %v", m.ID, err)
	}

	w.ch <- schema.Reply{
		ID:      id,
		Status:  schema.Status(m.Field("status")),
		Payload: m.Field("payload"),
	}
}
