package engine

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/internal/stream"
)

// DefaultReadBackoff is the fixed delay after a failed stream read.
const DefaultReadBackoff = time.Second

// Source is the ordered input log the consumer reads.
type Source interface {
	Read(ctx context.Context, cursor string, block time.Duration) ([]stream.Message, error)
}

// Consumer drives the engine from the input stream: one goroutine, strictly
// ordered, cursor always advancing. A poison entry is logged and skipped;
// the loop only exits with its context.
type Consumer struct {
	src     Source
	engine  *Engine
	backoff time.Duration
	cursor  string
}

// NewConsumer creates a consumer starting at the latest stream position.
func NewConsumer(src Source, eng *Engine, backoff time.Duration) *Consumer {
	if backoff <= 0 {
		backoff = DefaultReadBackoff
	}
	return &Consumer{
		src:     src,
		engine:  eng,
		backoff: backoff,
		cursor:  stream.CursorLatest,
	}
}

// Cursor returns the id of the last entry the consumer moved past.
func (c *Consumer) Cursor() string {
	return c.cursor
}

// Run blocks until ctx is done. Read failures back off a fixed delay and
// retry indefinitely.
func (c *Consumer) Run(ctx context.Context) {
	logs.Infof("engine consuming from cursor %s", c.cursor)

	for ctx.Err() == nil {
		msgs, err := c.src.Read(ctx, c.cursor, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err != stream.ErrNoEntries {
				logs.Errorf("input stream read failed, retrying in %s, err: %v", c.backoff, err)
				c.sleep(ctx)
			}
			continue
		}

		for _, m := range msgs {
			// Advance past the entry before judging it: malformed input
			// must never be re-read.
			c.cursor = m.ID
			c.consume(ctx, m)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, m stream.Message) {
	raw := m.Field("payload")
	if raw == "" {
		raw = m.Field("data")
	}
	if raw == "" {
		logs.Errorf("skip entry %s: no payload field", m.ID)
		return
	}

	if err := c.engine.HandleEntry(ctx, []byte(raw)); err != nil {
		logs.Errorf("skip entry %s, err: %v", m.ID, err)
	}
}

func (c *Consumer) sleep(ctx context.Context) {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// StreamReplySink publishes replies onto a reply stream log.
type StreamReplySink struct {
	log *stream.Log
}

// NewStreamReplySink wraps the reply stream.
func NewStreamReplySink(log *stream.Log) StreamReplySink {
	return StreamReplySink{log: log}
}

// Publish appends one reply entry.
func (s StreamReplySink) Publish(ctx context.Context, r schema.Reply) error {
	fields := map[string]any{
		"id":     r.ID,
		"status": string(r.Status),
	}
	if r.Payload != "" {
		fields["payload"] = r.Payload
	}
	_, err := s.log.Append(ctx, fields)
	return err
}
