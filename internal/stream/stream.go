// Package stream wraps one Redis Stream as an append-only ordered log with
// a blocking cursor read. Both the engine's input stream and the reply
// stream are Logs.
package stream

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

// CursorLatest starts a read after the last entry already in the stream;
// pre-existing history is not replayed.
const CursorLatest = "$"

var ErrNoEntries = errors.New("no new stream entries")

// Message is one log entry: its stream id and its field map.
type Message struct {
	ID     string
	Fields map[string]string
}

// Field returns a single field value, empty when absent.
func (m Message) Field(key string) string {
	return m.Fields[key]
}

// Log is an append-only view over a single Redis Stream key.
type Log struct {
	rdb *redis.Client
	key string
}

// NewLog creates a log over the given stream key.
func NewLog(rdb *redis.Client, key string) *Log {
	return &Log{rdb: rdb, key: key}
}

// Key returns the underlying stream key.
func (l *Log) Key() string {
	return l.key
}

// Append adds one entry and returns its stream id.
func (l *Log) Append(ctx context.Context, fields map[string]any) (string, error) {
	id, err := l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: l.key,
		ID:     "*",
		Values: fields,
	}).Result()
	if err != nil {
		return "", errors.Wrap(err, "xadd "+l.key)
	}
	return id, nil
}

// Read blocks until entries after the cursor arrive, or the block window
// elapses (ErrNoEntries). Block zero blocks indefinitely; the call still
// honors ctx cancellation.
func (l *Log) Read(ctx context.Context, cursor string, block time.Duration) ([]Message, error) {
	res, err := l.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{l.key, cursor},
		Block:   block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoEntries
		}
		return nil, errors.Wrap(err, "xread "+l.key)
	}

	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			fields := make(map[string]string, len(m.Values))
			for k, v := range m.Values {
				if sv, ok := v.(string); ok {
					fields[k] = sv
				}
			}
			out = append(out, Message{ID: m.ID, Fields: fields})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoEntries
	}
	return out, nil
}

// Delete removes entries by id, best effort.
func (l *Log) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return errors.Wrap(l.rdb.XDel(ctx, l.key, ids...).Err(), "xdel "+l.key)
}
