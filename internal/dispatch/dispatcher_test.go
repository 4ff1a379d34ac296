package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/internal/stream"
)

type fakeRequestLog struct {
	mu       sync.Mutex
	appended []map[string]any
	fail     bool
}

func (f *fakeRequestLog) Append(_ context.Context, fields map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("redis unreachable")
	}
	f.appended = append(f.appended, fields)
	return "1-0", nil
}

type fakeReplyLog struct {
	ch      chan stream.Message
	mu      sync.Mutex
	deleted []string
}

func newFakeReplyLog() *fakeReplyLog {
	return &fakeReplyLog{ch: make(chan stream.Message, 16)}
}

func (f *fakeReplyLog) Read(ctx context.Context, _ string, _ time.Duration) ([]stream.Message, error) {
	select {
	case m := <-f.ch:
		return []stream.Message{m}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeReplyLog) Delete(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeReplyLog) push(streamID, correlationID string, status schema.Status) {
	f.ch <- stream.Message{
		ID: streamID,
		Fields: map[string]string{
			"id":     correlationID,
			"status": string(status),
		},
	}
}

func TestDispatchResolvesOnReply(t *testing.T) {
	requests := &fakeRequestLog{}
	replies := newFakeReplyLog()
	d := New(requests, replies)

	done := make(chan struct{})
	go func() {
		defer close(done)
		reply, err := d.Dispatch(context.Background(), "req-1", schema.KindCreateOrder, btcOrder("req-1"), time.Second)
		assert.NoError(t, err)
		assert.Equal(t, schema.StatusCreated, reply.Status)
	}()

	waitPending(t, d, 1)
	replies.push("5-0", "req-1", schema.StatusCreated)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not resolve")
	}

	assert.Equal(t, 0, d.Pending())
	require.Len(t, requests.appended, 1)
	assert.Equal(t, "req-1", requests.appended[0]["id"])

	// The consumed reply entry is cleaned out of the stream.
	assert.Eventually(t, func() bool {
		replies.mu.Lock()
		defer replies.mu.Unlock()
		return len(replies.deleted) == 1 && replies.deleted[0] == "5-0"
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchSecondWaiterRejected(t *testing.T) {
	requests := &fakeRequestLog{}
	replies := newFakeReplyLog()
	d := New(requests, replies)

	firstDone := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), "req-1", schema.KindCloseOrder, nil, time.Second)
		firstDone <- err
	}()
	waitPending(t, d, 1)

	_, err := d.Dispatch(context.Background(), "req-1", schema.KindCloseOrder, nil, time.Second)
	require.ErrorIs(t, err, ErrAlreadyPending)
	assert.Equal(t, 1, d.Pending(), "first waiter must stay registered")

	replies.push("1-0", "req-1", schema.StatusClosed)
	require.NoError(t, <-firstDone)
}

func TestDispatchTimeout(t *testing.T) {
	requests := &fakeRequestLog{}
	replies := newFakeReplyLog()
	d := New(requests, replies)

	_, err := d.Dispatch(context.Background(), "req-1", schema.KindCloseOrder, nil, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, d.Pending(), "expired waiter must be removed")

	// A reply after giveup is dropped, not delivered to anyone.
	replies.push("9-0", "req-1", schema.StatusClosed)
	time.Sleep(50 * time.Millisecond)
	replies.mu.Lock()
	defer replies.mu.Unlock()
	assert.Empty(t, replies.deleted, "late reply should not be consumed as a resolution")
}

func TestDispatchPublishFailure(t *testing.T) {
	requests := &fakeRequestLog{fail: true}
	replies := newFakeReplyLog()
	d := New(requests, replies)

	_, err := d.Dispatch(context.Background(), "req-1", schema.KindCloseOrder, nil, time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatchContextCancel(t *testing.T) {
	requests := &fakeRequestLog{}
	replies := newFakeReplyLog()
	d := New(requests, replies)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(ctx, "req-1", schema.KindCloseOrder, nil, time.Minute)
		done <- err
	}()
	waitPending(t, d, 1)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, d.Pending())
}

func btcOrder(id string) schema.CreateOrder {
	return schema.CreateOrder{
		ID:       id,
		UserID:   "u-1",
		Asset:    "BTC",
		Side:     schema.SideLong,
		Qty:      0.1,
		Leverage: 10,
	}
}

func waitPending(t *testing.T, d *Dispatcher, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return d.Pending() == n }, time.Second, time.Millisecond)
}
