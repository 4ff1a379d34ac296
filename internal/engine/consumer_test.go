package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/fixed"
	"main/internal/schema"
	"main/internal/stream"
)

type scriptedSource struct {
	batches [][]stream.Message
	errs    []error
	calls   int
	cursors []string
}

func (s *scriptedSource) Read(ctx context.Context, cursor string, _ time.Duration) ([]stream.Message, error) {
	s.cursors = append(s.cursors, cursor)
	if s.calls >= len(s.batches) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := s.batches[s.calls]
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	return batch, err
}

func entry(t *testing.T, id string, kind schema.Kind, payload any) stream.Message {
	t.Helper()
	raw, err := schema.EncodeEnvelope(kind, payload)
	require.NoError(t, err)
	return stream.Message{ID: id, Fields: map[string]string{"payload": string(raw)}}
}

func TestConsumerAdvancesPastPoisonEntries(t *testing.T) {
	e, sink, _ := newTestEngine()
	fundUSDC(e, "u-1", 600)

	src := &scriptedSource{
		batches: [][]stream.Message{{
			entry(t, "1-0", schema.KindPriceUpdate, schema.PriceUpdate{Symbol: "BTC", Bid: "49990", Ask: "50000"}),
			{ID: "2-0", Fields: map[string]string{"payload": "corrupted{{"}},
			{ID: "3-0", Fields: map[string]string{"other": "no payload field"}},
			entry(t, "4-0", schema.KindCreateOrder, btcOrder("o-1")),
		}},
	}
	c := NewConsumer(src, e, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	// The poison entries were skipped, the good ones applied, and the
	// cursor moved past everything.
	assert.Equal(t, "4-0", c.Cursor())
	require.NotEmpty(t, sink.replies)
	assert.Equal(t, schema.StatusCreated, sink.replies[len(sink.replies)-1].Status)
	if got := e.Ledger().Balance("u-1", MarginAsset); got != fixed.ToFixed(100) {
		t.Fatalf("balance = %v, want 100", fixed.FromFixed(got))
	}
}

func TestConsumerRetriesAfterReadFailure(t *testing.T) {
	e, _, _ := newTestEngine()
	src := &scriptedSource{
		batches: [][]stream.Message{
			nil,
			{entry(t, "1-0", schema.KindPriceUpdate, schema.PriceUpdate{Symbol: "BTC", Bid: "1", Ask: "2"})},
		},
		errs: []error{errors.New("connection reset")},
	}
	c := NewConsumer(src, e, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	require.GreaterOrEqual(t, src.calls, 2, "read should retry after failure")
	_, ok := e.Ledger().Quote("BTC")
	assert.True(t, ok, "entry after recovery should be applied")
}

func TestConsumerStartsFromLatest(t *testing.T) {
	e, _, _ := newTestEngine()
	src := &scriptedSource{}
	c := NewConsumer(src, e, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	require.NotEmpty(t, src.cursors)
	assert.Equal(t, stream.CursorLatest, src.cursors[0])
}
