package ingest

import (
	"context"
	"testing"

	"main/internal/schema"
)

type captureLog struct {
	fields []map[string]any
}

func (c *captureLog) Append(_ context.Context, fields map[string]any) (string, error) {
	c.fields = append(c.fields, fields)
	return "1-0", nil
}

func TestMarketAsset(t *testing.T) {
	cases := []struct {
		market string
		want   string
	}{
		{"BTCUSDT", "BTC"},
		{"ethusdc", "ETH"},
		{"SOLUSD", "SOL"},
		{"USDT", ""},
		{"BTCEUR", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := MarketAsset(c.market); got != c.want {
			t.Fatalf("MarketAsset(%q) = %q, want %q", c.market, got, c.want)
		}
	}
}

func TestPublishBookTicker(t *testing.T) {
	log := &captureLog{}
	p := NewPublisher(log)

	err := p.Publish(context.Background(), BookTicker{
		Symbol:   "BTCUSDT",
		BidPrice: "49990.10",
		AskPrice: "50000.00",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(log.fields) != 1 {
		t.Fatalf("appended %d entries, want 1", len(log.fields))
	}

	raw, ok := log.fields[0]["payload"].(string)
	if !ok {
		t.Fatal("entry has no payload field")
	}
	env, err := schema.DecodeEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Kind != schema.KindPriceUpdate {
		t.Fatalf("kind = %s", env.Kind)
	}
	update, err := schema.DecodePriceUpdate(env.Payload)
	if err != nil {
		t.Fatalf("decode price update: %v", err)
	}
	if update.Symbol != "BTC" || update.Bid != "49990.10" || update.Ask != "50000.00" {
		t.Fatalf("update = %+v", update)
	}
}

func TestPublishRejectsBadTickers(t *testing.T) {
	log := &captureLog{}
	p := NewPublisher(log)

	for _, ticker := range []BookTicker{
		{Symbol: "BTCEUR", BidPrice: "1", AskPrice: "2"},
		{Symbol: "BTCUSDT", AskPrice: "2"},
		{Symbol: "BTCUSDT", BidPrice: "1"},
	} {
		if err := p.Publish(context.Background(), ticker); err == nil {
			t.Fatalf("expected error for %+v", ticker)
		}
	}
	if len(log.fields) != 0 {
		t.Fatalf("bad tickers must not reach the stream, got %d entries", len(log.fields))
	}
}
