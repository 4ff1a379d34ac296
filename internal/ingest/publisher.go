package ingest

import (
	"context"
	"strings"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Appender is the engine input stream.
type Appender interface {
	Append(ctx context.Context, fields map[string]any) (string, error)
}

// Publisher turns book tickers into price-update entries on the input
// stream.
type Publisher struct {
	log Appender
}

func NewPublisher(log Appender) *Publisher {
	return &Publisher{log: log}
}

// Publish appends one price update. Tickers with no price on either side
// are rejected before touching the stream.
func (p *Publisher) Publish(ctx context.Context, t BookTicker) error {
	asset := MarketAsset(t.Symbol)
	if asset == "" {
		return errors.Errorf("unrecognized market %q", t.Symbol)
	}
	if t.BidPrice == "" || t.AskPrice == "" {
		return errors.Errorf("market %s ticker missing a side", t.Symbol)
	}

	doc, err := schema.EncodeEnvelope(schema.KindPriceUpdate, schema.PriceUpdate{
		Symbol: asset,
		Bid:    t.BidPrice,
		Ask:    t.AskPrice,
	})
	if err != nil {
		return errors.Wrap(err, "encode price update")
	}

	if _, err := p.log.Append(ctx, map[string]any{"payload": string(doc)}); err != nil {
		return errors.Wrap(err, "append price update").With("market", t.Symbol)
	}

	return nil
}

// MarketAsset maps an exchange market name to the engine asset symbol,
// e.g. BTCUSDT -> BTC. Unknown quote currencies return "".
func MarketAsset(market string) string {
	m := strings.ToUpper(strings.TrimSpace(market))
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if base, ok := strings.CutSuffix(m, quote); ok && base != "" {
			return base
		}
	}
	return ""
}
