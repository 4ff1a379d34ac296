// Package ingest feeds live market quotes into the engine input stream.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

// BinanceFeed holds one websocket connection to the Binance public stream.
type BinanceFeed struct {
	wss *ws.WebSocket
}

// NewBinanceFeed dials nothing yet; Start opens the connection.
func NewBinanceFeed(ctx context.Context, url string) *BinanceFeed {
	return &BinanceFeed{
		wss: ws.New(ctx, url),
	}
}

func (f *BinanceFeed) Close() {
	f.wss.Close()
}

func (f *BinanceFeed) Start(ctx context.Context) error {
	if err := f.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	return nil
}

type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type binanceSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

// SubscribeBookTicker subscribes 'Individual Symbol Book Ticker' for each
// market, e.g. BTCUSDT.
func (f *BinanceFeed) SubscribeBookTicker(ctx context.Context, markets []string) error {
	params := make([]string, 0, len(markets))
	for _, m := range markets {
		params = append(params, fmt.Sprintf("%s@bookTicker", strings.ToLower(m)))
	}

	appendIntoRegister := true
	if err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := binanceSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: params,
				ID:     1,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp binanceSubscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// BookTicker is the best bid/ask snapshot Binance pushes per market.
type BookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// ObserveBookTicker delivers each book ticker to the handler until the
// context or process shuts down.
func (f *BinanceFeed) ObserveBookTicker(ctx context.Context, handler func(t BookTicker)) (unsubscribe func()) {
	ch, cancel := f.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				resp, ok := ws.ReadMessage[BookTicker](m)
				if !ok || resp.Symbol == "" {
					continue
				}

				handler(resp)
			}
		}
	}()

	return cancel
}
