// Package engine is the authoritative trading state machine. One engine
// instance owns the ledger and mutates it from ordered stream entries; every
// handler is a total function of (state, entry) and safe to re-apply for a
// duplicate id.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/fixed"
	"main/internal/ledger"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/writeback"
)

// MarginAsset is the settlement currency. Margin is debited from and
// credited back to the owner's balance in this asset.
const MarginAsset = "USDC"

// ReplySink publishes correlated replies and unsolicited close
// notifications to the reply stream.
type ReplySink interface {
	Publish(ctx context.Context, reply schema.Reply) error
}

// Config tunes the engine.
type Config struct {
	Risk          risk.Config
	AssetDecimals map[string]int32
}

// Engine applies stream entries to the ledger and emits replies.
type Engine struct {
	cfg     Config
	led     *ledger.Ledger
	risk    *risk.Engine
	queue   *writeback.Queue
	replies ReplySink
	closed  map[string]struct{}

	now func() time.Time
}

// New creates an engine over an empty ledger.
func New(queue *writeback.Queue, replies ReplySink, cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		led:     ledger.New(),
		risk:    risk.NewEngine(cfg.Risk),
		queue:   queue,
		replies: replies,
		closed:  make(map[string]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ledger exposes the engine-owned state. The engine goroutine is the only
// legitimate mutator; everything else reads for inspection/tests.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.led
}

// Recover loads open positions and balances from the durable store. It must
// complete before the first stream read.
func (e *Engine) Recover(ctx context.Context, st *store.Store) error {
	positions, err := st.OpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if err := e.led.Insert(p); err != nil {
			logs.Errorf("recover: skip duplicate position %s", p.ID)
		}
	}

	balances, err := st.Balances(ctx)
	if err != nil {
		return err
	}
	for _, b := range balances {
		e.led.SetBalance(b.UserID, b.Symbol, b.Balance)
	}

	logs.Infof("state recovered: %d open positions, %d balances", e.led.PositionCount(), len(balances))
	return nil
}

// HandleEntry decodes one input stream entry and dispatches it. Returned
// errors mean the entry was skipped; the caller logs and advances.
func (e *Engine) HandleEntry(ctx context.Context, raw []byte) error {
	env, err := schema.DecodeEnvelope(raw)
	if err != nil {
		return err
	}

	switch env.Kind {
	case schema.KindPriceUpdate:
		return e.handlePriceUpdate(ctx, env.Payload)
	case schema.KindCreateOrder:
		return e.handleCreateOrder(ctx, env.Payload)
	case schema.KindCloseOrder:
		return e.handleCloseOrder(ctx, env.Payload)
	case schema.KindBalanceUpdate:
		return e.handleBalanceUpdate(ctx, env.Payload)
	default:
		return schema.ErrUnknownKind
	}
}

func (e *Engine) handlePriceUpdate(ctx context.Context, raw json.RawMessage) error {
	p, err := schema.DecodePriceUpdate(raw)
	if err != nil {
		return err
	}
	bid, err := fixed.Parse(p.Bid)
	if err != nil {
		return err
	}
	ask, err := fixed.Parse(p.Ask)
	if err != nil {
		return err
	}

	quote := ledger.Quote{Bid: bid, Ask: ask}
	e.led.SetQuote(p.Symbol, quote)

	for _, pos := range e.led.PositionsByAsset(p.Symbol) {
		d := e.risk.Evaluate(pos, quote)
		if d.Trigger == "" {
			continue
		}
		e.settle(ctx, pos, d.Mark, d.Pnl, d.Trigger, pos.ID)
	}
	return nil
}

func (e *Engine) handleCreateOrder(ctx context.Context, raw json.RawMessage) error {
	c, err := schema.DecodeCreateOrder(raw)
	if err != nil {
		return err
	}

	// At-least-once delivery: a replayed create for a live or settled
	// position is a silent no-op, never a double debit.
	if _, ok := e.led.Position(c.ID); ok {
		return nil
	}
	if _, ok := e.closed[c.ID]; ok {
		return nil
	}

	if c.Qty <= 0 {
		e.reject(ctx, c.ID, schema.StatusInvalidSize, "quantity must be positive")
		return nil
	}
	if c.Leverage < 1 || c.TakeProfit < 0 || c.StopLoss < 0 {
		e.reject(ctx, c.ID, schema.StatusInvalidOrder, "invalid leverage or trigger levels")
		return nil
	}

	quote, ok := e.led.Quote(c.Asset)
	if !ok {
		e.reject(ctx, c.ID, schema.StatusNoPrice, "price data not available for asset")
		return nil
	}

	// A long fills at the ask, a short at the bid.
	entry := quote.Ask
	if c.Side == schema.SideShort {
		entry = quote.Bid
	}

	qty := fixed.ToFixed(c.Qty)
	notional := fixed.Mul(entry, qty)
	margin := fixed.DivInt(notional, c.Leverage)
	if margin <= 0 {
		e.reject(ctx, c.ID, schema.StatusInvalidSize, "position size below margin resolution")
		return nil
	}

	if err := e.led.Debit(c.UserID, MarginAsset, margin); err != nil {
		e.reject(ctx, c.ID, schema.StatusInsufficientBalance, "not enough balance for margin requirement")
		return nil
	}
	e.persistBalance(c.UserID, MarginAsset)

	pos := &ledger.Position{
		ID:            c.ID,
		UserID:        c.UserID,
		Asset:         c.Asset,
		Side:          c.Side,
		Qty:           qty,
		Leverage:      c.Leverage,
		EntryPrice:    entry,
		InitialMargin: margin,
		TakeProfit:    fixed.ToFixed(c.TakeProfit),
		StopLoss:      fixed.ToFixed(c.StopLoss),
		CreatedAt:     e.now(),
	}
	if err := e.led.Insert(pos); err != nil {
		return err
	}

	e.queue.Enqueue(writeback.Task{Kind: writeback.TaskPositionCreate, Create: pos})
	e.reply(ctx, schema.Reply{
		ID:      c.ID,
		Status:  schema.StatusCreated,
		Payload: encodePayload(schema.CreatedPayload{Price: fixed.FromFixed(entry)}),
	})
	logs.Infof("order %s opened %s %s qty=%v @ %v margin=%v",
		c.ID, c.Side, c.Asset, c.Qty, fixed.FromFixed(entry), fixed.FromFixed(margin))
	return nil
}

func (e *Engine) handleCloseOrder(ctx context.Context, raw json.RawMessage) error {
	c, err := schema.DecodeCloseOrder(raw)
	if err != nil {
		return err
	}

	pos, ok := e.led.Position(c.OrderID)
	if !ok {
		if _, wasClosed := e.closed[c.OrderID]; wasClosed {
			e.reject(ctx, c.OrderID, schema.StatusAlreadyClosed, "order already closed")
		} else {
			e.reject(ctx, c.OrderID, schema.StatusOrderNotFound, "order not found or access denied")
		}
		return nil
	}
	if pos.UserID != c.UserID {
		e.reject(ctx, c.OrderID, schema.StatusOrderNotFound, "order not found or access denied")
		return nil
	}

	// Exit at the force-close side of the book; fall back to the entry
	// price when no quote has arrived since recovery.
	exit := pos.EntryPrice
	if quote, ok := e.led.Quote(pos.Asset); ok {
		exit = pos.MarkPrice(quote)
	}
	pnl := risk.Pnl(pos.Side, pos.EntryPrice, exit, pos.Qty)

	reason := schema.CloseManual
	switch c.CloseReason {
	case schema.CloseTakeProfit, schema.CloseStopLoss, schema.CloseLiquidation:
		reason = c.CloseReason
	}

	e.settle(ctx, pos, exit, pnl, reason, c.OrderID)
	return nil
}

func (e *Engine) handleBalanceUpdate(ctx context.Context, raw json.RawMessage) error {
	b, err := schema.DecodeBalanceUpdate(raw)
	if err != nil {
		return err
	}

	decimals := b.Decimals
	if decimals == 0 {
		decimals = store.AssetDecimals(e.cfg.AssetDecimals, b.Symbol)
	}
	balance, err := store.RawStringToFixed(b.NewBalance, decimals)
	if err != nil {
		return err
	}

	// Authoritative overwrite from the store's copy; no write-back, the
	// store already holds this value.
	e.led.SetBalance(b.UserID, b.Symbol, balance)
	logs.Infof("balance sync %s %s = %v", b.UserID, b.Symbol, fixed.FromFixed(balance))
	return nil
}

// settle closes a position: credit floored remaining margin, remove it,
// queue the durable close and publish the reply. The whole sequence runs
// between two stream entries, atomic with respect to every other entry.
func (e *Engine) settle(ctx context.Context, pos *ledger.Position, price, pnl fixed.Fixed, reason schema.CloseReason, replyID string) {
	credit := pos.InitialMargin + pnl
	if credit < 0 {
		credit = 0
	}
	e.led.Credit(pos.UserID, MarginAsset, credit)
	e.persistBalance(pos.UserID, MarginAsset)

	e.led.Remove(pos.ID)
	e.closed[pos.ID] = struct{}{}

	e.queue.Enqueue(writeback.Task{
		Kind: writeback.TaskPositionClose,
		Close: &writeback.PositionClose{
			ID:         pos.ID,
			ClosePrice: price,
			Pnl:        pnl,
			Reason:     reason,
			ClosedAt:   e.now(),
		},
	})

	e.reply(ctx, schema.Reply{
		ID:     replyID,
		Status: schema.StatusClosed,
		Payload: encodePayload(schema.ClosedPayload{
			Reason: reason,
			Pnl:    fixed.FromFixed(pnl),
			Price:  fixed.FromFixed(price),
		}),
	})
	logs.Infof("order %s closed reason=%s pnl=%v", pos.ID, reason, fixed.FromFixed(pnl))
}

// persistBalance queues the current balance of (user, asset) for the store.
func (e *Engine) persistBalance(userID, asset string) {
	e.queue.Enqueue(writeback.Task{
		Kind: writeback.TaskBalanceUpsert,
		Balance: &writeback.BalanceUpsert{
			UserID:  userID,
			Symbol:  asset,
			Balance: e.led.Balance(userID, asset),
		},
	})
}

func (e *Engine) reject(ctx context.Context, id string, status schema.Status, reason string) {
	e.reply(ctx, schema.Reply{
		ID:      id,
		Status:  status,
		Payload: encodePayload(schema.ReasonPayload{Reason: reason}),
	})
}

func (e *Engine) reply(ctx context.Context, r schema.Reply) {
	if err := e.replies.Publish(ctx, r); err != nil {
		logs.Errorf("reply publish failed id=%s status=%s, err: %v", r.ID, r.Status, err)
	}
}

func encodePayload(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
