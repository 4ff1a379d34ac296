// Package ledger holds the engine-owned in-memory state: open positions,
// per-(user,asset) balances and live quotes. The maps are owned by the single
// engine goroutine; nothing here locks.
package ledger

import (
	"slices"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/fixed"
	"main/internal/schema"
)

var (
	ErrDuplicatePosition   = errors.New("position already exists")
	ErrPositionNotFound    = errors.New("position not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Quote is the latest bid/ask pair for one asset.
type Quote struct {
	Bid fixed.Fixed
	Ask fixed.Fixed
}

// Position is one open leveraged position. Immutable once inserted; closing
// removes it atomically with settlement.
type Position struct {
	ID            string
	UserID        string
	Asset         string
	Side          schema.Side
	Qty           fixed.Fixed
	Leverage      int64
	EntryPrice    fixed.Fixed
	InitialMargin fixed.Fixed
	TakeProfit    fixed.Fixed // 0 = unset
	StopLoss      fixed.Fixed // 0 = unset
	CreatedAt     time.Time
}

// MarkPrice is the price the position would realize if force-closed now: a
// long sells into the bid, a short buys back at the ask.
func (p *Position) MarkPrice(q Quote) fixed.Fixed {
	if p.Side == schema.SideLong {
		return q.Bid
	}
	return q.Ask
}

// Ledger is the authoritative state object.
type Ledger struct {
	positions map[string]*Position
	balances  map[string]map[string]fixed.Fixed
	quotes    map[string]Quote
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[string]*Position),
		balances:  make(map[string]map[string]fixed.Fixed),
		quotes:    make(map[string]Quote),
	}
}

// Balance returns the balance for (user, asset), zero when untracked.
func (l *Ledger) Balance(userID, asset string) fixed.Fixed {
	return l.balances[userID][asset]
}

// SetBalance overwrites a balance. Negative values clamp to zero; balances
// are never negative by invariant.
func (l *Ledger) SetBalance(userID, asset string, v fixed.Fixed) {
	if v < 0 {
		v = 0
	}
	wallet, ok := l.balances[userID]
	if !ok {
		wallet = make(map[string]fixed.Fixed)
		l.balances[userID] = wallet
	}
	wallet[asset] = v
}

// Credit adds a non-negative amount and returns the new balance.
func (l *Ledger) Credit(userID, asset string, amount fixed.Fixed) fixed.Fixed {
	if amount < 0 {
		amount = 0
	}
	next := l.Balance(userID, asset) + amount
	l.SetBalance(userID, asset, next)
	return next
}

// Debit subtracts an amount, failing when the balance cannot cover it.
func (l *Ledger) Debit(userID, asset string, amount fixed.Fixed) error {
	current := l.Balance(userID, asset)
	if amount > current {
		return ErrInsufficientBalance
	}
	l.SetBalance(userID, asset, current-amount)
	return nil
}

// Quote returns the latest quote for an asset.
func (l *Ledger) Quote(asset string) (Quote, bool) {
	q, ok := l.quotes[asset]
	return q, ok
}

// SetQuote records the latest quote for an asset.
func (l *Ledger) SetQuote(asset string, q Quote) {
	l.quotes[asset] = q
}

// Position returns an open position by id.
func (l *Ledger) Position(id string) (*Position, bool) {
	p, ok := l.positions[id]
	return p, ok
}

// Insert adds a new open position, rejecting duplicate ids.
func (l *Ledger) Insert(p *Position) error {
	if _, ok := l.positions[p.ID]; ok {
		return ErrDuplicatePosition
	}
	l.positions[p.ID] = p
	return nil
}

// Remove deletes an open position and returns it.
func (l *Ledger) Remove(id string) (*Position, bool) {
	p, ok := l.positions[id]
	if !ok {
		return nil, false
	}
	delete(l.positions, id)
	return p, true
}

// PositionsByAsset returns the open positions for an asset in creation
// order, so risk checks walk positions deterministically per run.
func (l *Ledger) PositionsByAsset(asset string) []*Position {
	var out []*Position
	for _, p := range l.positions {
		if p.Asset == asset {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *Position) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// PositionCount returns the number of open positions.
func (l *Ledger) PositionCount() int {
	return len(l.positions)
}
