// Package risk computes per-tick valuation for open positions: unrealized
// PnL, remaining margin and the forced-close triggers.
package risk

import (
	"main/internal/fixed"
	"main/internal/ledger"
	"main/internal/schema"
)

// DefaultMaintenanceThreshold is the fraction of initial margin kept as
// maintenance margin.
const DefaultMaintenanceThreshold = 0.05

// Config defines the risk limits.
type Config struct {
	// MaintenanceThreshold is fixed-point; zero falls back to the default.
	MaintenanceThreshold fixed.Fixed
}

// Decision is the outcome of valuing one position against one quote.
// Trigger is empty when the position holds.
type Decision struct {
	Trigger           schema.CloseReason
	Mark              fixed.Fixed
	Pnl               fixed.Fixed
	RemainingMargin   fixed.Fixed
	MaintenanceMargin fixed.Fixed
}

// Engine evaluates liquidation and TP/SL triggers.
type Engine struct {
	threshold fixed.Fixed
}

// NewEngine creates a risk engine with the given limits.
func NewEngine(cfg Config) *Engine {
	threshold := cfg.MaintenanceThreshold
	if threshold <= 0 {
		threshold = fixed.ToFixed(DefaultMaintenanceThreshold)
	}
	return &Engine{threshold: threshold}
}

// Pnl is the unrealized profit of a position marked at the given price.
func Pnl(side schema.Side, entry, mark, qty fixed.Fixed) fixed.Fixed {
	diff := mark - entry
	if side == schema.SideShort {
		diff = entry - mark
	}
	return fixed.Mul(diff, qty)
}

// Evaluate values a position at its mark price and returns the first
// matching trigger. Priority is a contract, not an accident: liquidation
// wins over take-profit, take-profit over stop-loss, and a position closes
// at most once per tick.
func (e *Engine) Evaluate(p *ledger.Position, q ledger.Quote) Decision {
	mark := p.MarkPrice(q)
	pnl := Pnl(p.Side, p.EntryPrice, mark, p.Qty)
	remaining := p.InitialMargin + pnl
	maintenance := fixed.Mul(p.InitialMargin, e.threshold)

	d := Decision{
		Mark:              mark,
		Pnl:               pnl,
		RemainingMargin:   remaining,
		MaintenanceMargin: maintenance,
	}

	switch {
	case remaining <= maintenance:
		d.Trigger = schema.CloseLiquidation
	case p.TakeProfit != 0 && crossedFavorably(p.Side, mark, p.TakeProfit):
		d.Trigger = schema.CloseTakeProfit
	case p.StopLoss != 0 && crossedAdversely(p.Side, mark, p.StopLoss):
		d.Trigger = schema.CloseStopLoss
	}
	return d
}

func crossedFavorably(side schema.Side, mark, level fixed.Fixed) bool {
	if side == schema.SideLong {
		return mark >= level
	}
	return mark <= level
}

func crossedAdversely(side schema.Side, mark, level fixed.Fixed) bool {
	if side == schema.SideLong {
		return mark <= level
	}
	return mark >= level
}
