// Package store is the durable side of the engine: gorm models for wallets
// and orders, the repository the write-back queue flushes into, and the
// conversion between store-native decimal precision and the engine's
// fixed-point scale.
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Store-native precision for order rows. Wallet rows carry their own
// per-asset precision instead.
const (
	PriceDecimals    int32 = 2
	QuantityDecimals int32 = 7
)

// DefaultAssetDecimals is the raw-unit precision of wallet balances per
// asset. Unknown assets fall back to 8.
var DefaultAssetDecimals = map[string]int32{
	"BTC":  8,
	"ETH":  18,
	"SOL":  9,
	"USDC": 6,
}

const fallbackAssetDecimals int32 = 8

// Wallet is one (user, asset) balance row. BalanceRaw is the integer amount
// in the asset's smallest unit; 18-decimal assets overflow int64, so the
// column is numeric.
type Wallet struct {
	UserID          string          `gorm:"primaryKey;size:64"`
	Symbol          string          `gorm:"primaryKey;size:16"`
	BalanceRaw      decimal.Decimal `gorm:"type:numeric(40,0);not null"`
	BalanceDecimals int32           `gorm:"not null"`
	UpdatedAt       time.Time
}

// Order is one position row. Open rows are the recovery source; closed rows
// keep the terminal fill for history.
type Order struct {
	ID               string `gorm:"primaryKey;size:64"`
	UserID           string `gorm:"size:64;index"`
	Symbol           string `gorm:"size:16"`
	Side             string `gorm:"size:8"`
	Quantity         int64
	QuantityDecimals int32
	Leverage         int64
	OpenPrice        int64
	PriceDecimals    int32
	Margin           int64
	TakeProfitPrice  *int64
	StopLossPrice    *int64
	Status           string `gorm:"size:8;index"`
	ClosePrice       *int64
	Pnl              *int64
	CloseReason      *string `gorm:"size:16"`
	CreatedAt        time.Time
	ClosedAt         *time.Time
}

const (
	OrderStatusOpen   = "open"
	OrderStatusClosed = "closed"
)
