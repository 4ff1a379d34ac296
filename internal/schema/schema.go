// Package schema defines the wire contract of the input and reply streams:
// entry kinds, request payload shapes and reply statuses.
package schema

// Kind classifies an input stream entry.
type Kind string

const (
	KindUnknown       Kind = ""
	KindPriceUpdate   Kind = "price-update"
	KindCreateOrder   Kind = "create-order"
	KindCloseOrder    Kind = "close-order"
	KindBalanceUpdate Kind = "balance-update"
)

// Side is the direction of a leveraged position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether the side is a known value.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Status is the outcome carried by a reply stream entry.
type Status string

const (
	StatusCreated             Status = "created"
	StatusClosed              Status = "closed"
	StatusInsufficientBalance Status = "insufficient_balance"
	StatusNoPrice             Status = "no_price"
	StatusInvalidOrder        Status = "invalid_order"
	StatusInvalidSize         Status = "invalid_size"
	StatusOrderNotFound       Status = "order_not_found"
	StatusAlreadyClosed       Status = "already_closed"
)

// CloseReason records why a position left the book.
type CloseReason string

const (
	CloseManual      CloseReason = "manual"
	CloseTakeProfit  CloseReason = "take_profit"
	CloseStopLoss    CloseReason = "stop_loss"
	CloseLiquidation CloseReason = "liquidation"
)

// PriceUpdate is the payload of a price-update entry. Bid and ask are
// decimal literals; Symbol may carry a quote-currency suffix.
type PriceUpdate struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
}

// CreateOrder is the payload of a create-order entry. The id doubles as the
// correlation id of the eventual reply.
type CreateOrder struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId"`
	Asset      string  `json:"asset"`
	Side       Side    `json:"side"`
	Qty        float64 `json:"qty"`
	Leverage   int64   `json:"leverage"`
	TakeProfit float64 `json:"takeProfit,omitempty"`
	StopLoss   float64 `json:"stopLoss,omitempty"`
}

// CloseOrder is the payload of a close-order entry.
type CloseOrder struct {
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	CloseReason CloseReason `json:"closeReason,omitempty"`
}

// BalanceUpdate is the payload of a balance-update entry. NewBalance is the
// store-native raw integer amount rendered as a string; Decimals is its
// per-asset precision.
type BalanceUpdate struct {
	UserID     string `json:"userId"`
	Symbol     string `json:"symbol"`
	NewBalance string `json:"newBalance"`
	Decimals   int32  `json:"decimals"`
}

// Reply is one reply stream entry. Payload is a small JSON document whose
// shape depends on Status.
type Reply struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Payload string `json:"payload,omitempty"`
}

// CreatedPayload is the reply payload for StatusCreated.
type CreatedPayload struct {
	Price float64 `json:"price"`
}

// ClosedPayload is the reply payload for StatusClosed.
type ClosedPayload struct {
	Reason CloseReason `json:"reason"`
	Pnl    float64     `json:"pnl"`
	Price  float64     `json:"price"`
}

// ReasonPayload is the reply payload for rejection statuses.
type ReasonPayload struct {
	Reason string `json:"reason"`
}
