package schema

import (
	"encoding/json"
	"strings"

	"github.com/yanun0323/errors"
)

var (
	ErrEmptyEntry     = errors.New("empty stream entry")
	ErrUnknownKind    = errors.New("unknown entry kind")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidPayload = errors.New("invalid payload shape")
)

// Envelope is the outer document of every input stream entry. Decoding is
// two-step: classify the kind here, then validate the payload shape with the
// kind-specific decoder.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`

	// Legacy spellings used by older producers.
	AltKind    Kind            `json:"type,omitempty"`
	AltPayload json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses the outer entry document and normalizes legacy
// field spellings.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if len(raw) == 0 {
		return Envelope{}, ErrEmptyEntry
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if env.Kind == KindUnknown {
		env.Kind = env.AltKind
	}
	if len(env.Payload) == 0 {
		env.Payload = env.AltPayload
	}

	switch env.Kind {
	case KindPriceUpdate, KindCreateOrder, KindCloseOrder, KindBalanceUpdate:
	default:
		return env, errors.Wrap(ErrUnknownKind, string(env.Kind))
	}
	if len(env.Payload) == 0 {
		return env, errors.Wrap(ErrMissingField, "payload")
	}
	return env, nil
}

// DecodePriceUpdate validates a price-update payload and normalizes the
// symbol to its bare asset name.
func DecodePriceUpdate(raw json.RawMessage) (PriceUpdate, error) {
	var p PriceUpdate
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if p.Symbol == "" || p.Bid == "" || p.Ask == "" {
		return p, errors.Wrap(ErrMissingField, "symbol/bid/ask")
	}
	p.Symbol = NormalizeSymbol(p.Symbol)
	return p, nil
}

// DecodeCreateOrder validates a create-order payload.
func DecodeCreateOrder(raw json.RawMessage) (CreateOrder, error) {
	var c CreateOrder
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if c.ID == "" || c.UserID == "" || c.Asset == "" {
		return c, errors.Wrap(ErrMissingField, "id/userId/asset")
	}
	if !c.Side.Valid() {
		return c, errors.Wrap(ErrInvalidPayload, "side "+string(c.Side))
	}
	c.Asset = NormalizeSymbol(c.Asset)
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	return c, nil
}

// DecodeCloseOrder validates a close-order payload.
func DecodeCloseOrder(raw json.RawMessage) (CloseOrder, error) {
	var c CloseOrder
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if c.OrderID == "" || c.UserID == "" {
		return c, errors.Wrap(ErrMissingField, "orderId/userId")
	}
	return c, nil
}

// DecodeBalanceUpdate validates a balance-update payload.
func DecodeBalanceUpdate(raw json.RawMessage) (BalanceUpdate, error) {
	var b BalanceUpdate
	if err := json.Unmarshal(raw, &b); err != nil {
		return b, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if b.UserID == "" || b.Symbol == "" || b.NewBalance == "" {
		return b, errors.Wrap(ErrMissingField, "userId/symbol/newBalance")
	}
	b.Symbol = NormalizeSymbol(b.Symbol)
	return b, nil
}

// NormalizeSymbol strips a quote-currency suffix and upcases the asset.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "_USDC")
	return s
}

// EncodeEnvelope renders an input stream entry document.
func EncodeEnvelope(kind Kind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	return json.Marshal(Envelope{Kind: kind, Payload: raw})
}
