package store

import (
	"testing"

	"github.com/shopspring/decimal"

	"main/internal/fixed"
)

func TestFixedToRawPerAssetPrecision(t *testing.T) {
	cases := []struct {
		value    float64
		decimals int32
		want     string
	}{
		{1, 6, "1000000"},        // 1 USDC
		{1, 8, "100000000"},      // 1 BTC in sats
		{0.5, 9, "500000000"},    // 0.5 SOL in lamports
		{600, 6, "600000000"},    // 600 USDC
		{0.00000001, 8, "1"},     // one sat
		{2, 18, "2000000000000000000"}, // 2 ETH in wei, beyond int64 territory at scale
	}
	for _, c := range cases {
		got := FixedToRaw(fixed.ToFixed(c.value), c.decimals)
		if got.String() != c.want {
			t.Fatalf("FixedToRaw(%v, %d) = %s, want %s", c.value, c.decimals, got, c.want)
		}
	}
}

func TestRawToFixedRoundTrip(t *testing.T) {
	for _, decimals := range []int32{6, 8, 9, 18} {
		orig := fixed.ToFixed(123.456)
		raw := FixedToRaw(orig, decimals)
		back := RawToFixed(raw, decimals)
		if decimals >= 8 && back != orig {
			t.Fatalf("lossless round-trip failed at %d decimals: %d -> %d", decimals, orig, back)
		}
		// Coarser store precision may truncate, but never by more than one
		// store unit.
		diff := orig - back
		if diff < 0 {
			diff = -diff
		}
		limit := fixed.Fixed(1)
		for i := decimals; i < fixed.Decimals; i++ {
			limit *= 10
		}
		if diff > limit {
			t.Fatalf("round-trip drift at %d decimals: %d", decimals, diff)
		}
	}
}

func TestRawStringToFixed(t *testing.T) {
	got, err := RawStringToFixed("600000000", 6)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != fixed.ToFixed(600) {
		t.Fatalf("got %v, want 600", fixed.FromFixed(got))
	}

	if _, err := RawStringToFixed("not-a-number", 6); err == nil {
		t.Fatal("expected parse failure")
	}
}

func TestRawStringToFixedWeiScale(t *testing.T) {
	// 1.5 ETH as wei: the raw integer exceeds int64 comfort, the engine
	// value must still come out exact.
	got, err := RawStringToFixed("1500000000000000000", 18)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != fixed.ToFixed(1.5) {
		t.Fatalf("got %v, want 1.5", fixed.FromFixed(got))
	}
}

func TestColumnConversions(t *testing.T) {
	price := fixed.ToFixed(45200.5)
	col := FixedToColumn(price, PriceDecimals)
	if col != 4520050 {
		t.Fatalf("price column = %d, want 4520050", col)
	}
	if ColumnToFixed(col, PriceDecimals) != price {
		t.Fatal("price column round-trip failed")
	}

	qty := fixed.ToFixed(0.1)
	col = FixedToColumn(qty, QuantityDecimals)
	if col != 1000000 {
		t.Fatalf("qty column = %d, want 1000000", col)
	}
	if ColumnToFixed(col, QuantityDecimals) != qty {
		t.Fatal("qty column round-trip failed")
	}
}

func TestAssetDecimals(t *testing.T) {
	if d := AssetDecimals(nil, "ETH"); d != 18 {
		t.Fatalf("ETH decimals = %d, want 18", d)
	}
	if d := AssetDecimals(nil, "DOGE"); d != 8 {
		t.Fatalf("fallback decimals = %d, want 8", d)
	}
	if d := AssetDecimals(map[string]int32{"DOGE": 4}, "DOGE"); d != 4 {
		t.Fatalf("override decimals = %d, want 4", d)
	}
}

func TestRawToFixedTruncatesExcessPrecision(t *testing.T) {
	// 1 wei is below the engine's resolution; it truncates to zero rather
	// than rounding up phantom funds.
	got := RawToFixed(decimal.NewFromInt(1), 18)
	if got != 0 {
		t.Fatalf("1 wei should truncate to 0, got %d", got)
	}
}
