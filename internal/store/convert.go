package store

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/fixed"
)

// FixedToRaw converts an engine fixed-point value to raw units at the given
// asset precision. Digits beyond the asset precision round half up.
func FixedToRaw(v fixed.Fixed, decimals int32) decimal.Decimal {
	return decimal.New(int64(v), -fixed.Decimals).Shift(decimals).Round(0)
}

// RawToFixed converts raw units at the given asset precision back to the
// engine's fixed-point scale, truncating precision the engine cannot hold.
func RawToFixed(raw decimal.Decimal, decimals int32) fixed.Fixed {
	return fixed.Fixed(raw.Shift(-decimals).Shift(fixed.Decimals).IntPart())
}

// RawStringToFixed parses a raw integer amount, as carried by balance-update
// entries, and converts it at the given asset precision.
func RawStringToFixed(s string, decimals int32) (fixed.Fixed, error) {
	raw, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrap(err, "parse raw balance")
	}
	return RawToFixed(raw, decimals), nil
}

// FixedToColumn rescales a fixed-point value to an integer column at the
// given precision, rounding half up.
func FixedToColumn(v fixed.Fixed, decimals int32) int64 {
	return decimal.New(int64(v), -fixed.Decimals).Shift(decimals).Round(0).IntPart()
}

// ColumnToFixed rescales an integer column at the given precision back to
// the engine scale.
func ColumnToFixed(v int64, decimals int32) fixed.Fixed {
	return fixed.Fixed(decimal.New(v, -decimals).Shift(fixed.Decimals).IntPart())
}

// AssetDecimals resolves the raw-unit precision for an asset, preferring
// configured overrides.
func AssetDecimals(overrides map[string]int32, symbol string) int32 {
	if d, ok := overrides[symbol]; ok {
		return d
	}
	if d, ok := DefaultAssetDecimals[symbol]; ok {
		return d
	}
	return fallbackAssetDecimals
}
