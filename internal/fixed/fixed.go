// Package fixed implements the engine's scaled-integer money arithmetic.
// All balances, prices, quantities and margins are Fixed values; floating
// point never participates in a comparison.
package fixed

import (
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"
)

// Scale is the number of raw units per whole unit.
const Scale int64 = 100_000_000

// Decimals is the number of fractional digits Scale carries.
const Decimals = 8

const maxInt64 = int64(^uint64(0) >> 1)

var ErrMalformedDecimal = errors.New("malformed decimal literal")

// Fixed is a signed value scaled by Scale.
type Fixed int64

// ToFixed converts a float to Fixed, rounding half away from zero.
func ToFixed(v float64) Fixed {
	return Fixed(math.Round(v * float64(Scale)))
}

// FromFixed converts a Fixed back to a float. Display/logging only.
func FromFixed(v Fixed) float64 {
	return float64(v) / float64(Scale)
}

// Mul multiplies two Fixed values, widening through 128 bits before
// rescaling so intermediate products cannot overflow. Results outside the
// int64 range saturate.
func Mul(a, b Fixed) Fixed {
	neg := (a < 0) != (b < 0)
	ua, ub := absU64(int64(a)), absU64(int64(b))

	hi, lo := bits.Mul64(ua, ub)
	if hi >= uint64(Scale) {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, uint64(Scale))
	return narrow(q, neg)
}

// Div divides a by b at full precision, widening the numerator by Scale
// first. Division by zero and out-of-range quotients saturate.
func Div(a, b Fixed) Fixed {
	if b == 0 {
		return saturate(a < 0)
	}
	neg := (a < 0) != (b < 0)
	ua, ub := absU64(int64(a)), absU64(int64(b))

	hi, lo := bits.Mul64(ua, uint64(Scale))
	if hi >= ub {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, ub)
	return narrow(q, neg)
}

// DivInt divides a Fixed by a plain integer, truncating toward zero.
func DivInt(a Fixed, n int64) Fixed {
	if n == 0 {
		return saturate(a < 0)
	}
	return Fixed(int64(a) / n)
}

// Parse converts a decimal literal such as "45200.5" to Fixed without going
// through float64. Fractional digits beyond Decimals are truncated.
func Parse(s string) (Fixed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrMalformedDecimal
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	if strings.ContainsAny(s, "+-") {
		return 0, ErrMalformedDecimal
	}
	intPart, fracPart, dotted := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return 0, ErrMalformedDecimal
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrMalformedDecimal
	}

	var whole int64
	if intPart != "" {
		v, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, errors.Wrap(ErrMalformedDecimal, intPart)
		}
		whole = v
	}

	if len(fracPart) > Decimals {
		fracPart = fracPart[:Decimals]
	}
	var frac int64
	if dotted && fracPart != "" {
		v, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, errors.Wrap(ErrMalformedDecimal, fracPart)
		}
		for i := len(fracPart); i < Decimals; i++ {
			v *= 10
		}
		frac = v
	}

	if whole > (maxInt64-frac)/Scale {
		return 0, ErrMalformedDecimal
	}

	v := whole*Scale + frac
	if neg {
		v = -v
	}
	return Fixed(v), nil
}

func absU64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

func saturate(neg bool) Fixed {
	if neg {
		return Fixed(-maxInt64)
	}
	return Fixed(maxInt64)
}

func narrow(q uint64, neg bool) Fixed {
	if q > uint64(maxInt64) {
		return saturate(neg)
	}
	if neg {
		return Fixed(-int64(q))
	}
	return Fixed(int64(q))
}
