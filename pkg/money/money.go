// Package money fixes the arithmetic rules for the commission pipeline.
//
// All base amounts and rates are exact decimals; rounding happens exactly
// once, when a final commission amount is produced. The policy is
// round-half-even to two fractional digits (banker's rounding), so
// repeated recomputes and summaries stay penny-stable.
package money

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits kept on final amounts.
const Scale = 2

// Amount is an exact decimal amount of money.
type Amount = decimal.Decimal

// Zero is the additive identity.
var Zero = decimal.Zero

// FromInt builds an Amount from whole currency units.
func FromInt(v int64) Amount {
	return decimal.NewFromInt(v)
}

// FromString parses an Amount; the error is the decimal library's.
func FromString(raw string) (Amount, error) {
	return decimal.NewFromString(raw)
}

// MustRate parses a static rate literal. Panics on malformed input, so
// it is only for compiled-in rate tables, never request data.
func MustRate(raw string) Amount {
	return decimal.RequireFromString(raw)
}

// RoundAmount applies the house rounding policy to a final amount.
func RoundAmount(v Amount) Amount {
	return v.RoundBank(Scale)
}

// Mul multiplies base by rate and applies the rounding policy.
func Mul(base, rate Amount) Amount {
	return RoundAmount(base.Mul(rate))
}
