// Package pricing converts raw pool reserves into a decimal-adjusted price.
//
// The price of token0 denominated in token1 is
//
//	price = (reserve1 / 10^decimals1) / (reserve0 / 10^decimals0)
//	      = (reserve1 * 10^(decimals0 - decimals1)) / reserve0
//
// Decimal scaling happens in the 256-bit integer domain before anything is
// converted to floating point. Converting an intermediate ratio first would
// destroy every significant digit for small-reserve pairs.
package pricing

import (
	"math/big"
)

const (
	// maxScaledBits is the widest value representable in the pool's integer
	// domain after decimal scaling.
	maxScaledBits = 256

	// maxExactBits bounds operands carried into the float64 division. Values
	// past 128 bits (~3.4e38) no longer round-trip through the conversion
	// with enough significant digits.
	maxExactBits = 128
)

// Price computes the token1-per-token0 price from raw integer reserves.
//
// The same four inputs always produce the bit-identical float64: scaling is
// exact integer arithmetic and the final conversion rounds to nearest even.
func Price(reserve0, reserve1 *big.Int, decimals0, decimals1 uint8) (float64, error) {
	if reserve0 == nil || reserve0.Sign() == 0 {
		return 0, newMathError(KindZeroReserve, "token0 reserve is zero, price undefined")
	}
	if reserve1 == nil || reserve1.Sign() == 0 {
		return 0, newMathError(KindZeroReserve, "token1 reserve is zero, price undefined")
	}

	numerator := new(big.Int).Set(reserve1)
	denominator := new(big.Int).Set(reserve0)

	diff := int(decimals0) - int(decimals1)
	switch {
	case diff > 0:
		numerator.Mul(numerator, pow10(diff))
	case diff < 0:
		denominator.Mul(denominator, pow10(-diff))
	}

	if numerator.BitLen() > maxScaledBits {
		return 0, newMathError(KindOverflow, "scaled reserve1 exceeds 256 bits (10^%d adjustment)", diff)
	}
	if denominator.BitLen() > maxScaledBits {
		return 0, newMathError(KindOverflow, "scaled reserve0 exceeds 256 bits (10^%d adjustment)", -diff)
	}

	if numerator.BitLen() > maxExactBits {
		return 0, newMathError(KindPrecisionLoss, "numerator %s too large for exact conversion", numerator)
	}
	if denominator.BitLen() > maxExactBits {
		return 0, newMathError(KindPrecisionLoss, "denominator %s too large for exact conversion", denominator)
	}

	num, _ := new(big.Float).SetInt(numerator).Float64()
	den, _ := new(big.Float).SetInt(denominator).Float64()

	return num / den, nil
}

// Humanize converts a raw reserve into whole-token units for display and
// persisted price points. The result is approximate by nature.
func Humanize(reserve *big.Int, decimals uint8) float64 {
	if reserve == nil || reserve.Sign() == 0 {
		return 0
	}
	value := new(big.Float).SetInt(reserve)
	scale := new(big.Float).SetInt(pow10(int(decimals)))
	human, _ := new(big.Float).Quo(value, scale).Float64()
	return human
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
