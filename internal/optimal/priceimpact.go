package optimal

import (
	"math/big"

	"github.com/gatti/clamm-zap/internal/pool"
)

// PriceImpact returns the absolute relative deviation between the executed
// exchange rate and the pool's spot price at the planning snapshot. Zero
// when either side of the trade or the spot price is unavailable.
//
// Reported for observability and caller-side filtering only; it never
// affects candidate validity.
func PriceImpact(snapshot *pool.Snapshot, amountIn, amountOut *big.Int, zeroForOne bool) float64 {
	if snapshot == nil || amountIn == nil || amountOut == nil {
		return 0
	}
	if amountIn.Sign() == 0 || amountOut.Sign() == 0 {
		return 0
	}

	spot := snapshot.SpotPrice()
	if spot.Sign() == 0 {
		return 0
	}

	in := rescale(amountIn, tokenInDecimals(snapshot.Key, zeroForOne))
	out := rescale(amountOut, tokenOutDecimals(snapshot.Key, zeroForOne))

	// Executed rate in token1-per-token0 terms regardless of direction
	var executed *big.Float
	if zeroForOne {
		executed = new(big.Float).Quo(out, in)
	} else {
		executed = new(big.Float).Quo(in, out)
	}

	deviation := new(big.Float).Quo(new(big.Float).Sub(executed, spot), spot)
	impact, _ := deviation.Float64()
	if impact < 0 {
		impact = -impact
	}
	return impact
}

// SlippageMinimum returns amountOut * (1 - slippage), rounded down. This
// is the minimum acceptable output encoded into the final transaction.
func SlippageMinimum(amountOut *big.Int, slippage float64) *big.Int {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	if slippage <= 0 {
		return new(big.Int).Set(amountOut)
	}
	if slippage >= 1 {
		return big.NewInt(0)
	}

	minOut, _ := new(big.Float).Mul(new(big.Float).SetInt(amountOut), big.NewFloat(1-slippage)).Int(nil)
	return minOut
}

func tokenInDecimals(key pool.Key, zeroForOne bool) int {
	if zeroForOne {
		return key.Token0.Decimals
	}
	return key.Token1.Decimals
}

func tokenOutDecimals(key pool.Key, zeroForOne bool) int {
	if zeroForOne {
		return key.Token1.Decimals
	}
	return key.Token0.Decimals
}

func rescale(amount *big.Int, decimals int) *big.Float {
	v := new(big.Float).SetInt(amount)
	if decimals > 0 {
		scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		v.Quo(v, scale)
	}
	return v
}
