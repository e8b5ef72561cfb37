package optimal

import (
	"math/big"
)

// MaxFeePips is the automation contract's fee ceiling, expressed in
// parts per 1e18. Any dynamically computed feeBips is clamped here.
var MaxFeePips = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FeeRatios holds the protocol fee configuration. Loaded once at startup
// and shared read-only across all operations.
type FeeRatios struct {
	// ZapFee is charged on the swapped portion of deposited capital,
	// as a fraction (0.003 = 0.3%)
	ZapFee float64

	// ReinvestFee maps fee tier or tick spacing to the fraction charged
	// on fees being compounded back into a position
	ReinvestFee map[int32]float64

	// ReinvestFeeDefault applies when a tier has no explicit entry
	ReinvestFeeDefault float64

	// RebalanceSwapFee is charged on the swapped portion of a rebalance
	RebalanceSwapFee float64

	// RebalanceFlatUSD is the flat per-rebalance fee in USD, converted
	// to feeBips against the position value
	RebalanceFlatUSD float64
}

// DefaultFeeRatios returns the standard protocol fee schedule
func DefaultFeeRatios() FeeRatios {
	return FeeRatios{
		ZapFee:             0.003,
		ReinvestFee:        map[int32]float64{},
		ReinvestFeeDefault: 0.003,
		RebalanceSwapFee:   0.003,
		RebalanceFlatUSD:   0,
	}
}

// ReinvestFeeFor returns the reinvest fee fraction for a fee tier or
// tick spacing
func (f FeeRatios) ReinvestFeeFor(feeOrTickSpacing int32) float64 {
	if ratio, ok := f.ReinvestFee[feeOrTickSpacing]; ok {
		return ratio
	}
	return f.ReinvestFeeDefault
}

// mulRatioFloor multiplies an integer token amount by a fractional ratio,
// rounding toward zero. Fee carve-outs always round down so the user is
// never overcharged by a fraction of a unit.
func mulRatioFloor(amount *big.Int, ratio float64) *big.Int {
	if amount == nil || amount.Sign() == 0 || ratio <= 0 {
		return big.NewInt(0)
	}

	product := new(big.Float).Mul(new(big.Float).SetInt(amount), big.NewFloat(ratio))
	out, _ := product.Int(nil)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// FeeBipsFromUSD converts a USD-denominated fee into the contract's
// parts-per-1e18 encoding against the position's USD value, rounding
// toward zero and clamping to MaxFeePips. A zero or negative position
// value yields zero; callers log that case themselves.
func FeeBipsFromUSD(feeUSD, positionUSD float64) *big.Int {
	if positionUSD <= 0 || feeUSD <= 0 {
		return big.NewInt(0)
	}

	ratio := new(big.Float).Quo(big.NewFloat(feeUSD), big.NewFloat(positionUSD))
	pips, _ := new(big.Float).Mul(ratio, new(big.Float).SetInt(MaxFeePips)).Int(nil)

	if pips.Cmp(MaxFeePips) > 0 {
		return new(big.Int).Set(MaxFeePips)
	}
	if pips.Sign() < 0 {
		return big.NewInt(0)
	}
	return pips
}

// feeBipsToRatio converts a parts-per-1e18 fee back to a fraction for
// applying against token amounts
func feeBipsToRatio(feeBips *big.Int) float64 {
	if feeBips == nil || feeBips.Sign() <= 0 {
		return 0
	}
	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(feeBips), new(big.Float).SetInt(MaxFeePips)).Float64()
	return ratio
}
