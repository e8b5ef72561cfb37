// Package pool defines the read-only value objects describing a
// concentrated-liquidity pool and a position in it. The engine never
// mutates these; candidate positions are derived by pure computation.
package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes one side of a pool
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals int
}

// Key identifies a pool by its token pair and fee tier or tick spacing.
// Fee-based pools (classic v3) set FeeOrTickSpacing to the fee in
// hundredths of a bip (e.g. 3000 = 0.3%); tick-spacing keyed pools
// (Slipstream-style) set it to the spacing.
type Key struct {
	Token0           Token
	Token1           Token
	FeeOrTickSpacing int32
}

// String renders the key for logging and cache keys
func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%d", k.Token0.Symbol, k.Token1.Symbol, k.FeeOrTickSpacing)
}

// Snapshot is the pool state at the block the solve is planned against
type Snapshot struct {
	Key          Key
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
}

// Position describes an existing position, supplied by the caller for
// decrease/rebalance/reinvest flows
type Position struct {
	TokenID   *big.Int
	Key       Key
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
	// Uncollected fees, used by reinvest
	FeesOwed0 *big.Int
	FeesOwed1 *big.Int
}

// SpotPrice returns token1 per token0 at the snapshot's sqrt price,
// adjusted for decimals. Used only for price-impact reporting; all
// amount math comes from the pool contract.
func (s *Snapshot) SpotPrice() *big.Float {
	if s.SqrtPriceX96 == nil || s.SqrtPriceX96.Sign() == 0 {
		return big.NewFloat(0)
	}

	sqrt := new(big.Float).SetInt(s.SqrtPriceX96)
	q96 := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	ratio := new(big.Float).Quo(sqrt, q96)
	price := new(big.Float).Mul(ratio, ratio)

	// Rescale raw-unit price to human units
	decimalShift := s.Key.Token0.Decimals - s.Key.Token1.Decimals
	if decimalShift != 0 {
		scale := new(big.Float).SetInt(exp10(abs(decimalShift)))
		if decimalShift > 0 {
			price.Mul(price, scale)
		} else {
			price.Quo(price, scale)
		}
	}

	return price
}

func exp10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
