package optimal

import (
	"math/big"
	"testing"

	"github.com/gatti/clamm-zap/internal/pool"
)

func flatSnapshot() *pool.Snapshot {
	// Equal decimals and sqrtPriceX96 = 2^96 gives a spot price of exactly 1
	key := testKey()
	key.Token0.Decimals = 18
	key.Token1.Decimals = 18
	return &pool.Snapshot{
		Key:          key,
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
	}
}

func TestPriceImpactZeroAtSpot(t *testing.T) {
	snapshot := flatSnapshot()

	// Executing exactly at spot price has no impact
	impact := PriceImpact(snapshot, big.NewInt(1_000_000), big.NewInt(1_000_000), true)
	if impact > 1e-9 {
		t.Errorf("expected ~0 impact at spot, got %f", impact)
	}
}

func TestPriceImpactDetectsDeviation(t *testing.T) {
	snapshot := flatSnapshot()

	// Receiving 2% less than spot is a 2% impact
	impact := PriceImpact(snapshot, big.NewInt(1_000_000), big.NewInt(980_000), true)
	if impact < 0.019 || impact > 0.021 {
		t.Errorf("expected ~0.02 impact, got %f", impact)
	}
}

func TestPriceImpactAlwaysNonNegative(t *testing.T) {
	snapshot := flatSnapshot()

	// Better-than-spot execution still reports a positive deviation
	impact := PriceImpact(snapshot, big.NewInt(1_000_000), big.NewInt(1_050_000), true)
	if impact < 0 {
		t.Errorf("impact must be an absolute deviation, got %f", impact)
	}
}

func TestPriceImpactDegenerateInputs(t *testing.T) {
	snapshot := flatSnapshot()

	if impact := PriceImpact(nil, big.NewInt(1), big.NewInt(1), true); impact != 0 {
		t.Errorf("nil snapshot must give zero impact, got %f", impact)
	}
	if impact := PriceImpact(snapshot, big.NewInt(0), big.NewInt(1), true); impact != 0 {
		t.Errorf("zero amountIn must give zero impact, got %f", impact)
	}
	if impact := PriceImpact(snapshot, big.NewInt(1), nil, true); impact != 0 {
		t.Errorf("nil amountOut must give zero impact, got %f", impact)
	}
}

func TestSlippageMinimumRoundsDown(t *testing.T) {
	// 1000 * (1 - 0.005) = 995
	min := SlippageMinimum(big.NewInt(1000), 0.005)
	if min.Cmp(big.NewInt(995)) != 0 {
		t.Errorf("expected 995, got %s", min)
	}

	// 999 * 0.995 = 994.005, floors to 994
	min = SlippageMinimum(big.NewInt(999), 0.005)
	if min.Cmp(big.NewInt(994)) != 0 {
		t.Errorf("expected 994, got %s", min)
	}
}

func TestSlippageMinimumBounds(t *testing.T) {
	if min := SlippageMinimum(big.NewInt(1000), 0); min.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("zero slippage must keep the full amount, got %s", min)
	}
	if min := SlippageMinimum(big.NewInt(1000), 1.5); min.Sign() != 0 {
		t.Errorf("slippage >= 1 must zero the minimum, got %s", min)
	}
	if min := SlippageMinimum(nil, 0.005); min.Sign() != 0 {
		t.Errorf("nil amount must give zero, got %s", min)
	}
}
