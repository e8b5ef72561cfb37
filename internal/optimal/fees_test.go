package optimal

import (
	"math/big"
	"testing"
)

func TestFeeBipsFromUSDClampsToCeiling(t *testing.T) {
	// Fee larger than the position value must clamp, not exceed 1e18
	feeBips := FeeBipsFromUSD(500.0, 100.0)

	if feeBips.Cmp(MaxFeePips) != 0 {
		t.Errorf("expected feeBips clamped to %s, got %s", MaxFeePips, feeBips)
	}
}

func TestFeeBipsFromUSDWithinRange(t *testing.T) {
	cases := []struct {
		name        string
		feeUSD      float64
		positionUSD float64
	}{
		{"small fee", 0.5, 10000},
		{"one percent", 1, 100},
		{"half of position", 50, 100},
		{"exact position", 100, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			feeBips := FeeBipsFromUSD(tc.feeUSD, tc.positionUSD)

			if feeBips.Sign() < 0 {
				t.Errorf("feeBips must not be negative, got %s", feeBips)
			}
			if feeBips.Cmp(MaxFeePips) > 0 {
				t.Errorf("feeBips %s exceeds ceiling %s", feeBips, MaxFeePips)
			}
		})
	}
}

func TestFeeBipsFromUSDZeroPositionValue(t *testing.T) {
	// A worthless position waives the fee instead of dividing by zero
	feeBips := FeeBipsFromUSD(10.0, 0)

	if feeBips.Sign() != 0 {
		t.Errorf("expected zero feeBips for zero position value, got %s", feeBips)
	}
}

func TestFeeBipsFromUSDExactRatio(t *testing.T) {
	// $1 fee on a $1000 position is 0.1% of 1e18
	feeBips := FeeBipsFromUSD(1.0, 1000.0)

	expected := new(big.Int).Div(MaxFeePips, big.NewInt(1000))
	if feeBips.Cmp(expected) != 0 {
		t.Errorf("expected feeBips %s, got %s", expected, feeBips)
	}
}

func TestMulRatioFloorRoundsDown(t *testing.T) {
	// 1001 * 0.003 = 3.003, floors to 3
	fee := mulRatioFloor(big.NewInt(1001), 0.003)

	if fee.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("expected fee 3, got %s", fee)
	}
}

func TestMulRatioFloorZeroInputs(t *testing.T) {
	if fee := mulRatioFloor(nil, 0.003); fee.Sign() != 0 {
		t.Errorf("nil amount should give zero fee, got %s", fee)
	}
	if fee := mulRatioFloor(big.NewInt(0), 0.003); fee.Sign() != 0 {
		t.Errorf("zero amount should give zero fee, got %s", fee)
	}
	if fee := mulRatioFloor(big.NewInt(1000), 0); fee.Sign() != 0 {
		t.Errorf("zero ratio should give zero fee, got %s", fee)
	}
}

func TestReinvestFeeForFallsBackToDefault(t *testing.T) {
	fees := FeeRatios{
		ReinvestFee:        map[int32]float64{3000: 0.001},
		ReinvestFeeDefault: 0.003,
	}

	if got := fees.ReinvestFeeFor(3000); got != 0.001 {
		t.Errorf("expected tier override 0.001, got %f", got)
	}
	if got := fees.ReinvestFeeFor(500); got != 0.003 {
		t.Errorf("expected default 0.003, got %f", got)
	}
}

func TestFeeBipsToRatioRoundTrip(t *testing.T) {
	feeBips := FeeBipsFromUSD(3.0, 1000.0)
	ratio := feeBipsToRatio(feeBips)

	if ratio < 0.0029 || ratio > 0.0031 {
		t.Errorf("expected ratio near 0.003, got %f", ratio)
	}
}
