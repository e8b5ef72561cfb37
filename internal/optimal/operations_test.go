package optimal

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gatti/clamm-zap/internal/contract"
	"github.com/gatti/clamm-zap/internal/pool"
	"github.com/gatti/clamm-zap/internal/price"
	"github.com/gatti/clamm-zap/internal/solver"
)

func newTestEngine(t *testing.T, auto contract.Automation, prices price.Source) *Engine {
	t.Helper()

	builder := newTestBuilder(t, auto)
	engine, err := NewEngine(EngineConfig{
		Builder: builder,
		Fees: FeeRatios{
			ZapFee:             0.003,
			ReinvestFee:        map[int32]float64{},
			ReinvestFeeDefault: 0.003,
			RebalanceSwapFee:   0.003,
			RebalanceFlatUSD:   5.0,
		},
		Prices:      prices,
		ChainID:     1,
		NativeToken: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func positionInRange() *pool.Position {
	return &pool.Position{
		TokenID:   big.NewInt(12345),
		Key:       testKey(),
		TickLower: -100,
		TickUpper: 100,
		Liquidity: big.NewInt(1_000_000),
		FeesOwed0: big.NewInt(1_000_000),
		FeesOwed1: big.NewInt(0),
	}
}

func rebalanceParamsForTest(sv solver.Solver) RebalanceParams {
	params := RebalanceParams{
		Position:     positionInRange(),
		Snapshot:     testSnapshot(),
		NewTickLower: -200,
		NewTickUpper: 200,
		Amount0:      big.NewInt(1_000_000),
		Amount1:      big.NewInt(500_000),
		Slippage:     0.005,
	}
	if sv != nil {
		params.Solvers = []solver.Solver{sv}
	}
	return params
}

func TestMintValidatesTickRange(t *testing.T) {
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1), zeroForOne: true}
	engine := newTestEngine(t, auto, nil)

	_, err := engine.Mint(context.Background(), MintParams{
		Snapshot:       testSnapshot(),
		TickLower:      100,
		TickUpper:      100,
		Amount0Desired: big.NewInt(1),
		Amount1Desired: big.NewInt(0),
	})
	if err == nil {
		t.Fatal("expected error for an empty tick range")
	}
}

func TestMintProducesCandidates(t *testing.T) {
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1_000_000), zeroForOne: true}
	engine := newTestEngine(t, auto, nil)

	sv := &fakeSolver{id: solver.IDOneInch, quote: goodQuote(solver.IDOneInch, 900_000)}

	candidates, err := engine.Mint(context.Background(), MintParams{
		Snapshot:       testSnapshot(),
		TickLower:      -100,
		TickUpper:      100,
		Amount0Desired: big.NewInt(1_000_000),
		Amount1Desired: big.NewInt(0),
		Slippage:       0.005,
		Solvers:        []solver.Solver{sv},
	})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	// 0.3% zap fee on the planned 1_000_000
	if candidates[0].Token0FeeAmount.Cmp(big.NewInt(3_000)) != 0 {
		t.Errorf("expected token0 fee 3000, got %s", candidates[0].Token0FeeAmount)
	}
}

func TestRebalanceZeroPositionValueWaivesFee(t *testing.T) {
	// A position valued at $0 must not divide by zero: the fee falls
	// back to zero and candidates still come back
	auto := &fakeAutomation{swapAmountIn: big.NewInt(500_000), zeroForOne: true}
	prices := &price.StaticSource{Prices: map[common.Address]float64{}}
	engine := newTestEngine(t, auto, prices)

	sv := &fakeSolver{id: solver.IDOneInch, quote: goodQuote(solver.IDOneInch, 450_000)}

	result, err := engine.Rebalance(context.Background(), rebalanceParamsForTest(sv))
	if err != nil {
		t.Fatalf("rebalance must continue with a zero fee: %v", err)
	}

	if result.FeeBips.Sign() != 0 {
		t.Errorf("expected feeBips 0 for a zero-value position, got %s", result.FeeBips)
	}
	if len(result.Candidates) != 1 {
		t.Errorf("expected candidates despite the waived fee, got %d", len(result.Candidates))
	}
}

func TestRebalanceFeeBipsWithinCeiling(t *testing.T) {
	auto := &fakeAutomation{swapAmountIn: big.NewInt(500_000), zeroForOne: true}
	prices := &price.StaticSource{Prices: map[common.Address]float64{
		testKey().Token0.Address: 1.0,    // USDC
		testKey().Token1.Address: 2000.0, // WETH
	}}
	engine := newTestEngine(t, auto, prices)

	sv := &fakeSolver{id: solver.IDOneInch, quote: goodQuote(solver.IDOneInch, 450_000)}

	result, err := engine.Rebalance(context.Background(), rebalanceParamsForTest(sv))
	if err != nil {
		t.Fatalf("rebalance failed: %v", err)
	}

	if result.FeeBips.Sign() < 0 || result.FeeBips.Cmp(MaxFeePips) > 0 {
		t.Errorf("feeBips %s outside [0, %s]", result.FeeBips, MaxFeePips)
	}
	if result.FeeBips.Sign() == 0 {
		t.Error("expected a non-zero fee for a priced position with a flat USD fee")
	}
}

func TestRebalanceRequiresPosition(t *testing.T) {
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1), zeroForOne: true}
	engine := newTestEngine(t, auto, nil)

	params := rebalanceParamsForTest(nil)
	params.Position = nil

	if _, err := engine.Rebalance(context.Background(), params); err == nil {
		t.Fatal("expected error without a position")
	}
}

func TestDecreaseSplitsLegsAndSumsTotals(t *testing.T) {
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1), zeroForOne: true, swapSimOut: big.NewInt(499_000)}
	engine := newTestEngine(t, auto, nil)

	key := testKey()
	// Convert everything into token1: only the token0 leg needs a swap,
	// the token1 amount passes through untouched
	sv := &fakeSolver{id: solver.IDOneInch, quote: goodQuote(solver.IDOneInch, 499_000)}

	result, err := engine.Decrease(context.Background(), DecreaseParams{
		Position: positionInRange(),
		Snapshot: testSnapshot(),
		Amount0:  big.NewInt(1_000_000),
		Amount1:  big.NewInt(250_000),
		TokenOut: key.Token1.Address,
		Slippage: 0.005,
		Solvers:  []solver.Solver{sv},
	})
	if err != nil {
		t.Fatalf("decrease failed: %v", err)
	}

	if len(result.Legs) != 1 {
		t.Fatalf("expected exactly one swap leg, got %d", len(result.Legs))
	}
	leg := result.Legs[0]
	if leg.TokenIn != key.Token0.Address {
		t.Errorf("expected the token0 leg to swap, got %s", leg.TokenIn.Hex())
	}
	if len(leg.Candidates) != 1 {
		t.Fatalf("expected 1 leg candidate, got %d", len(leg.Candidates))
	}

	// 250_000 pass-through + 499_000 simulated swap output
	want := big.NewInt(749_000)
	if result.AmountOutTotal.Cmp(want) != 0 {
		t.Errorf("expected total %s, got %s", want, result.AmountOutTotal)
	}
}

func TestDecreaseLegUsesSimulatedOutput(t *testing.T) {
	// The router claims a wildly better output than the simulated
	// execution; the simulated amount is what ranks and sums
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1), zeroForOne: true, swapSimOut: big.NewInt(450_000)}
	engine := newTestEngine(t, auto, nil)

	key := testKey()
	sv := &fakeSolver{id: solver.IDOneInch, quote: goodQuote(solver.IDOneInch, 999_999_999)}

	result, err := engine.Decrease(context.Background(), DecreaseParams{
		Position: positionInRange(),
		Snapshot: testSnapshot(),
		Amount0:  big.NewInt(1_000_000),
		Amount1:  big.NewInt(0),
		TokenOut: key.Token1.Address,
		Slippage: 0.005,
		Solvers:  []solver.Solver{sv},
	})
	if err != nil {
		t.Fatalf("decrease failed: %v", err)
	}

	if len(result.Legs) != 1 || len(result.Legs[0].Candidates) != 1 {
		t.Fatal("expected one leg with one candidate")
	}
	c := result.Legs[0].Candidates[0]
	if c.AmountOut.Cmp(big.NewInt(450_000)) != 0 {
		t.Errorf("expected simulated output 450000, got %s", c.AmountOut)
	}
	if result.AmountOutTotal.Cmp(big.NewInt(450_000)) != 0 {
		t.Errorf("expected total 450000, got %s", result.AmountOutTotal)
	}
	if auto.swapSimCalls != 1 {
		t.Errorf("expected 1 swap simulation, got %d", auto.swapSimCalls)
	}
}

func TestDecreaseLegDroppedOnSwapSimulationFailure(t *testing.T) {
	// Calldata that reverts in simulation never contributes to the total
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1), zeroForOne: true, swapSimErr: errors.New("execution reverted")}
	engine := newTestEngine(t, auto, nil)

	key := testKey()
	sv := &fakeSolver{id: solver.IDOneInch, quote: goodQuote(solver.IDOneInch, 499_000)}

	result, err := engine.Decrease(context.Background(), DecreaseParams{
		Position: positionInRange(),
		Snapshot: testSnapshot(),
		Amount0:  big.NewInt(1_000_000),
		Amount1:  big.NewInt(250_000),
		TokenOut: key.Token1.Address,
		Slippage: 0.005,
		Solvers:  []solver.Solver{sv},
	})
	if err != nil {
		t.Fatalf("decrease must absorb simulation failures: %v", err)
	}

	if len(result.Legs) != 1 || len(result.Legs[0].Candidates) != 0 {
		t.Fatal("expected one empty leg after the simulation revert")
	}
	if result.AmountOutTotal.Cmp(big.NewInt(250_000)) != 0 {
		t.Errorf("expected pass-through only total 250000, got %s", result.AmountOutTotal)
	}
}

func TestDecreaseRanksLegBySimulatedOutput(t *testing.T) {
	// The same-pool quote comes from the quoter and carries no payload;
	// the aggregator's simulated output beats it and wins the leg
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1), zeroForOne: true, swapSimOut: big.NewInt(450_000)}
	engine := newTestEngine(t, auto, nil)

	key := testKey()
	samePool := &fakeSolver{id: solver.IDSamePool, quote: &solver.SolvedSwap{Solver: solver.IDSamePool, AmountOut: big.NewInt(400_000)}}
	aggregator := &fakeSolver{id: solver.IDOneInch, quote: goodQuote(solver.IDOneInch, 460_000)}

	result, err := engine.Decrease(context.Background(), DecreaseParams{
		Position: positionInRange(),
		Snapshot: testSnapshot(),
		Amount0:  big.NewInt(1_000_000),
		Amount1:  big.NewInt(0),
		TokenOut: key.Token1.Address,
		Slippage: 0.005,
		Solvers:  []solver.Solver{samePool, aggregator},
	})
	if err != nil {
		t.Fatalf("decrease failed: %v", err)
	}

	if len(result.Legs) != 1 || len(result.Legs[0].Candidates) != 2 {
		t.Fatal("expected one leg with two candidates")
	}
	if result.AmountOutTotal.Cmp(big.NewInt(450_000)) != 0 {
		t.Errorf("expected the simulated 450000 to win the leg, got total %s", result.AmountOutTotal)
	}
}

func TestDecreaseLegFailureDoesNotAbortSibling(t *testing.T) {
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1), zeroForOne: true}
	engine := newTestEngine(t, auto, nil)

	// TokenOut is a third token so both withdrawn sides need a leg; the
	// failing solver empties both legs but never errors the call
	failing := &fakeSolver{id: solver.IDOneInch, err: solver.ErrNoRoute}

	result, err := engine.Decrease(context.Background(), DecreaseParams{
		Position: positionInRange(),
		Snapshot: testSnapshot(),
		Amount0:  big.NewInt(1_000_000),
		Amount1:  big.NewInt(250_000),
		TokenOut: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
		Slippage: 0.005,
		Solvers:  []solver.Solver{failing},
	})
	if err != nil {
		t.Fatalf("decrease must absorb leg failures: %v", err)
	}

	if len(result.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(result.Legs))
	}
	for _, leg := range result.Legs {
		if len(leg.Candidates) != 0 {
			t.Errorf("leg %s: expected no candidates from a failing solver", leg.TokenIn.Hex())
		}
	}
	if result.AmountOutTotal.Sign() != 0 {
		t.Errorf("expected zero total with no surviving candidates, got %s", result.AmountOutTotal)
	}
}

func TestDecreaseExcludesSamePoolForThirdToken(t *testing.T) {
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1), zeroForOne: true}
	engine := newTestEngine(t, auto, nil)

	samePool := &fakeSolver{id: solver.IDSamePool, quote: goodQuote(solver.IDSamePool, 1)}

	result, err := engine.Decrease(context.Background(), DecreaseParams{
		Position: positionInRange(),
		Snapshot: testSnapshot(),
		Amount0:  big.NewInt(1_000_000),
		Amount1:  big.NewInt(0),
		TokenOut: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
		Slippage: 0.005,
		Solvers:  []solver.Solver{samePool},
	})
	if err != nil {
		t.Fatalf("decrease failed: %v", err)
	}

	if samePool.calls.Load() != 0 {
		t.Errorf("same-pool solver must not quote a third-token leg, got %d calls", samePool.calls.Load())
	}
	if len(result.Legs) != 1 || len(result.Legs[0].Candidates) != 0 {
		t.Error("expected one empty leg when no solver can serve it")
	}
}

func TestReinvestStacksFeeOnTier(t *testing.T) {
	auto := &fakeAutomation{swapAmountIn: big.NewInt(1_000_000), zeroForOne: true}
	builder := newTestBuilder(t, auto)
	engine, err := NewEngine(EngineConfig{
		Builder: builder,
		Fees: FeeRatios{
			ZapFee:             0.003,
			ReinvestFee:        map[int32]float64{3000: 0.002},
			ReinvestFeeDefault: 0.01,
		},
		ChainID: 1,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	sv := &fakeSolver{id: solver.IDOneInch, quote: goodQuote(solver.IDOneInch, 900_000)}

	candidates, err := engine.Reinvest(context.Background(), ReinvestParams{
		Position: positionInRange(),
		Snapshot: testSnapshot(),
		Slippage: 0.005,
		Solvers:  []solver.Solver{sv},
	})
	if err != nil {
		t.Fatalf("reinvest failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	// zap 0.3% + tier reinvest 0.2% = 0.5% of 1_000_000
	if candidates[0].Token0FeeAmount.Cmp(big.NewInt(5_000)) != 0 {
		t.Errorf("expected stacked fee 5000, got %s", candidates[0].Token0FeeAmount)
	}
}
