package solver

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gatti/clamm-zap/internal/pool"
)

// fakeQuoter is a scripted Quoter implementation
type fakeQuoter struct {
	amountOut *big.Int
	err       error
	calls     atomic.Int64
	lastKey   pool.Key
}

func (f *fakeQuoter) QuoteExactInputSingle(_ context.Context, key pool.Key, _ bool, _ *big.Int) (*big.Int, *big.Int, error) {
	f.calls.Add(1)
	f.lastKey = key
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.amountOut, big.NewInt(100_000), nil
}

func samePoolRequest(amountIn int64) SwapRequest {
	return SwapRequest{
		ChainID:          1,
		TokenIn:          common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		TokenOut:         common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		FeeOrTickSpacing: 3000,
		AmountIn:         big.NewInt(amountIn),
		Slippage:         0.005,
		ZeroForOne:       true,
	}
}

func TestSamePoolZeroAmountSkipsChainCall(t *testing.T) {
	quoter := &fakeQuoter{amountOut: big.NewInt(1)}
	sv := NewSamePoolSolver(SamePoolSolverConfig{Quoter: quoter})

	quote, err := sv.Quote(context.Background(), samePoolRequest(0))
	if err != nil {
		t.Fatalf("zero amount must not error: %v", err)
	}

	if quoter.calls.Load() != 0 {
		t.Errorf("expected no quoter call for a zero amount, got %d", quoter.calls.Load())
	}
	if quote.AmountOut.Sign() != 0 {
		t.Errorf("expected zero output, got %s", quote.AmountOut)
	}
	if !quote.Payload.IsEmpty() {
		t.Error("expected empty swap payload")
	}
}

func TestSamePoolRevertYieldsZeroQuote(t *testing.T) {
	// A pool rejecting the trade (price limit) is an expected outcome,
	// not a provider failure
	quoter := &fakeQuoter{err: errors.New("execution reverted: SPL")}
	sv := NewSamePoolSolver(SamePoolSolverConfig{Quoter: quoter})

	quote, err := sv.Quote(context.Background(), samePoolRequest(1_000_000))
	if err != nil {
		t.Fatalf("pool revert must not propagate: %v", err)
	}
	if quote.AmountOut.Sign() != 0 {
		t.Errorf("expected zero output on revert, got %s", quote.AmountOut)
	}
	if !quote.Payload.IsEmpty() {
		t.Error("expected empty payload on revert")
	}
}

func TestSamePoolTransportErrorPropagates(t *testing.T) {
	quoter := &fakeQuoter{err: errors.New("connection refused")}
	sv := NewSamePoolSolver(SamePoolSolverConfig{Quoter: quoter})

	if _, err := sv.Quote(context.Background(), samePoolRequest(1_000_000)); err == nil {
		t.Fatal("transport errors must propagate")
	}
}

func TestSamePoolSuccessfulQuote(t *testing.T) {
	quoter := &fakeQuoter{amountOut: big.NewInt(997_000)}
	sv := NewSamePoolSolver(SamePoolSolverConfig{Quoter: quoter})

	quote, err := sv.Quote(context.Background(), samePoolRequest(1_000_000))
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}

	if quote.Solver != IDSamePool {
		t.Errorf("expected solver id %s, got %s", IDSamePool, quote.Solver)
	}
	if quote.AmountOut.Cmp(big.NewInt(997_000)) != 0 {
		t.Errorf("expected amountOut 997000, got %s", quote.AmountOut)
	}
	if !quote.Payload.IsEmpty() {
		t.Error("in-pool swaps carry no calldata")
	}
}

func TestSamePoolOrdersKeyByDirection(t *testing.T) {
	quoter := &fakeQuoter{amountOut: big.NewInt(1)}
	sv := NewSamePoolSolver(SamePoolSolverConfig{Quoter: quoter})

	req := samePoolRequest(1_000)
	req.ZeroForOne = false

	if _, err := sv.Quote(context.Background(), req); err != nil {
		t.Fatalf("quote failed: %v", err)
	}

	// With zeroForOne=false, tokenIn is the pool's token1
	if quoter.lastKey.Token0.Address != req.TokenOut {
		t.Errorf("expected pool token0 %s, got %s", req.TokenOut.Hex(), quoter.lastKey.Token0.Address.Hex())
	}
	if quoter.lastKey.Token1.Address != req.TokenIn {
		t.Errorf("expected pool token1 %s, got %s", req.TokenIn.Hex(), quoter.lastKey.Token1.Address.Hex())
	}
}
