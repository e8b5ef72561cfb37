package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// fakeGasBackend is a scripted GasBackend
type fakeGasBackend struct {
	gasPrice    *big.Int
	gasPriceErr error
	gasUnits    uint64
	gasErr      error
}

func (f *fakeGasBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if f.gasPriceErr != nil {
		return nil, f.gasPriceErr
	}
	return f.gasPrice, nil
}

func (f *fakeGasBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	if f.gasErr != nil {
		return 0, f.gasErr
	}
	return f.gasUnits, nil
}

// fakeL1Oracle is a scripted L1DataFeeOracle
type fakeL1Oracle struct {
	fee *big.Int
	err error
}

func (f *fakeL1Oracle) EstimateL1DataFee(_ context.Context, _ []byte) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fee, nil
}

func testTx() SwapTx {
	return SwapTx{
		From: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		To:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Data: []byte{0xde, 0xad},
	}
}

func TestEstimateCostAppliesMultiplier(t *testing.T) {
	backend := &fakeGasBackend{gasPrice: big.NewInt(1_000_000_000), gasUnits: 100_000}
	estimator, err := NewEstimator(EstimatorConfig{Backend: backend, SafetyMultiplier: 1.25})
	if err != nil {
		t.Fatalf("failed to create estimator: %v", err)
	}

	cost := estimator.EstimateCost(context.Background(), testTx())

	// 1 gwei * 100000 units * 1.25
	want := big.NewInt(125_000_000_000_000)
	if cost.Cmp(want) != 0 {
		t.Errorf("expected cost %s, got %s", want, cost)
	}
}

func TestEstimateCostIncludesL1Fee(t *testing.T) {
	backend := &fakeGasBackend{gasPrice: big.NewInt(1_000_000_000), gasUnits: 100_000}
	oracle := &fakeL1Oracle{fee: big.NewInt(100_000_000_000_000)}
	estimator, err := NewEstimator(EstimatorConfig{Backend: backend, L1Oracle: oracle, SafetyMultiplier: 1.25})
	if err != nil {
		t.Fatalf("failed to create estimator: %v", err)
	}

	cost := estimator.EstimateCost(context.Background(), testTx())

	// (100000000000000 + 100000000000000) * 1.25
	want := big.NewInt(250_000_000_000_000)
	if cost.Cmp(want) != 0 {
		t.Errorf("expected cost %s, got %s", want, cost)
	}
}

func TestEstimateCostAbsorbsGasPriceFailure(t *testing.T) {
	backend := &fakeGasBackend{gasPriceErr: errors.New("rpc unavailable")}
	estimator, err := NewEstimator(EstimatorConfig{Backend: backend})
	if err != nil {
		t.Fatalf("failed to create estimator: %v", err)
	}

	cost := estimator.EstimateCost(context.Background(), testTx())
	if cost.Sign() != 0 {
		t.Errorf("gas price failure must zero the estimate, got %s", cost)
	}
}

func TestEstimateCostAbsorbsEstimateFailure(t *testing.T) {
	backend := &fakeGasBackend{gasPrice: big.NewInt(1), gasErr: errors.New("execution reverted")}
	estimator, err := NewEstimator(EstimatorConfig{Backend: backend})
	if err != nil {
		t.Fatalf("failed to create estimator: %v", err)
	}

	cost := estimator.EstimateCost(context.Background(), testTx())
	if cost.Sign() != 0 {
		t.Errorf("gas estimation failure must zero the estimate, got %s", cost)
	}
}

func TestEstimateCostAbsorbsL1OracleFailure(t *testing.T) {
	// The L2 execution estimate survives a dead L1 oracle
	backend := &fakeGasBackend{gasPrice: big.NewInt(1_000_000_000), gasUnits: 100_000}
	oracle := &fakeL1Oracle{err: errors.New("oracle unavailable")}
	estimator, err := NewEstimator(EstimatorConfig{Backend: backend, L1Oracle: oracle, SafetyMultiplier: 1.25})
	if err != nil {
		t.Fatalf("failed to create estimator: %v", err)
	}

	cost := estimator.EstimateCost(context.Background(), testTx())

	want := big.NewInt(125_000_000_000_000)
	if cost.Cmp(want) != 0 {
		t.Errorf("expected L2-only cost %s, got %s", want, cost)
	}
}

func TestNewEstimatorRequiresBackend(t *testing.T) {
	if _, err := NewEstimator(EstimatorConfig{}); err == nil {
		t.Fatal("expected error without a gas backend")
	}
}
