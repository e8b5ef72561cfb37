package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gatti/clamm-zap/internal/platform/observability"
)

// GasBackend is the subset of ethclient used for gas estimation
type GasBackend interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// L1DataFeeOracle estimates the rollup L1 data fee surcharge for a
// transaction payload. Nil on chains without one.
type L1DataFeeOracle interface {
	EstimateL1DataFee(ctx context.Context, txData []byte) (*big.Int, error)
}

// SwapTx describes the transaction whose execution cost is being estimated
type SwapTx struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Estimator wraps gas-price lookup and gas-unit estimation, adding the
// optional L1 data-fee surcharge and a chain-dependent safety multiplier.
//
// Estimation is advisory: every failure is absorbed and reported as a zero
// cost so a candidate is never dropped for lack of a gas number.
type Estimator struct {
	backend    GasBackend
	l1Oracle   L1DataFeeOracle
	multiplier float64
	chainName  string
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// EstimatorConfig holds gas estimator configuration
type EstimatorConfig struct {
	Backend          GasBackend
	L1Oracle         L1DataFeeOracle // nil for non-rollup chains
	SafetyMultiplier float64         // default 1.25
	ChainName        string
	Logger           *observability.Logger
	Metrics          *observability.Metrics
}

// NewEstimator creates a gas estimator
func NewEstimator(cfg EstimatorConfig) (*Estimator, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("gas backend is required")
	}
	if cfg.SafetyMultiplier < 1 {
		cfg.SafetyMultiplier = 1.25
	}

	return &Estimator{
		backend:    cfg.Backend,
		l1Oracle:   cfg.L1Oracle,
		multiplier: cfg.SafetyMultiplier,
		chainName:  cfg.ChainName,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// GasPrice returns the suggested gas price
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if e.metrics != nil {
		gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(price), big.NewFloat(1e9)).Float64()
		e.metrics.RecordGasPrice(ctx, gwei)
	}

	return price, nil
}

// EstimateCost returns the total estimated execution cost in wei:
// (gasUnits*gasPrice + l1DataFee) * safetyMultiplier. Any failure logs
// and yields zero; the caller treats zero as "no estimate available".
func (e *Estimator) EstimateCost(ctx context.Context, tx SwapTx) *big.Int {
	gasPrice, err := e.GasPrice(ctx)
	if err != nil {
		e.absorb(ctx, "gas price lookup failed", err)
		return big.NewInt(0)
	}

	msg := ethereum.CallMsg{
		From:  tx.From,
		To:    &tx.To,
		Value: tx.Value,
		Data:  tx.Data,
	}

	units, err := e.backend.EstimateGas(ctx, msg)
	if err != nil {
		e.absorb(ctx, "gas unit estimation failed", err)
		return big.NewInt(0)
	}

	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(units))

	if e.l1Oracle != nil {
		l1Fee, err := e.l1Oracle.EstimateL1DataFee(ctx, tx.Data)
		if err != nil {
			// The L2 execution estimate is still useful on its own
			e.absorb(ctx, "L1 data fee estimation failed", err)
		} else {
			cost.Add(cost, l1Fee)
		}
	}

	scaled, _ := new(big.Float).Mul(new(big.Float).SetInt(cost), big.NewFloat(e.multiplier)).Int(nil)
	return scaled
}

func (e *Estimator) absorb(ctx context.Context, msg string, err error) {
	if e.logger != nil {
		e.logger.LogWarn(ctx, msg, "chain", e.chainName, "error", err)
	}
	if e.metrics != nil {
		e.metrics.RecordGasEstimateFailure(ctx, e.chainName)
	}
}

// Optimism-style GasPriceOracle predeploy, present on OP stack chains
const gasPriceOracleABI = `[
	{
		"inputs": [
			{"internalType": "bytes", "name": "_data", "type": "bytes"}
		],
		"name": "getL1Fee",
		"outputs": [
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// GasPriceOracle estimates L1 data fees via the OP stack predeploy
type GasPriceOracle struct {
	contract *bind.BoundContract
}

// NewGasPriceOracle binds the oracle at the given address
func NewGasPriceOracle(address common.Address, caller bind.ContractCaller) (*GasPriceOracle, error) {
	parsed, err := abi.JSON(strings.NewReader(gasPriceOracleABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse gas price oracle ABI: %w", err)
	}

	return &GasPriceOracle{
		contract: bind.NewBoundContract(address, parsed, caller, nil, nil),
	}, nil
}

// EstimateL1DataFee returns the L1 fee for posting txData
func (o *GasPriceOracle) EstimateL1DataFee(ctx context.Context, txData []byte) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var result []interface{}
	opts := &bind.CallOpts{Context: callCtx}

	if err := o.contract.Call(opts, &result, "getL1Fee", txData); err != nil {
		return nil, fmt.Errorf("getL1Fee call failed: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("getL1Fee returned no data")
	}

	fee, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getL1Fee return type %T", result[0])
	}

	return fee, nil
}
