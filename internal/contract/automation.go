// Package contract binds the on-chain automation/pool contract that owns
// all liquidity math. The engine only ever calls read paths on it: the
// optimal swap amount computation and the zap and swap simulations.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gatti/clamm-zap/internal/pool"
)

// SwapPayload is the encoded external swap handed to the automation
// contract: the router to call, the calldata, and the token-approval
// target. Empty payload means "swap in-pool".
type SwapPayload struct {
	Target        common.Address
	ApproveTarget common.Address
	Data          []byte
}

// IsEmpty reports whether this payload encodes a same-pool swap
func (p SwapPayload) IsEmpty() bool {
	return len(p.Data) == 0
}

// SimulateParams carries one candidate through the simulate entry point
type SimulateParams struct {
	From            common.Address
	PoolKey         pool.Key
	TickLower       int32
	TickUpper       int32
	Amount0Desired  *big.Int
	Amount1Desired  *big.Int
	Token0FeeAmount *big.Int
	Token1FeeAmount *big.Int
	Swap            SwapPayload
}

// SimulateResult is the simulated on-chain outcome of applying a payload
type SimulateResult struct {
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// SwapSimParams carries a standalone router swap through the simulate
// entry point, with no deposit attached
type SwapSimParams struct {
	From     common.Address
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	Swap     SwapPayload
}

// Automation is the read/simulate surface of the pool automation contract
type Automation interface {
	// GetOptimalSwapAmount computes how much of which token must be
	// swapped so the remaining amounts deposit into [tickLower, tickUpper]
	// without leftover
	GetOptimalSwapAmount(ctx context.Context, key pool.Key, tickLower, tickUpper int32, amount0Desired, amount1Desired *big.Int) (amountIn *big.Int, zeroForOne bool, err error)

	// Simulate applies the swap payload and deposit via eth_call and
	// returns the minted liquidity and consumed amounts
	Simulate(ctx context.Context, params SimulateParams) (*SimulateResult, error)

	// SimulateSwap executes a standalone router swap via eth_call and
	// returns the amount actually received, which overrides whatever the
	// router's quote claimed
	SimulateSwap(ctx context.Context, params SwapSimParams) (*big.Int, error)
}

const automationABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "token0", "type": "address"},
			{"internalType": "address", "name": "token1", "type": "address"},
			{"internalType": "int24", "name": "feeOrTickSpacing", "type": "int24"},
			{"internalType": "int24", "name": "tickLower", "type": "int24"},
			{"internalType": "int24", "name": "tickUpper", "type": "int24"},
			{"internalType": "uint256", "name": "amount0Desired", "type": "uint256"},
			{"internalType": "uint256", "name": "amount1Desired", "type": "uint256"}
		],
		"name": "getOptimalSwap",
		"outputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "bool", "name": "zeroForOne", "type": "bool"},
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "token0", "type": "address"},
			{"internalType": "address", "name": "token1", "type": "address"},
			{"internalType": "int24", "name": "feeOrTickSpacing", "type": "int24"},
			{"internalType": "int24", "name": "tickLower", "type": "int24"},
			{"internalType": "int24", "name": "tickUpper", "type": "int24"},
			{"internalType": "uint256", "name": "amount0Desired", "type": "uint256"},
			{"internalType": "uint256", "name": "amount1Desired", "type": "uint256"},
			{"internalType": "uint256", "name": "token0FeeAmount", "type": "uint256"},
			{"internalType": "uint256", "name": "token1FeeAmount", "type": "uint256"},
			{"internalType": "address", "name": "swapTarget", "type": "address"},
			{"internalType": "address", "name": "approveTarget", "type": "address"},
			{"internalType": "bytes", "name": "swapData", "type": "bytes"}
		],
		"name": "simulateZap",
		"outputs": [
			{"internalType": "uint128", "name": "liquidity", "type": "uint128"},
			{"internalType": "uint256", "name": "amount0", "type": "uint256"},
			{"internalType": "uint256", "name": "amount1", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "tokenIn", "type": "address"},
			{"internalType": "address", "name": "tokenOut", "type": "address"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "address", "name": "swapTarget", "type": "address"},
			{"internalType": "address", "name": "approveTarget", "type": "address"},
			{"internalType": "bytes", "name": "swapData", "type": "bytes"}
		],
		"name": "simulateSwap",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// BoundAutomation is the ethclient-backed Automation implementation
type BoundAutomation struct {
	contract    *bind.BoundContract
	callTimeout time.Duration
}

// NewBoundAutomation binds the automation contract at the given address
func NewBoundAutomation(address common.Address, caller bind.ContractCaller) (*BoundAutomation, error) {
	parsed, err := abi.JSON(strings.NewReader(automationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse automation ABI: %w", err)
	}

	return &BoundAutomation{
		contract:    bind.NewBoundContract(address, parsed, caller, nil, nil),
		callTimeout: 15 * time.Second,
	}, nil
}

// GetOptimalSwapAmount calls getOptimalSwap on the automation contract
func (a *BoundAutomation) GetOptimalSwapAmount(ctx context.Context, key pool.Key, tickLower, tickUpper int32, amount0Desired, amount1Desired *big.Int) (*big.Int, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	var result []interface{}
	opts := &bind.CallOpts{Context: callCtx}

	err := a.contract.Call(opts, &result, "getOptimalSwap",
		key.Token0.Address,
		key.Token1.Address,
		big.NewInt(int64(key.FeeOrTickSpacing)),
		big.NewInt(int64(tickLower)),
		big.NewInt(int64(tickUpper)),
		amount0Desired,
		amount1Desired,
	)
	if err != nil {
		return nil, false, fmt.Errorf("getOptimalSwap call failed: %w", err)
	}
	if len(result) < 3 {
		return nil, false, fmt.Errorf("getOptimalSwap returned %d values, want 4", len(result))
	}

	amountIn, ok := result[0].(*big.Int)
	if !ok {
		return nil, false, fmt.Errorf("unexpected amountIn type %T", result[0])
	}
	zeroForOne, ok := result[2].(bool)
	if !ok {
		return nil, false, fmt.Errorf("unexpected zeroForOne type %T", result[2])
	}

	return amountIn, zeroForOne, nil
}

// Simulate calls simulateZap via eth_call with the caller as sender
func (a *BoundAutomation) Simulate(ctx context.Context, params SimulateParams) (*SimulateResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	var result []interface{}
	opts := &bind.CallOpts{Context: callCtx, From: params.From}

	err := a.contract.Call(opts, &result, "simulateZap",
		params.PoolKey.Token0.Address,
		params.PoolKey.Token1.Address,
		big.NewInt(int64(params.PoolKey.FeeOrTickSpacing)),
		big.NewInt(int64(params.TickLower)),
		big.NewInt(int64(params.TickUpper)),
		orZero(params.Amount0Desired),
		orZero(params.Amount1Desired),
		orZero(params.Token0FeeAmount),
		orZero(params.Token1FeeAmount),
		params.Swap.Target,
		params.Swap.ApproveTarget,
		params.Swap.Data,
	)
	if err != nil {
		return nil, fmt.Errorf("simulateZap call failed: %w", err)
	}
	if len(result) < 3 {
		return nil, fmt.Errorf("simulateZap returned %d values, want 3", len(result))
	}

	liquidity, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected liquidity type %T", result[0])
	}
	amount0, ok := result[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amount0 type %T", result[1])
	}
	amount1, ok := result[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amount1 type %T", result[2])
	}

	return &SimulateResult{Liquidity: liquidity, Amount0: amount0, Amount1: amount1}, nil
}

// SimulateSwap calls simulateSwap via eth_call with the caller as sender
func (a *BoundAutomation) SimulateSwap(ctx context.Context, params SwapSimParams) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	var result []interface{}
	opts := &bind.CallOpts{Context: callCtx, From: params.From}

	err := a.contract.Call(opts, &result, "simulateSwap",
		params.TokenIn,
		params.TokenOut,
		orZero(params.AmountIn),
		params.Swap.Target,
		params.Swap.ApproveTarget,
		params.Swap.Data,
	)
	if err != nil {
		return nil, fmt.Errorf("simulateSwap call failed: %w", err)
	}
	if len(result) < 1 {
		return nil, fmt.Errorf("simulateSwap returned no values")
	}

	amountOut, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amountOut type %T", result[0])
	}

	return amountOut, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
