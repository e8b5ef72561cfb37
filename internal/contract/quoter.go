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

// Quoter quotes a single-hop swap inside the position's own pool.
// Used by the same-pool solver to report an expected output for an
// in-pool swap (which needs no external calldata).
type Quoter interface {
	QuoteExactInputSingle(ctx context.Context, key pool.Key, zeroForOne bool, amountIn *big.Int) (amountOut *big.Int, gasEstimate *big.Int, err error)
}

// QuoterV2 quoteExactInputSingle, the canonical single-hop quote entry
const quoterV2ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// BoundQuoter is the ethclient-backed Quoter implementation
type BoundQuoter struct {
	contract    *bind.BoundContract
	callTimeout time.Duration
}

// NewBoundQuoter binds QuoterV2 at the given address
func NewBoundQuoter(address common.Address, caller bind.ContractCaller) (*BoundQuoter, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}

	return &BoundQuoter{
		contract:    bind.NewBoundContract(address, parsed, caller, nil, nil),
		callTimeout: 10 * time.Second,
	}, nil
}

// QuoteExactInputSingle quotes an exact-input single-hop swap
func (q *BoundQuoter) QuoteExactInputSingle(ctx context.Context, key pool.Key, zeroForOne bool, amountIn *big.Int) (*big.Int, *big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, q.callTimeout)
	defer cancel()

	tokenIn := key.Token0.Address
	tokenOut := key.Token1.Address
	if !zeroForOne {
		tokenIn, tokenOut = tokenOut, tokenIn
	}

	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(key.FeeOrTickSpacing)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	var result []interface{}
	opts := &bind.CallOpts{Context: callCtx}

	if err := q.contract.Call(opts, &result, "quoteExactInputSingle", params); err != nil {
		return nil, nil, fmt.Errorf("quoteExactInputSingle failed: %w", err)
	}
	if len(result) < 4 {
		return nil, nil, fmt.Errorf("quoteExactInputSingle returned %d values, want 4", len(result))
	}

	amountOut, ok := result[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected amountOut type %T", result[0])
	}
	gasEstimate, ok := result[3].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected gasEstimate type %T", result[3])
	}

	return amountOut, gasEstimate, nil
}
