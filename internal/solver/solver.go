// Package solver defines the pluggable swap-quote providers. One
// implementation quotes through the position's own pool; the others call
// external aggregator APIs and translate their calldata into the
// automation contract's swap payload encoding.
package solver

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gatti/clamm-zap/internal/contract"
)

var (
	// ErrNoRoute means the provider found no route for this amount.
	// Expected and benign: logged at warn, candidate dropped.
	ErrNoRoute = errors.New("solver: no route found")

	// ErrZeroAmountIn means a provider was asked to quote a no-op swap.
	// The orchestrator short-circuits zero amounts before providers are
	// invoked, so seeing this indicates a caller bug.
	ErrZeroAmountIn = errors.New("solver: amount must be greater than zero")
)

// ID identifies a solver variant
type ID string

const (
	// IDSamePool swaps inside the position's own pool
	IDSamePool ID = "same-pool"
	// IDOneInch routes through the 1inch aggregation router
	IDOneInch ID = "1inch"
	// IDZeroX routes through the 0x swap API
	IDZeroX ID = "0x"
	// IDOKX routes through the OKX DEX aggregator
	IDOKX ID = "okx"
)

// SwapRequest describes one swap to quote. Constructed fresh per call and
// never shared across concurrent solver invocations.
type SwapRequest struct {
	ChainID          uint64
	TokenIn          common.Address
	TokenOut         common.Address
	FeeOrTickSpacing int32
	TickLower        int32
	TickUpper        int32
	AmountIn         *big.Int
	Slippage         float64 // fraction, e.g. 0.005 = 0.5%
	ZeroForOne       bool
	Taker            common.Address // automation contract, the swap executor
}

// SolvedSwap is one provider's quote: the payload to execute it and the
// provider-reported output. The reported output is advisory only; the
// simulated result is authoritative.
type SolvedSwap struct {
	Solver    ID
	AmountOut *big.Int
	Payload   contract.SwapPayload
	Route     string           // human-readable route summary, observability only
	Path      []common.Address // token hop path where the provider reports one
}

// Solver is the uniform quote contract all variants implement
type Solver interface {
	ID() ID
	Quote(ctx context.Context, req SwapRequest) (*SolvedSwap, error)
}

// IsBenign reports whether a quote failure is an expected steady-state
// outcome (no route for this size, zero amount) rather than a provider
// or transport problem. Drives log severity in the orchestrator.
func IsBenign(err error) bool {
	return errors.Is(err, ErrNoRoute) || errors.Is(err, ErrZeroAmountIn)
}
