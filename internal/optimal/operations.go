package optimal

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gatti/clamm-zap/internal/chain"
	"github.com/gatti/clamm-zap/internal/contract"
	"github.com/gatti/clamm-zap/internal/money"
	"github.com/gatti/clamm-zap/internal/platform/observability"
	"github.com/gatti/clamm-zap/internal/pool"
	"github.com/gatti/clamm-zap/internal/price"
	"github.com/gatti/clamm-zap/internal/solver"
)

// rebalanceFeeRounds fixes the fee refinement at exactly two passes:
// round one sizes the fee from the pre-fee position value, round two
// folds in the gas reimbursement from the round-one winner. Existing
// behavior, not iterated to convergence.
const rebalanceFeeRounds = 2

// Engine exposes the five position operations over the shared pipeline
type Engine struct {
	builder *Builder
	fees    FeeRatios
	prices  price.Source
	chainID uint64
	// native is the wrapped native token address used to price gas
	// reimbursements in USD
	native  common.Address
	logger  *observability.Logger
	metrics *observability.Metrics
}

// EngineConfig holds engine dependencies
type EngineConfig struct {
	Builder     *Builder
	Fees        FeeRatios
	Prices      price.Source
	ChainID     uint64
	NativeToken common.Address
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// NewEngine creates the operation engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("builder is required")
	}

	return &Engine{
		builder: cfg.Builder,
		fees:    cfg.Fees,
		prices:  cfg.Prices,
		chainID: cfg.ChainID,
		native:  cfg.NativeToken,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// MintParams describes a fresh position mint
type MintParams struct {
	Snapshot       *pool.Snapshot
	TickLower      int32
	TickUpper      int32
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Slippage       float64
	Solvers        []solver.Solver
	From           common.Address
}

// Mint solves the optimal swap for depositing both amounts into a new
// position in [TickLower, TickUpper]
func (e *Engine) Mint(ctx context.Context, p MintParams) ([]Candidate, error) {
	if err := validateRange(p.TickLower, p.TickUpper); err != nil {
		return nil, err
	}

	return e.builder.solve(ctx, solveInput{
		Operation:      "mint",
		ChainID:        e.chainID,
		Snapshot:       p.Snapshot,
		TickLower:      p.TickLower,
		TickUpper:      p.TickUpper,
		Amount0Desired: p.Amount0Desired,
		Amount1Desired: p.Amount1Desired,
		Slippage:       p.Slippage,
		Solvers:        p.Solvers,
		From:           p.From,
		FeeRatio:       e.fees.ZapFee,
	})
}

// IncreaseParams describes adding liquidity to an existing position
type IncreaseParams struct {
	Position       *pool.Position
	Snapshot       *pool.Snapshot
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Slippage       float64
	Solvers        []solver.Solver
	From           common.Address
}

// Increase solves the optimal swap for topping up an existing position.
// The tick range comes from the position itself.
func (e *Engine) Increase(ctx context.Context, p IncreaseParams) ([]Candidate, error) {
	if p.Position == nil {
		return nil, fmt.Errorf("position is required")
	}

	return e.builder.solve(ctx, solveInput{
		Operation:      "increase",
		ChainID:        e.chainID,
		Snapshot:       p.Snapshot,
		TickLower:      p.Position.TickLower,
		TickUpper:      p.Position.TickUpper,
		Amount0Desired: p.Amount0Desired,
		Amount1Desired: p.Amount1Desired,
		Slippage:       p.Slippage,
		Solvers:        p.Solvers,
		From:           p.From,
		FeeRatio:       e.fees.ZapFee,
	})
}

// ReinvestParams describes compounding a position's uncollected fees
type ReinvestParams struct {
	Position *pool.Position
	Snapshot *pool.Snapshot
	Slippage float64
	Solvers  []solver.Solver
	From     common.Address
}

// Reinvest solves the optimal swap for compounding uncollected fees back
// into the position. The reinvest fee, keyed by fee tier or tick spacing,
// stacks on top of the zap fee.
func (e *Engine) Reinvest(ctx context.Context, p ReinvestParams) ([]Candidate, error) {
	if p.Position == nil {
		return nil, fmt.Errorf("position is required")
	}

	feeRatio := e.fees.ZapFee + e.fees.ReinvestFeeFor(p.Snapshot.Key.FeeOrTickSpacing)

	return e.builder.solve(ctx, solveInput{
		Operation:      "reinvest",
		ChainID:        e.chainID,
		Snapshot:       p.Snapshot,
		TickLower:      p.Position.TickLower,
		TickUpper:      p.Position.TickUpper,
		Amount0Desired: p.Position.FeesOwed0,
		Amount1Desired: p.Position.FeesOwed1,
		Slippage:       p.Slippage,
		Solvers:        p.Solvers,
		From:           p.From,
		FeeRatio:       feeRatio,
	})
}

// RebalanceParams describes moving a position to a new tick range
type RebalanceParams struct {
	Position     *pool.Position
	Snapshot     *pool.Snapshot
	NewTickLower int32
	NewTickUpper int32
	// Amount0 / Amount1 are the principal plus collected fees freed by
	// the withdrawal, before any protocol fee
	Amount0  *big.Int
	Amount1  *big.Int
	Slippage float64
	Solvers  []solver.Solver
	From     common.Address
	// ReimburseGas folds the estimated execution cost into the flat fee
	// via the second refinement round
	ReimburseGas bool
}

// RebalanceResult carries the candidates plus the fee accounting that
// produced them
type RebalanceResult struct {
	Candidates []Candidate
	FeeBips    *big.Int
	FeeUSD     money.USD
}

// Rebalance solves the optimal swap for redepositing a withdrawn position
// into a new range. The flat USD fee converts to feeBips against the
// pre-fee position value; when gas reimbursement is on, a second round
// re-derives the fee from the first round's winning gas estimate.
func (e *Engine) Rebalance(ctx context.Context, p RebalanceParams) (*RebalanceResult, error) {
	if p.Position == nil {
		return nil, fmt.Errorf("position is required")
	}
	if err := validateRange(p.NewTickLower, p.NewTickUpper); err != nil {
		return nil, err
	}

	positionUSD, err := e.positionUSD(ctx, p.Snapshot.Key, p.Amount0, p.Amount1)
	if err != nil {
		return nil, fmt.Errorf("failed to value position: %w", err)
	}

	feeUSD := money.NewUSD(e.fees.RebalanceFlatUSD)

	var result *RebalanceResult
	for round := 1; round <= rebalanceFeeRounds; round++ {
		feeBips := FeeBipsFromUSD(feeUSD.Float64(), positionUSD)
		if positionUSD <= 0 && e.logger != nil {
			e.logger.LogError(ctx, "position valued at zero, waiving rebalance fee",
				fmt.Errorf("position USD value is %f", positionUSD),
				"pool", p.Snapshot.Key.String(),
			)
		}

		candidates, err := e.rebalanceRound(ctx, p, feeBips, feeUSD)
		if err != nil {
			return nil, err
		}

		result = &RebalanceResult{Candidates: candidates, FeeBips: feeBips, FeeUSD: feeUSD}

		if !p.ReimburseGas || round == rebalanceFeeRounds {
			break
		}

		best := Best(candidates)
		if best == nil || best.GasCost == nil || best.GasCost.Sign() == 0 {
			break
		}
		feeUSD = money.NewUSD(e.fees.RebalanceFlatUSD).Add(money.NewUSD(e.gasCostUSD(ctx, best.GasCost)))
	}

	return result, nil
}

// rebalanceRound runs one pass of the pipeline with the given feeBips
// carved off both tokens before planning
func (e *Engine) rebalanceRound(ctx context.Context, p RebalanceParams, feeBips *big.Int, feeUSD money.USD) ([]Candidate, error) {
	ratio := feeBipsToRatio(feeBips)
	fee0 := mulRatioFloor(p.Amount0, ratio)
	fee1 := mulRatioFloor(p.Amount1, ratio)

	amount0 := new(big.Int).Sub(orZero(p.Amount0), fee0)
	amount1 := new(big.Int).Sub(orZero(p.Amount1), fee1)

	return e.builder.solve(ctx, solveInput{
		Operation:      "rebalance",
		ChainID:        e.chainID,
		Snapshot:       p.Snapshot,
		TickLower:      p.NewTickLower,
		TickUpper:      p.NewTickUpper,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Slippage:       p.Slippage,
		Solvers:        p.Solvers,
		From:           p.From,
		FeeRatio:       e.fees.RebalanceSwapFee,
		Extra0Fee:      fee0,
		Extra1Fee:      fee1,
		FeeBips:        feeBips,
		FeeUSD:         feeUSD,
	})
}

// DecreaseParams describes withdrawing liquidity and converting the
// proceeds into a single token
type DecreaseParams struct {
	Position *pool.Position
	Snapshot *pool.Snapshot
	// Amount0 / Amount1 are the token amounts freed by the withdrawal
	Amount0 *big.Int
	Amount1 *big.Int
	// TokenOut is the single token the caller wants back
	TokenOut common.Address
	Slippage float64
	Solvers  []solver.Solver
	From     common.Address
}

// DecreaseLeg is one withdrawn token's conversion toward TokenOut
type DecreaseLeg struct {
	TokenIn    common.Address
	AmountIn   *big.Int
	Candidates []Candidate
}

// DecreaseResult carries the per-leg candidates. Legs are quoted and
// decorated independently; totals are summed only for display.
type DecreaseResult struct {
	Legs []DecreaseLeg
	// AmountOutTotal sums the best candidate of each leg plus any
	// TokenOut amount that needed no conversion
	AmountOutTotal *big.Int
}

// Decrease converts the withdrawn amounts into TokenOut. Each non-TokenOut
// leg fans out to the solvers independently; a leg with no route simply
// contributes nothing, it never fails the sibling leg.
func (e *Engine) Decrease(ctx context.Context, p DecreaseParams) (*DecreaseResult, error) {
	if p.Position == nil {
		return nil, fmt.Errorf("position is required")
	}

	key := p.Snapshot.Key
	result := &DecreaseResult{AmountOutTotal: big.NewInt(0)}

	type legInput struct {
		tokenIn common.Address
		amount  *big.Int
	}
	var legs []legInput
	for _, side := range []legInput{
		{key.Token0.Address, orZero(p.Amount0)},
		{key.Token1.Address, orZero(p.Amount1)},
	} {
		if side.tokenIn == p.TokenOut {
			// Already the requested token, no conversion needed
			result.AmountOutTotal.Add(result.AmountOutTotal, side.amount)
			continue
		}
		if side.amount.Sign() == 0 {
			continue
		}
		legs = append(legs, side)
	}

	for _, leg := range legs {
		candidates := e.swapLeg(ctx, p, leg.tokenIn, leg.amount)
		result.Legs = append(result.Legs, DecreaseLeg{
			TokenIn:    leg.tokenIn,
			AmountIn:   leg.amount,
			Candidates: candidates,
		})
		if best := bestByAmountOut(candidates); best != nil && best.AmountOut != nil {
			result.AmountOutTotal.Add(result.AmountOutTotal, best.AmountOut)
		}
	}

	return result, nil
}

// swapLeg fans the solvers out over one direct token conversion. There is
// no deposit attached, so candidates carry zero liquidity and rank by
// output amount; router calldata is still executed via eth_call and the
// simulated output overrides the router's claim. The same-pool solver
// participates only when the leg is the pool's own pair.
func (e *Engine) swapLeg(ctx context.Context, p DecreaseParams, tokenIn common.Address, amountIn *big.Int) []Candidate {
	key := p.Snapshot.Key

	feeAmount := mulRatioFloor(amountIn, e.fees.ZapFee)
	swapAmountIn := new(big.Int).Sub(amountIn, feeAmount)
	if swapAmountIn.Sign() <= 0 {
		return []Candidate{}
	}

	zeroForOne := tokenIn == key.Token0.Address
	inPoolPair := p.TokenOut == key.Token0.Address || p.TokenOut == key.Token1.Address

	req := solver.SwapRequest{
		ChainID:          e.chainID,
		TokenIn:          tokenIn,
		TokenOut:         p.TokenOut,
		FeeOrTickSpacing: key.FeeOrTickSpacing,
		TickLower:        p.Position.TickLower,
		TickUpper:        p.Position.TickUpper,
		AmountIn:         swapAmountIn,
		Slippage:         p.Slippage,
		ZeroForOne:       zeroForOne,
		Taker:            e.builder.target,
	}

	selected := make([]solver.Solver, 0, len(p.Solvers))
	for _, sv := range p.Solvers {
		if sv.ID() == solver.IDSamePool && !inPoolPair {
			continue
		}
		selected = append(selected, sv)
	}

	results := make([]*Candidate, len(selected))
	var wg sync.WaitGroup
	for i, sv := range selected {
		wg.Add(1)
		go func(slot int, sv solver.Solver) {
			defer wg.Done()
			results[slot] = e.runLegSolver(ctx, sv, req, p, feeAmount, zeroForOne, inPoolPair)
		}(i, sv)
	}
	wg.Wait()

	candidates := make([]Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	return candidates
}

func (e *Engine) runLegSolver(ctx context.Context, sv solver.Solver, req solver.SwapRequest, p DecreaseParams, feeAmount *big.Int, zeroForOne, inPoolPair bool) *Candidate {
	start := time.Now()
	quote, err := sv.Quote(ctx, req)
	if err != nil {
		if solver.IsBenign(err) {
			if e.logger != nil {
				e.logger.LogWarn(ctx, "solver returned no route",
					"solver", string(sv.ID()), "operation", "decrease", "error", err)
			}
			e.recordQuote(ctx, sv.ID(), "no_route", time.Since(start))
		} else {
			if e.logger != nil {
				e.logger.LogError(ctx, "solver quote failed", err,
					"solver", string(sv.ID()), "operation", "decrease")
			}
			e.recordQuote(ctx, sv.ID(), "error", time.Since(start))
		}
		return nil
	}
	e.recordQuote(ctx, sv.ID(), "success", time.Since(start))

	if quote.AmountOut == nil || quote.AmountOut.Sign() == 0 {
		return nil
	}

	// The same-pool quote already comes from the quoter contract; router
	// calldata is only trusted after it executed in simulation
	amountOut := quote.AmountOut
	if !quote.Payload.IsEmpty() {
		simulated, err := e.builder.simulator.SimulateSwap(ctx, contract.SwapSimParams{
			From:     p.From,
			TokenIn:  req.TokenIn,
			TokenOut: req.TokenOut,
			AmountIn: req.AmountIn,
			Swap:     quote.Payload,
		})
		if err != nil {
			if e.logger != nil {
				e.logger.LogWarn(ctx, "candidate dropped after simulation failure",
					"solver", string(sv.ID()), "operation", "decrease", "error", err)
			}
			return nil
		}
		if simulated.Sign() == 0 {
			return nil
		}
		amountOut = simulated
	}

	fee0, fee1 := big.NewInt(0), big.NewInt(0)
	if zeroForOne {
		fee0 = feeAmount
	} else {
		fee1 = feeAmount
	}

	candidate := &Candidate{
		Solver:          sv.ID(),
		Liquidity:       big.NewInt(0),
		Amount0:         big.NewInt(0),
		Amount1:         big.NewInt(0),
		Swap:            quote.Payload,
		ZeroForOne:      zeroForOne,
		AmountIn:        req.AmountIn,
		AmountOut:       amountOut,
		MinAmountOut:    SlippageMinimum(amountOut, p.Slippage),
		Token0FeeAmount: fee0,
		Token1FeeAmount: fee1,
		FeeBips:         big.NewInt(0),
		Route:           quote.Route,
		Path:            quote.Path,
		GasCost:         big.NewInt(0),
	}

	if inPoolPair {
		candidate.PriceImpact = PriceImpact(p.Snapshot, req.AmountIn, amountOut, zeroForOne)
	}

	if e.builder.gas != nil && !quote.Payload.IsEmpty() {
		candidate.GasCost = e.builder.gas.EstimateCost(ctx, chain.SwapTx{
			From: p.From,
			To:   e.builder.target,
			Data: quote.Payload.Data,
		})
	}

	return candidate
}

// positionUSD values the two withdrawn amounts in USD using the price
// source. Missing prices degrade to a zero valuation, which downstream
// waives the fee rather than failing the flow.
func (e *Engine) positionUSD(ctx context.Context, key pool.Key, amount0, amount1 *big.Int) (float64, error) {
	if e.prices == nil {
		return 0, nil
	}

	total := 0.0
	for _, side := range []struct {
		token  pool.Token
		amount *big.Int
	}{
		{key.Token0, amount0},
		{key.Token1, amount1},
	} {
		if side.amount == nil || side.amount.Sign() == 0 {
			continue
		}
		priceUSD, err := e.prices.TokenPriceUSD(ctx, e.chainID, side.token.Address)
		if err != nil {
			if e.logger != nil {
				e.logger.LogWarn(ctx, "token price unavailable, valuing leg at zero",
					"token", side.token.Address.Hex(), "error", err)
			}
			continue
		}
		total += amountFloat(side.amount, side.token.Decimals) * priceUSD
	}

	return total, nil
}

// gasCostUSD converts a wei cost into USD via the native token price.
// Failures degrade to zero so reimbursement is skipped, not fatal.
func (e *Engine) gasCostUSD(ctx context.Context, costWei *big.Int) float64 {
	if e.prices == nil || costWei == nil || costWei.Sign() == 0 {
		return 0
	}

	nativeUSD, err := e.prices.TokenPriceUSD(ctx, e.chainID, e.native)
	if err != nil {
		if e.logger != nil {
			e.logger.LogWarn(ctx, "native token price unavailable, skipping gas reimbursement", "error", err)
		}
		return 0
	}

	return amountFloat(costWei, 18) * nativeUSD
}

func (e *Engine) recordQuote(ctx context.Context, id solver.ID, status string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordSolverQuote(ctx, string(id), status, d)
	}
}

// bestByAmountOut ranks swap-only candidates, where there is no minted
// liquidity to compare. Ties keep the earlier candidate.
func bestByAmountOut(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.AmountOut == nil {
			continue
		}
		if best == nil || c.AmountOut.Cmp(best.AmountOut) > 0 {
			best = c
		}
	}
	return best
}

func validateRange(tickLower, tickUpper int32) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("invalid tick range [%d, %d)", tickLower, tickUpper)
	}
	return nil
}

func amountFloat(amount *big.Int, decimals int) float64 {
	v, _ := rescale(amount, decimals).Float64()
	return v
}
