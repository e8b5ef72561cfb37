// Package optimal contains the optimal-swap pipeline: plan the balanced
// swap amount, fan out to the configured solvers, simulate every quote
// against the automation contract and return the decorated candidates in
// provider order for the caller to choose from.
package optimal

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gatti/clamm-zap/internal/chain"
	"github.com/gatti/clamm-zap/internal/contract"
	"github.com/gatti/clamm-zap/internal/money"
	"github.com/gatti/clamm-zap/internal/platform/observability"
	"github.com/gatti/clamm-zap/internal/pool"
	"github.com/gatti/clamm-zap/internal/solver"
)

// Candidate is one solver's simulated, fee-and-impact-decorated result.
// Liquidity and amounts come from simulation, never from the provider's
// self-reported estimate.
type Candidate struct {
	Solver solver.ID

	// Simulated on-chain outcome
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int

	// The swap to execute; empty payload means in-pool
	Swap       contract.SwapPayload
	ZeroForOne bool
	AmountIn   *big.Int
	AmountOut  *big.Int
	// MinAmountOut is AmountOut reduced by the slippage tolerance
	MinAmountOut *big.Int

	// Fee accounting, denominated in the swapped token
	Token0FeeAmount *big.Int
	Token1FeeAmount *big.Int
	FeeBips         *big.Int
	FeeUSD          money.USD

	// Observability decoration
	PriceImpact float64
	Route       string
	Path        []common.Address
	// GasCost is the estimated execution cost in wei; zero when the
	// estimate was unavailable
	GasCost *big.Int
}

// Builder runs the fan-out pipeline. One instance per process; all state
// is per-invocation.
type Builder struct {
	planner   *Planner
	simulator *Simulator
	gas       *chain.Estimator
	target    common.Address // automation contract, destination of the zap tx
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    observability.Tracer
}

// BuilderConfig holds builder dependencies
type BuilderConfig struct {
	Planner   *Planner
	Simulator *Simulator
	// Gas is optional; nil disables gas decoration
	Gas     *chain.Estimator
	Target  common.Address
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  observability.Tracer
}

// NewBuilder creates the pipeline orchestrator
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if cfg.Simulator == nil {
		return nil, fmt.Errorf("simulator is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	return &Builder{
		planner:   cfg.Planner,
		simulator: cfg.Simulator,
		gas:       cfg.Gas,
		target:    cfg.Target,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}, nil
}

// solveInput is the shared input to one pipeline run, built by the
// per-operation entry points
type solveInput struct {
	Operation      string
	ChainID        uint64
	Snapshot       *pool.Snapshot
	TickLower      int32
	TickUpper      int32
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Slippage       float64
	Solvers        []solver.Solver
	From           common.Address
	// FeeRatio is the total fraction carved out of the planned swap
	FeeRatio float64
	// Extra0Fee / Extra1Fee are position-level fee amounts already
	// deducted from the desired amounts by the caller (rebalance flat
	// fee), forwarded to simulation alongside the swap carve-out
	Extra0Fee *big.Int
	Extra1Fee *big.Int
	// FeeBips and FeeUSD decorate candidates for flows that charge a
	// position-value fee on top of the swap carve-out
	FeeBips *big.Int
	FeeUSD  money.USD
}

func addOrCopy(a, b *big.Int) *big.Int {
	sum := new(big.Int)
	if a != nil {
		sum.Add(sum, a)
	}
	if b != nil {
		sum.Add(sum, b)
	}
	return sum
}

// solve runs plan, fan-out, simulate and decorate. Individual solver and
// simulation failures drop their candidate; only planning failure is a
// hard error. An empty candidate list is a valid outcome.
func (b *Builder) solve(ctx context.Context, in solveInput) ([]Candidate, error) {
	ctx, span := b.tracer.StartSpan(ctx, "optimal.solve",
		observability.WithAttributes(
			attribute.String("operation", in.Operation),
			attribute.String("pool", in.Snapshot.Key.String()),
			attribute.Int("solvers", len(in.Solvers)),
		),
	)
	defer span.End()

	plan, err := b.planner.Plan(ctx, in.Snapshot.Key, in.TickLower, in.TickUpper, in.Amount0Desired, in.Amount1Desired, in.FeeRatio)
	if err != nil {
		span.NoticeError(err)
		return nil, err
	}

	// A balanced deposit needs no swap: return the trivial candidate
	// without touching any provider
	if plan.SwapAmountIn.Sign() == 0 {
		candidate, err := b.trivialCandidate(ctx, in)
		if err != nil {
			b.logWarn(ctx, "trivial candidate simulation failed", "operation", in.Operation, "error", err)
			return []Candidate{}, nil
		}
		b.recordCandidates(ctx, in.Operation, 1)
		return []Candidate{*candidate}, nil
	}

	req := solver.SwapRequest{
		ChainID:          in.ChainID,
		FeeOrTickSpacing: in.Snapshot.Key.FeeOrTickSpacing,
		TickLower:        in.TickLower,
		TickUpper:        in.TickUpper,
		AmountIn:         plan.SwapAmountIn,
		Slippage:         in.Slippage,
		ZeroForOne:       plan.ZeroForOne,
		Taker:            b.target,
	}
	if plan.ZeroForOne {
		req.TokenIn = in.Snapshot.Key.Token0.Address
		req.TokenOut = in.Snapshot.Key.Token1.Address
	} else {
		req.TokenIn = in.Snapshot.Key.Token1.Address
		req.TokenOut = in.Snapshot.Key.Token0.Address
	}

	// Fan out: each solver runs in its own goroutine, quotes its own
	// copy of the request and writes only its own slot. Errors stay
	// local to the slot; the join collects whatever succeeded.
	results := make([]*Candidate, len(in.Solvers))
	var wg sync.WaitGroup
	for i, sv := range in.Solvers {
		wg.Add(1)
		go func(slot int, sv solver.Solver) {
			defer wg.Done()
			results[slot] = b.runSolver(ctx, sv, req, plan, in)
		}(i, sv)
	}
	wg.Wait()

	candidates := make([]Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}

	b.recordCandidates(ctx, in.Operation, len(candidates))
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	return candidates, nil
}

// runSolver quotes one provider and simulates the result. Returns nil on
// any failure; severity of the log depends on whether the failure is a
// routing outcome or a provider problem.
func (b *Builder) runSolver(ctx context.Context, sv solver.Solver, req solver.SwapRequest, plan *Plan, in solveInput) *Candidate {
	start := time.Now()
	quote, err := sv.Quote(ctx, req)
	if err != nil {
		if solver.IsBenign(err) {
			b.logWarn(ctx, "solver returned no route",
				"solver", string(sv.ID()), "operation", in.Operation, "error", err)
			b.recordQuote(ctx, sv.ID(), "no_route", time.Since(start))
		} else {
			b.logError(ctx, "solver quote failed", err,
				"solver", string(sv.ID()), "operation", in.Operation)
			b.recordQuote(ctx, sv.ID(), "error", time.Since(start))
		}
		return nil
	}
	b.recordQuote(ctx, sv.ID(), "success", time.Since(start))

	fee0 := addOrCopy(plan.Token0FeeAmount, in.Extra0Fee)
	fee1 := addOrCopy(plan.Token1FeeAmount, in.Extra1Fee)

	sim, err := b.simulator.Simulate(ctx, contract.SimulateParams{
		From:            in.From,
		PoolKey:         in.Snapshot.Key,
		TickLower:       in.TickLower,
		TickUpper:       in.TickUpper,
		Amount0Desired:  in.Amount0Desired,
		Amount1Desired:  in.Amount1Desired,
		Token0FeeAmount: fee0,
		Token1FeeAmount: fee1,
		Swap:            quote.Payload,
	})
	if err != nil {
		b.logWarn(ctx, "candidate dropped after simulation failure",
			"solver", string(sv.ID()), "operation", in.Operation, "error", err)
		return nil
	}

	candidate := &Candidate{
		Solver:          sv.ID(),
		Liquidity:       sim.Liquidity,
		Amount0:         sim.Amount0,
		Amount1:         sim.Amount1,
		Swap:            quote.Payload,
		ZeroForOne:      plan.ZeroForOne,
		AmountIn:        plan.SwapAmountIn,
		AmountOut:       quote.AmountOut,
		MinAmountOut:    SlippageMinimum(quote.AmountOut, in.Slippage),
		Token0FeeAmount: fee0,
		Token1FeeAmount: fee1,
		FeeBips:         in.FeeBips,
		FeeUSD:          in.FeeUSD,
		PriceImpact:     PriceImpact(in.Snapshot, plan.SwapAmountIn, quote.AmountOut, plan.ZeroForOne),
		Route:           quote.Route,
		Path:            quote.Path,
		GasCost:         big.NewInt(0),
	}

	if b.gas != nil {
		candidate.GasCost = b.gas.EstimateCost(ctx, chain.SwapTx{
			From: in.From,
			To:   b.target,
			Data: quote.Payload.Data,
		})
	}

	return candidate
}

// trivialCandidate simulates a plain deposit with no swap. The swap
// carve-out is zero by construction, but a position-level fee the caller
// already deducted (rebalance flat fee) still rides through simulation
// and decoration.
func (b *Builder) trivialCandidate(ctx context.Context, in solveInput) (*Candidate, error) {
	sim, err := b.simulator.Simulate(ctx, contract.SimulateParams{
		From:            in.From,
		PoolKey:         in.Snapshot.Key,
		TickLower:       in.TickLower,
		TickUpper:       in.TickUpper,
		Amount0Desired:  in.Amount0Desired,
		Amount1Desired:  in.Amount1Desired,
		Token0FeeAmount: in.Extra0Fee,
		Token1FeeAmount: in.Extra1Fee,
	})
	if err != nil {
		return nil, err
	}

	return &Candidate{
		Solver:          solver.IDSamePool,
		Liquidity:       sim.Liquidity,
		Amount0:         sim.Amount0,
		Amount1:         sim.Amount1,
		AmountIn:        big.NewInt(0),
		AmountOut:       big.NewInt(0),
		MinAmountOut:    big.NewInt(0),
		Token0FeeAmount: orZero(in.Extra0Fee),
		Token1FeeAmount: orZero(in.Extra1Fee),
		FeeBips:         orZero(in.FeeBips),
		FeeUSD:          in.FeeUSD,
		GasCost:         big.NewInt(0),
	}, nil
}

// Best returns the candidate with the highest simulated liquidity. Ties
// keep the earlier candidate, so provider order is the tie-break. Nil on
// an empty list.
func Best(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Liquidity == nil {
			continue
		}
		if best == nil || c.Liquidity.Cmp(best.Liquidity) > 0 {
			best = c
		}
	}
	return best
}

func (b *Builder) recordQuote(ctx context.Context, id solver.ID, status string, d time.Duration) {
	if b.metrics != nil {
		b.metrics.RecordSolverQuote(ctx, string(id), status, d)
	}
}

func (b *Builder) recordCandidates(ctx context.Context, operation string, n int) {
	if b.metrics != nil {
		b.metrics.RecordCandidates(ctx, operation, n)
	}
}

func (b *Builder) logWarn(ctx context.Context, msg string, args ...any) {
	if b.logger != nil {
		b.logger.LogWarn(ctx, msg, args...)
	}
}

func (b *Builder) logError(ctx context.Context, msg string, err error, args ...any) {
	if b.logger != nil {
		b.logger.LogError(ctx, msg, err, args...)
	}
}
