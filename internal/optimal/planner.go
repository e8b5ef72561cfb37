package optimal

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gatti/clamm-zap/internal/contract"
	"github.com/gatti/clamm-zap/internal/platform/observability"
	"github.com/gatti/clamm-zap/internal/pool"
)

// Plan is the planned swap for one deposit: how much of which token to
// swap, with the protocol fee already carved out of the provider-visible
// amount. SwapAmountIn + FeeAmount always equals PoolAmountIn.
type Plan struct {
	// PoolAmountIn is the full surplus the pool math wants swapped
	PoolAmountIn *big.Int
	// SwapAmountIn is what providers are asked to quote, after fees
	SwapAmountIn *big.Int
	// FeeAmount is the carve-out, denominated in the swapped token
	FeeAmount *big.Int
	// ZeroForOne is true when token0 is the surplus token
	ZeroForOne bool
	// Token0FeeAmount / Token1FeeAmount split FeeAmount onto the token
	// the fee was actually deducted from
	Token0FeeAmount *big.Int
	Token1FeeAmount *big.Int
}

// Planner computes the pool-balanced swap amount for a deposit and layers
// the fee carve-out on top. The AMM math itself lives in the automation
// contract; this component owns only the fee arithmetic.
type Planner struct {
	automation contract.Automation
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     observability.Tracer
}

// PlannerConfig holds planner dependencies
type PlannerConfig struct {
	Automation contract.Automation
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Tracer     observability.Tracer
}

// NewPlanner creates a swap amount planner
func NewPlanner(cfg PlannerConfig) (*Planner, error) {
	if cfg.Automation == nil {
		return nil, fmt.Errorf("automation contract is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	return &Planner{
		automation: cfg.Automation,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
	}, nil
}

// Plan asks the pool contract for the balanced swap amount and deducts
// the fee before any provider sees the number. feeRatio is the total
// fraction to carve out (zap fee, plus reinvest fee where applicable).
//
// Planning is pure with respect to the pool snapshot: identical inputs
// against an unchanged pool yield identical output.
func (p *Planner) Plan(ctx context.Context, key pool.Key, tickLower, tickUpper int32, amount0Desired, amount1Desired *big.Int, feeRatio float64) (*Plan, error) {
	ctx, span := p.tracer.StartSpan(ctx, "planner.plan",
		observability.WithAttributes(
			attribute.String("pool", key.String()),
			attribute.Int("tick_lower", int(tickLower)),
			attribute.Int("tick_upper", int(tickUpper)),
		),
	)
	defer span.End()

	start := time.Now()
	amountIn, zeroForOne, err := p.automation.GetOptimalSwapAmount(ctx, key, tickLower, tickUpper, orZero(amount0Desired), orZero(amount1Desired))
	if err != nil {
		span.NoticeError(err)
		if p.metrics != nil {
			p.metrics.RecordPlan(ctx, "plan", "error", time.Since(start))
		}
		return nil, fmt.Errorf("failed to compute optimal swap amount: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordPlan(ctx, "plan", "success", time.Since(start))
	}

	if amountIn.Sign() < 0 {
		return nil, fmt.Errorf("pool returned negative swap amount %s", amountIn)
	}

	feeAmount := mulRatioFloor(amountIn, feeRatio)
	swapAmountIn := new(big.Int).Sub(amountIn, feeAmount)

	plan := &Plan{
		PoolAmountIn:    amountIn,
		SwapAmountIn:    swapAmountIn,
		FeeAmount:       feeAmount,
		ZeroForOne:      zeroForOne,
		Token0FeeAmount: big.NewInt(0),
		Token1FeeAmount: big.NewInt(0),
	}
	if zeroForOne {
		plan.Token0FeeAmount = feeAmount
	} else {
		plan.Token1FeeAmount = feeAmount
	}

	span.SetAttributes(
		attribute.String("pool_amount_in", amountIn.String()),
		attribute.String("fee_amount", feeAmount.String()),
		attribute.Bool("zero_for_one", zeroForOne),
	)

	if p.logger != nil {
		p.logger.LogDebug(ctx, "planned swap amount",
			"pool", key.String(),
			"pool_amount_in", amountIn.String(),
			"swap_amount_in", swapAmountIn.String(),
			"fee_amount", feeAmount.String(),
			"zero_for_one", zeroForOne,
		)
	}

	return plan, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
