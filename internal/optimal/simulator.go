package optimal

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gatti/clamm-zap/internal/contract"
	"github.com/gatti/clamm-zap/internal/platform/observability"
)

// Simulator runs one candidate through the automation contract's simulate
// entry point. The simulated liquidity and amounts are the ground truth
// used for ranking and slippage bounds; provider-reported outputs are
// never trusted directly.
type Simulator struct {
	automation contract.Automation
	metrics    *observability.Metrics
	tracer     observability.Tracer
}

// SimulatorConfig holds simulator dependencies
type SimulatorConfig struct {
	Automation contract.Automation
	Metrics    *observability.Metrics
	Tracer     observability.Tracer
}

// NewSimulator creates a candidate simulator
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Automation == nil {
		return nil, fmt.Errorf("automation contract is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	return &Simulator{
		automation: cfg.Automation,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
	}, nil
}

// Simulate runs the candidate and validates the outcome. A failure here
// drops only this candidate, never its siblings.
func (s *Simulator) Simulate(ctx context.Context, params contract.SimulateParams) (*contract.SimulateResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, "simulator.simulate",
		observability.WithAttributes(
			attribute.String("pool", params.PoolKey.String()),
			attribute.Bool("in_pool_swap", params.Swap.IsEmpty()),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := s.automation.Simulate(ctx, params)
	duration := time.Since(start)

	if err != nil {
		span.NoticeError(err)
		if s.metrics != nil {
			s.metrics.RecordSimulation(ctx, "error", duration)
		}
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	if result.Liquidity == nil || result.Amount0 == nil || result.Amount1 == nil {
		err := fmt.Errorf("simulation returned incomplete result")
		span.NoticeError(err)
		if s.metrics != nil {
			s.metrics.RecordSimulation(ctx, "invalid", duration)
		}
		return nil, err
	}
	if result.Liquidity.Sign() < 0 || result.Amount0.Sign() < 0 || result.Amount1.Sign() < 0 {
		err := fmt.Errorf("simulation returned negative outcome liquidity=%s amount0=%s amount1=%s",
			result.Liquidity, result.Amount0, result.Amount1)
		span.NoticeError(err)
		if s.metrics != nil {
			s.metrics.RecordSimulation(ctx, "invalid", duration)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSimulation(ctx, "success", duration)
	}

	span.SetAttributes(
		attribute.String("liquidity", result.Liquidity.String()),
		attribute.String("amount0", result.Amount0.String()),
		attribute.String("amount1", result.Amount1.String()),
	)

	return result, nil
}

// SimulateSwap executes a standalone router swap via eth_call and returns
// the received amount. Used for conversions with no deposit attached,
// where the router's self-reported output still needs an on-chain check.
func (s *Simulator) SimulateSwap(ctx context.Context, params contract.SwapSimParams) (*big.Int, error) {
	ctx, span := s.tracer.StartSpan(ctx, "simulator.simulate_swap",
		observability.WithAttributes(
			attribute.String("token_in", params.TokenIn.Hex()),
			attribute.String("token_out", params.TokenOut.Hex()),
		),
	)
	defer span.End()

	start := time.Now()
	amountOut, err := s.automation.SimulateSwap(ctx, params)
	duration := time.Since(start)

	if err != nil {
		span.NoticeError(err)
		if s.metrics != nil {
			s.metrics.RecordSimulation(ctx, "error", duration)
		}
		return nil, fmt.Errorf("swap simulation failed: %w", err)
	}

	if amountOut == nil || amountOut.Sign() < 0 {
		err := fmt.Errorf("swap simulation returned invalid amountOut %v", amountOut)
		span.NoticeError(err)
		if s.metrics != nil {
			s.metrics.RecordSimulation(ctx, "invalid", duration)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSimulation(ctx, "success", duration)
	}

	span.SetAttributes(attribute.String("amount_out", amountOut.String()))

	return amountOut, nil
}
