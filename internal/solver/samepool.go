package solver

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/gatti/clamm-zap/internal/contract"
	"github.com/gatti/clamm-zap/internal/platform/observability"
	"github.com/gatti/clamm-zap/internal/pool"
)

// SamePoolSolver quotes a single-hop swap inside the position's own pool.
// It never emits calldata: an empty payload tells the automation contract
// to perform the swap in-pool during the zap.
type SamePoolSolver struct {
	quoter  contract.Quoter
	logger  *observability.Logger
	metrics *observability.Metrics
}

// SamePoolSolverConfig holds same-pool solver configuration
type SamePoolSolverConfig struct {
	Quoter  contract.Quoter
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewSamePoolSolver creates the same-pool solver
func NewSamePoolSolver(cfg SamePoolSolverConfig) *SamePoolSolver {
	return &SamePoolSolver{
		quoter:  cfg.Quoter,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// ID returns the solver identifier
func (s *SamePoolSolver) ID() ID {
	return IDSamePool
}

// Quote quotes an in-pool swap. A zero amount returns a zero quote
// without touching the chain; a pool revert (price limit, no liquidity)
// also yields a zero quote rather than an error, since an unquotable
// in-pool swap is an expected outcome, not a provider failure.
func (s *SamePoolSolver) Quote(ctx context.Context, req SwapRequest) (*SolvedSwap, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() == 0 {
		return &SolvedSwap{Solver: IDSamePool, AmountOut: big.NewInt(0)}, nil
	}

	key := pool.Key{
		Token0:           pool.Token{Address: req.TokenIn},
		Token1:           pool.Token{Address: req.TokenOut},
		FeeOrTickSpacing: req.FeeOrTickSpacing,
	}
	if !req.ZeroForOne {
		key.Token0, key.Token1 = key.Token1, key.Token0
	}

	start := time.Now()
	amountOut, _, err := s.quoter.QuoteExactInputSingle(ctx, key, req.ZeroForOne, req.AmountIn)
	duration := time.Since(start)

	if err != nil {
		if isRevert(err) {
			if s.logger != nil {
				s.logger.LogWarn(ctx, "same-pool swap rejected by pool",
					"pool", key.String(),
					"amount_in", req.AmountIn.String(),
					"error", err,
				)
			}
			if s.metrics != nil {
				s.metrics.RecordSolverQuote(ctx, string(IDSamePool), "rejected", duration)
			}
			return &SolvedSwap{Solver: IDSamePool, AmountOut: big.NewInt(0)}, nil
		}

		if s.metrics != nil {
			s.metrics.RecordSolverQuote(ctx, string(IDSamePool), "error", duration)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSolverQuote(ctx, string(IDSamePool), "success", duration)
	}

	return &SolvedSwap{
		Solver:    IDSamePool,
		AmountOut: amountOut,
		Route:     "in-pool single hop",
	}, nil
}

func isRevert(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") || strings.Contains(msg, "spl") || strings.Contains(msg, "price limit")
}
