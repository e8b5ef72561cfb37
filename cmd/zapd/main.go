package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatti/clamm-zap/internal/api"
	"github.com/gatti/clamm-zap/internal/chain"
	"github.com/gatti/clamm-zap/internal/contract"
	"github.com/gatti/clamm-zap/internal/optimal"
	"github.com/gatti/clamm-zap/internal/platform/cache"
	"github.com/gatti/clamm-zap/internal/platform/config"
	"github.com/gatti/clamm-zap/internal/platform/observability"
	"github.com/gatti/clamm-zap/internal/platform/resilience"
	"github.com/gatti/clamm-zap/internal/price"
	"github.com/gatti/clamm-zap/internal/solver"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("Loading configuration...")
	cfg := config.MustLoad("config.yaml")

	// Observability first, everything else logs through it
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("clamm-zap", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracerProvider, err := observability.NewTracerProvider(ctx, "clamm-zap", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracerProvider.Shutdown(ctx)

	var tracer observability.Tracer = observability.NewNoopTracer()
	if cfg.Observability.Tracing.Enabled {
		tracer = observability.NewTracer("clamm-zap")
	}

	logger.Info("observability setup complete")

	// Price cache: memory always, redis when configured
	var priceCache cache.Cache = cache.NewMemoryCache(cfg.Cache.MaxSize)
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.LogError(ctx, "failed to create Redis cache", err)
			log.Fatalf("Failed to create Redis cache: %v", err)
		}
		priceCache = redisCache
	}
	defer priceCache.Close()

	// RPC client pool
	logger.Info("connecting to chain", "chain_id", cfg.Chain.ChainID, "name", cfg.Chain.Name)
	endpoints := make([]chain.EndpointConfig, len(cfg.Chain.RPCEndpoints))
	for i, ep := range cfg.Chain.RPCEndpoints {
		endpoints[i] = chain.EndpointConfig{URL: ep.URL, Weight: ep.Weight}
	}

	clientPool, err := chain.NewClientPool(chain.ClientPoolConfig{
		Endpoints: endpoints,
		Logger:    logger,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create client pool", err)
		log.Fatalf("Failed to create client pool: %v", err)
	}
	defer clientPool.Close()

	ethClient, err := clientPool.GetClient()
	if err != nil {
		log.Fatalf("Failed to get RPC client: %v", err)
	}

	// Contract bindings
	automation, err := contract.NewBoundAutomation(cfg.Chain.AutomationContract(), ethClient)
	if err != nil {
		log.Fatalf("Failed to bind automation contract: %v", err)
	}

	quoter, err := contract.NewBoundQuoter(cfg.Chain.QuoterContract(), ethClient)
	if err != nil {
		log.Fatalf("Failed to bind quoter contract: %v", err)
	}

	// Gas estimation, with the L1 data fee oracle on rollup chains
	var l1Oracle chain.L1DataFeeOracle
	if cfg.Chain.HasL1GasOracle() {
		oracle, err := chain.NewGasPriceOracle(cfg.Chain.L1GasOracle(), ethClient)
		if err != nil {
			log.Fatalf("Failed to bind gas price oracle: %v", err)
		}
		l1Oracle = oracle
	}

	gasEstimator, err := chain.NewEstimator(chain.EstimatorConfig{
		Backend:          ethClient,
		L1Oracle:         l1Oracle,
		SafetyMultiplier: cfg.Chain.GasSafetyMultiplier,
		ChainName:        cfg.Chain.Name,
		Logger:           logger,
		Metrics:          metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create gas estimator: %v", err)
	}

	// Solvers, in tie-break priority order
	logger.Info("creating solvers...")
	solvers := buildSolvers(cfg, quoter, logger, metrics)
	if len(solvers) == 0 {
		log.Fatalf("No solvers enabled")
	}

	// Pipeline
	planner, err := optimal.NewPlanner(optimal.PlannerConfig{
		Automation: automation,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	if err != nil {
		log.Fatalf("Failed to create planner: %v", err)
	}

	simulator, err := optimal.NewSimulator(optimal.SimulatorConfig{
		Automation: automation,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	if err != nil {
		log.Fatalf("Failed to create simulator: %v", err)
	}

	builder, err := optimal.NewBuilder(optimal.BuilderConfig{
		Planner:   planner,
		Simulator: simulator,
		Gas:       gasEstimator,
		Target:    cfg.Chain.AutomationContract(),
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	})
	if err != nil {
		log.Fatalf("Failed to create builder: %v", err)
	}

	priceSource := price.NewHTTPSource(price.HTTPSourceConfig{
		BaseURL:  cfg.Price.BaseURL,
		APIKey:   cfg.Price.APIKey,
		Cache:    priceCache,
		CacheTTL: cfg.Price.CacheTTL,
		Logger:   logger,
		Metrics:  metrics,
	})

	engine, err := optimal.NewEngine(optimal.EngineConfig{
		Builder: builder,
		Fees: optimal.FeeRatios{
			ZapFee:             cfg.Fees.ZapFee,
			ReinvestFee:        cfg.Fees.ReinvestFeeRatios(),
			ReinvestFeeDefault: cfg.Fees.ReinvestFeeDefault,
			RebalanceSwapFee:   cfg.Fees.RebalanceSwapFee,
			RebalanceFlatUSD:   cfg.Fees.RebalanceFlatUSD,
		},
		Prices:      priceSource,
		ChainID:     cfg.Chain.ChainID,
		NativeToken: cfg.Chain.WrappedNativeToken(),
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	// HTTP surfaces: the solve API and the metrics endpoint
	server := api.NewServer(api.ServerConfig{
		Engine:  engine,
		Solvers: solvers,
		Clients: clientPool,
		Logger:  logger,
	})

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: server.Router(),
	}

	go func() {
		logger.Info("API server listening", "address", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError(ctx, "API server error", err)
			cancel()
		}
	}()

	if cfg.Observability.Metrics.Enabled {
		go startMetricsServer(cfg.Observability.Metrics.Port, metrics, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received, gracefully stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.LogError(ctx, "API server shutdown error", err)
	}

	logger.Info("application stopped")
}

// buildSolvers creates the enabled solvers in priority order. Same-pool
// goes first so it wins candidate ties.
func buildSolvers(cfg *config.Config, quoter contract.Quoter, logger *observability.Logger, metrics *observability.Metrics) []solver.Solver {
	var solvers []solver.Solver

	if cfg.Solvers.SamePool.Enabled {
		solvers = append(solvers, solver.NewSamePoolSolver(solver.SamePoolSolverConfig{
			Quoter:  quoter,
			Logger:  logger,
			Metrics: metrics,
		}))
	}

	type aggregatorEntry struct {
		name string
		cfg  config.AggregatorConfig
		make func(solver.AggregatorConfig) solver.Solver
	}
	for _, entry := range []aggregatorEntry{
		{"1inch", cfg.Solvers.OneInch, func(c solver.AggregatorConfig) solver.Solver { return solver.NewOneInchSolver(c) }},
		{"0x", cfg.Solvers.ZeroX, func(c solver.AggregatorConfig) solver.Solver { return solver.NewZeroXSolver(c) }},
		{"okx", cfg.Solvers.OKX, func(c solver.AggregatorConfig) solver.Solver { return solver.NewOKXSolver(c) }},
	} {
		if !entry.cfg.Enabled {
			continue
		}

		limiter := resilience.NewProviderLimiter(resilience.ProviderLimiterConfig{
			Name:            entry.name,
			MaxConcurrency:  int64(entry.cfg.RateLimit.MaxConcurrency),
			MinCallInterval: entry.cfg.RateLimit.MinCallInterval,
		})

		solvers = append(solvers, entry.make(solver.AggregatorConfig{
			BaseURL: entry.cfg.BaseURL,
			APIKey:  entry.cfg.APIKey,
			Limiter: limiter,
			Logger:  logger,
			Metrics: metrics,
		}))
	}

	return solvers
}

// startMetricsServer serves prometheus metrics and liveness probes
func startMetricsServer(port int, metrics *observability.Metrics, logger *observability.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics server listening", "address", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.LogError(context.Background(), "metrics server error", err)
	}
}
