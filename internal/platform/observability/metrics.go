package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Solver quote metrics
	SolverQuoteCalls    metric.Int64Counter
	SolverQuoteDuration metric.Float64Histogram

	// Pool contract simulation metrics
	SimulationCalls    metric.Int64Counter
	SimulationDuration metric.Float64Histogram

	// Swap planning metrics
	PlanCalls    metric.Int64Counter
	PlanDuration metric.Float64Histogram

	// Candidate selection metrics
	CandidatesReturned metric.Int64Histogram
	CandidateSelected  metric.Int64Counter

	// Gas estimation metrics
	GasEstimateFailures metric.Int64Counter
	GasPriceGwei        metric.Float64Gauge

	// Aggregator HTTP metrics
	AggregatorAPICalls    metric.Int64Counter
	AggregatorAPIDuration metric.Float64Histogram

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Rate limiter metrics
	RateLimiterWait metric.Float64Histogram

	// Error metrics
	Errors metric.Int64Counter

	// Prometheus exporter for HTTP handler
	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initMetrics creates all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	if m.SolverQuoteCalls, err = m.meter.Int64Counter(
		"solver_quote_calls_total",
		metric.WithDescription("Total swap quote calls per solver and status"),
	); err != nil {
		return err
	}

	if m.SolverQuoteDuration, err = m.meter.Float64Histogram(
		"solver_quote_duration_seconds",
		metric.WithDescription("Swap quote latency per solver"),
	); err != nil {
		return err
	}

	if m.SimulationCalls, err = m.meter.Int64Counter(
		"simulation_calls_total",
		metric.WithDescription("Pool contract simulate calls per status"),
	); err != nil {
		return err
	}

	if m.SimulationDuration, err = m.meter.Float64Histogram(
		"simulation_duration_seconds",
		metric.WithDescription("Pool contract simulate latency"),
	); err != nil {
		return err
	}

	if m.PlanCalls, err = m.meter.Int64Counter(
		"swap_plan_calls_total",
		metric.WithDescription("Optimal swap amount planning calls"),
	); err != nil {
		return err
	}

	if m.PlanDuration, err = m.meter.Float64Histogram(
		"swap_plan_duration_seconds",
		metric.WithDescription("Optimal swap amount planning latency"),
	); err != nil {
		return err
	}

	if m.CandidatesReturned, err = m.meter.Int64Histogram(
		"candidates_returned",
		metric.WithDescription("Number of successful candidates per solve call"),
	); err != nil {
		return err
	}

	if m.CandidateSelected, err = m.meter.Int64Counter(
		"candidate_selected_total",
		metric.WithDescription("Winning candidate count per solver"),
	); err != nil {
		return err
	}

	if m.GasEstimateFailures, err = m.meter.Int64Counter(
		"gas_estimate_failures_total",
		metric.WithDescription("Gas estimation failures (absorbed, candidate kept)"),
	); err != nil {
		return err
	}

	if m.GasPriceGwei, err = m.meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Last observed gas price in gwei"),
	); err != nil {
		return err
	}

	if m.AggregatorAPICalls, err = m.meter.Int64Counter(
		"aggregator_api_calls_total",
		metric.WithDescription("Aggregator HTTP API calls per provider and status"),
	); err != nil {
		return err
	}

	if m.AggregatorAPIDuration, err = m.meter.Float64Histogram(
		"aggregator_api_duration_seconds",
		metric.WithDescription("Aggregator HTTP API latency per provider"),
	); err != nil {
		return err
	}

	if m.CacheHits, err = m.meter.Int64Counter(
		"cache_hits_total",
		metric.WithDescription("Cache hits per layer"),
	); err != nil {
		return err
	}

	if m.CacheMisses, err = m.meter.Int64Counter(
		"cache_misses_total",
		metric.WithDescription("Cache misses per layer"),
	); err != nil {
		return err
	}

	if m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"circuit_breaker_state",
		metric.WithDescription("Circuit breaker state per provider (0=closed, 1=half-open, 2=open)"),
	); err != nil {
		return err
	}

	if m.RateLimiterWait, err = m.meter.Float64Histogram(
		"rate_limiter_wait_seconds",
		metric.WithDescription("Time spent waiting for rate limiter admission"),
	); err != nil {
		return err
	}

	if m.Errors, err = m.meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total errors by type"),
	); err != nil {
		return err
	}

	return nil
}

// RecordSolverQuote records a solver quote attempt
func (m *Metrics) RecordSolverQuote(ctx context.Context, solver, status string, duration time.Duration) {
	if m.SolverQuoteCalls == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("solver", solver),
		attribute.String("status", status),
	)
	m.SolverQuoteCalls.Add(ctx, 1, attrs)
	m.SolverQuoteDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("solver", solver)))
}

// RecordSimulation records a pool contract simulate call
func (m *Metrics) RecordSimulation(ctx context.Context, status string, duration time.Duration) {
	if m.SimulationCalls == nil {
		return
	}
	m.SimulationCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.SimulationDuration.Record(ctx, duration.Seconds())
}

// RecordPlan records a swap planning call
func (m *Metrics) RecordPlan(ctx context.Context, operation, status string, duration time.Duration) {
	if m.PlanCalls == nil {
		return
	}
	m.PlanCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
	m.PlanDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordCandidates records the size of a solve result set
func (m *Metrics) RecordCandidates(ctx context.Context, operation string, count int) {
	if m.CandidatesReturned == nil {
		return
	}
	m.CandidatesReturned.Record(ctx, int64(count), metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordCandidateSelected records the winning solver for a solve call
func (m *Metrics) RecordCandidateSelected(ctx context.Context, solver string) {
	if m.CandidateSelected == nil {
		return
	}
	m.CandidateSelected.Add(ctx, 1, metric.WithAttributes(attribute.String("solver", solver)))
}

// RecordGasEstimateFailure records an absorbed gas estimation failure
func (m *Metrics) RecordGasEstimateFailure(ctx context.Context, chain string) {
	if m.GasEstimateFailures == nil {
		return
	}
	m.GasEstimateFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", chain)))
}

// RecordGasPrice records the last observed gas price in gwei
func (m *Metrics) RecordGasPrice(ctx context.Context, gwei float64) {
	if m.GasPriceGwei == nil {
		return
	}
	m.GasPriceGwei.Record(ctx, gwei)
}

// RecordAggregatorAPICall records an aggregator HTTP call
func (m *Metrics) RecordAggregatorAPICall(ctx context.Context, provider, status string, duration time.Duration) {
	if m.AggregatorAPICalls == nil {
		return
	}
	m.AggregatorAPICalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
	m.AggregatorAPIDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordCacheHit records a cache hit for a layer
func (m *Metrics) RecordCacheHit(ctx context.Context, layer string) {
	if m.CacheHits == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordCacheMiss records a cache miss for a layer
func (m *Metrics) RecordCacheMiss(ctx context.Context, layer string) {
	if m.CacheMisses == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// SetCircuitBreakerState records circuit breaker state transitions
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, provider string, state int64) {
	if m.CircuitBreakerState == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordRateLimiterWait records admission wait time for a provider limiter
func (m *Metrics) RecordRateLimiterWait(ctx context.Context, provider string, wait time.Duration) {
	if m.RateLimiterWait == nil {
		return
	}
	m.RateLimiterWait.Record(ctx, wait.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordError records an error by type
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if m.Errors == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("error_type", errorType)))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
