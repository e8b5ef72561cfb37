package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatti/clamm-zap/internal/platform/observability"
	"github.com/gatti/clamm-zap/internal/platform/resilience"
)

// aggregatorClient is the shared HTTP plumbing for aggregator solvers:
// rate limiting, retry with backoff, circuit breaking and metrics.
type aggregatorClient struct {
	name     ID
	client   *http.Client
	limiter  *resilience.ProviderLimiter
	cb       *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// AggregatorConfig holds configuration shared by aggregator solvers
type AggregatorConfig struct {
	BaseURL        string
	APIKey         string
	Limiter        *resilience.ProviderLimiter
	CircuitBreaker *resilience.CircuitBreaker
	RetryConfig    resilience.RetryConfig
	Logger         *observability.Logger
	Metrics        *observability.Metrics
}

func newAggregatorClient(name ID, cfg AggregatorConfig) *aggregatorClient {
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = resilience.DefaultRetryConfig()
	}

	cb := cfg.CircuitBreaker
	if cb == nil {
		metrics := cfg.Metrics
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             string(name),
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				if metrics != nil {
					metrics.SetCircuitBreakerState(context.Background(), string(name), int64(to))
				}
			},
		})
	}

	return &aggregatorClient{
		name:     name,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  cfg.Limiter,
		cb:       cb,
		retryCfg: cfg.RetryConfig,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// getJSON performs a rate-limited, circuit-broken GET with retries and
// decodes the JSON response into out. The response body is returned for
// error-shape sniffing when the status is non-2xx.
func (a *aggregatorClient) getJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	_, err := resilience.ExecuteWithResult(a.cb, ctx, func(ctx context.Context) (struct{}, error) {
		return resilience.RetryIfWithResult(ctx, a.retryCfg, resilience.IsRetryable, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.fetch(ctx, url, headers, out)
		})
	})
	return err
}

func (a *aggregatorClient) fetch(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	if a.limiter != nil {
		waitStart := time.Now()
		err := a.limiter.Schedule(ctx, func(ctx context.Context) error {
			if a.metrics != nil {
				a.metrics.RecordRateLimiterWait(ctx, string(a.name), time.Since(waitStart))
			}
			return a.doRequest(ctx, url, headers, out)
		})
		return err
	}
	return a.doRequest(ctx, url, headers, out)
}

func (a *aggregatorClient) doRequest(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		a.recordCall(ctx, "transport_error", duration)
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		a.recordCall(ctx, "read_error", duration)
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		a.recordCall(ctx, fmt.Sprintf("http_%d", resp.StatusCode), duration)
		return &httpStatusError{status: resp.StatusCode, body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		a.recordCall(ctx, "decode_error", duration)
		return fmt.Errorf("failed to decode response: %w", err)
	}

	a.recordCall(ctx, "success", duration)
	return nil
}

func (a *aggregatorClient) recordCall(ctx context.Context, status string, duration time.Duration) {
	if a.metrics != nil {
		a.metrics.RecordAggregatorAPICall(ctx, string(a.name), status, duration)
	}
}

// httpStatusError preserves the status code and body so providers can
// distinguish "no route" replies from real transport failures
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.status, e.body)
}

// requireAmount rejects zero-amount requests before any network call.
// The orchestrator short-circuits these upstream; hitting this is a bug.
func requireAmount(req SwapRequest) error {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return ErrZeroAmountIn
	}
	return nil
}
