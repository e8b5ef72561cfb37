// Package chain provides Ethereum RPC access: a weighted client pool with
// failover and the gas/fee estimator used to cost swap candidates.
package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gatti/clamm-zap/internal/platform/observability"
)

// Endpoint represents a single RPC endpoint with health tracking
type Endpoint struct {
	URL    string
	Weight int

	// Client and current are guarded by the pool mutex
	Client  *ethclient.Client
	current int

	healthy atomic.Bool
}

// ClientPool manages multiple RPC endpoints with smooth weighted
// round-robin selection and failover, so one bad node does not take
// down quoting. An endpoint with weight N is picked N times as often
// as one with weight 1, spread evenly rather than in bursts.
type ClientPool struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	logger    *observability.Logger
	stopCh    chan struct{}
}

// EndpointConfig represents endpoint configuration
type EndpointConfig struct {
	URL    string
	Weight int
}

// ClientPoolConfig holds client pool configuration
type ClientPoolConfig struct {
	Endpoints      []EndpointConfig
	Logger         *observability.Logger
	HealthCheckTTL time.Duration
}

// NewClientPool dials all endpoints and starts background health checks.
// Endpoints that fail to dial are kept and retried by the health loop.
func NewClientPool(cfg ClientPoolConfig) (*ClientPool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	if cfg.HealthCheckTTL == 0 {
		cfg.HealthCheckTTL = 30 * time.Second
	}

	endpoints := make([]*Endpoint, 0, len(cfg.Endpoints))
	healthyCount := 0

	for _, epCfg := range cfg.Endpoints {
		ep := &Endpoint{URL: epCfg.URL, Weight: epCfg.Weight}

		client, err := ethclient.Dial(epCfg.URL)
		if err != nil {
			cfg.Logger.LogError(context.Background(), "failed to connect to RPC endpoint", err, "url", epCfg.URL)
			ep.healthy.Store(false)
		} else {
			ep.Client = client
			ep.healthy.Store(true)
			healthyCount++
			cfg.Logger.Info("connected to RPC endpoint", "url", epCfg.URL, "weight", epCfg.Weight)
		}

		endpoints = append(endpoints, ep)
	}

	if healthyCount == 0 {
		return nil, fmt.Errorf("no healthy RPC endpoints available")
	}

	pool := &ClientPool{
		endpoints: endpoints,
		logger:    cfg.Logger,
		stopCh:    make(chan struct{}),
	}

	go pool.healthLoop(cfg.HealthCheckTTL)

	return pool, nil
}

// GetClient returns the next healthy client using smooth weighted
// round-robin: every healthy endpoint gains its weight, the leader is
// picked and pays back the total. Weights below 1 count as 1.
func (cp *ClientPool) GetClient() (*ethclient.Client, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	var best *Endpoint
	total := 0
	for _, ep := range cp.endpoints {
		if !ep.healthy.Load() || ep.Client == nil {
			continue
		}
		w := ep.Weight
		if w <= 0 {
			w = 1
		}
		ep.current += w
		total += w
		if best == nil || ep.current > best.current {
			best = ep
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no healthy RPC endpoints available")
	}

	best.current -= total
	return best.Client, nil
}

// MarkUnhealthy flags an endpoint after a caller-observed failure so the
// health loop re-checks it before it is used again
func (cp *ClientPool) MarkUnhealthy(url string) {
	for _, ep := range cp.endpoints {
		if ep.URL == url {
			if ep.healthy.Swap(false) {
				cp.logger.Warn("marking RPC endpoint as unhealthy", "url", url)
			}
			return
		}
	}
}

func (cp *ClientPool) healthLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-cp.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			for _, ep := range cp.endpoints {
				cp.checkEndpoint(ctx, ep)
			}
			cancel()
		}
	}
}

// checkEndpoint runs one health check. The client pointer is only read
// and written under the pool mutex; the dial and the block number call
// run outside it. A failed check marks the endpoint unhealthy but never
// closes the client, since callers handed out by GetClient may still
// hold it and the next check reuses the same connection.
func (cp *ClientPool) checkEndpoint(ctx context.Context, ep *Endpoint) {
	cp.mu.Lock()
	client := ep.Client
	cp.mu.Unlock()

	if client == nil {
		dialed, err := ethclient.Dial(ep.URL)
		if err != nil {
			ep.healthy.Store(false)
			return
		}
		cp.mu.Lock()
		ep.Client = dialed
		cp.mu.Unlock()
		client = dialed
		cp.logger.Info("reconnected to RPC endpoint", "url", ep.URL)
	}

	if _, err := client.BlockNumber(ctx); err != nil {
		// Temporary context errors say nothing about the node
		if ctx.Err() != nil {
			return
		}
		if ep.healthy.Swap(false) {
			cp.logger.LogError(ctx, "RPC endpoint health check failed", err, "url", ep.URL)
		}
		return
	}

	if !ep.healthy.Swap(true) {
		cp.logger.Info("RPC endpoint is now healthy", "url", ep.URL)
	}
}

// HealthyCount returns the number of healthy endpoints
func (cp *ClientPool) HealthyCount() int {
	count := 0
	for _, ep := range cp.endpoints {
		if ep.healthy.Load() {
			count++
		}
	}
	return count
}

// Close stops health checks and closes all connections
func (cp *ClientPool) Close() {
	close(cp.stopCh)
	cp.mu.Lock()
	for _, ep := range cp.endpoints {
		if ep.Client != nil {
			ep.Client.Close()
		}
	}
	cp.mu.Unlock()
	cp.logger.Info("closed all RPC client connections")
}
