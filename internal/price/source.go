// Package price resolves token USD valuations for fee accounting. Prices
// are advisory: they size the flat rebalance fee and gas reimbursement,
// never the swap amounts themselves.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gatti/clamm-zap/internal/platform/cache"
	"github.com/gatti/clamm-zap/internal/platform/observability"
)

// Source resolves a token's USD price
type Source interface {
	// TokenPriceUSD returns the USD price of one whole token
	TokenPriceUSD(ctx context.Context, chainID uint64, token common.Address) (float64, error)
}

// HTTPSourceConfig configures the HTTP price source
type HTTPSourceConfig struct {
	BaseURL  string
	APIKey   string
	Cache    cache.Cache
	CacheTTL time.Duration
	Timeout  time.Duration
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// HTTPSource fetches token prices from a coingecko-compatible endpoint and
// caches them. A stale cached price is better than no price here, so cache
// reads are tried before every fetch and writes are best-effort.
type HTTPSource struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewHTTPSource creates an HTTP price source
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 60 * time.Second
	}

	return &HTTPSource{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// platformSlug maps chain IDs onto the price API's platform identifiers
func platformSlug(chainID uint64) string {
	switch chainID {
	case 1:
		return "ethereum"
	case 10:
		return "optimistic-ethereum"
	case 56:
		return "binance-smart-chain"
	case 137:
		return "polygon-pos"
	case 8453:
		return "base"
	case 42161:
		return "arbitrum-one"
	default:
		return "ethereum"
	}
}

// TokenPriceUSD returns the USD price of one whole token, serving from
// cache when fresh
func (s *HTTPSource) TokenPriceUSD(ctx context.Context, chainID uint64, token common.Address) (float64, error) {
	key := fmt.Sprintf("price:%d:%s", chainID, strings.ToLower(token.Hex()))

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			if price, err := strconv.ParseFloat(raw, 64); err == nil {
				if s.metrics != nil {
					s.metrics.RecordCacheHit(ctx, "price")
				}
				return price, nil
			}
		} else if s.metrics != nil {
			s.metrics.RecordCacheMiss(ctx, "price")
		}
	}

	price, err := s.fetch(ctx, chainID, token)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, strconv.FormatFloat(price, 'g', -1, 64), s.cacheTTL); err != nil && s.logger != nil {
			s.logger.LogWarn(ctx, "failed to cache token price", "token", token.Hex(), "error", err)
		}
	}

	return price, nil
}

func (s *HTTPSource) fetch(ctx context.Context, chainID uint64, token common.Address) (float64, error) {
	addr := strings.ToLower(token.Hex())
	endpoint := fmt.Sprintf("%s/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd",
		s.baseURL, platformSlug(chainID), addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch token price: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read price response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code %d fetching token price", resp.StatusCode)
	}

	var parsed map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}

	entry, ok := parsed[addr]
	if !ok {
		return 0, fmt.Errorf("no USD price for token %s on chain %d", addr, chainID)
	}

	return entry.USD, nil
}

// StaticSource serves prices from a fixed map, for tests and local runs
type StaticSource struct {
	Prices map[common.Address]float64
}

// TokenPriceUSD returns the configured price or an error for unknown tokens
func (s *StaticSource) TokenPriceUSD(_ context.Context, _ uint64, token common.Address) (float64, error) {
	price, ok := s.Prices[token]
	if !ok {
		return 0, fmt.Errorf("no USD price configured for token %s", token.Hex())
	}
	return price, nil
}
