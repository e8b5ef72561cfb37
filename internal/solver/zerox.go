package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gatti/clamm-zap/internal/contract"
)

// ZeroXSolver quotes through the 0x swap API
type ZeroXSolver struct {
	*aggregatorClient
	baseURL string
	apiKey  string
}

// zeroXQuoteResponse is the subset of the 0x quote response we use
type zeroXQuoteResponse struct {
	BuyAmount       string `json:"buyAmount"`
	To              string `json:"to"`
	Data            string `json:"data"`
	AllowanceTarget string `json:"allowanceTarget"`
	Sources         []struct {
		Name       string `json:"name"`
		Proportion string `json:"proportion"`
	} `json:"sources"`
}

// NewZeroXSolver creates a 0x-backed solver
func NewZeroXSolver(cfg AggregatorConfig) *ZeroXSolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.0x.org"
	}

	return &ZeroXSolver{
		aggregatorClient: newAggregatorClient(IDZeroX, cfg),
		baseURL:          cfg.BaseURL,
		apiKey:           cfg.APIKey,
	}
}

// ID returns the solver identifier
func (s *ZeroXSolver) ID() ID {
	return IDZeroX
}

// Quote fetches 0x router calldata for the requested swap
func (s *ZeroXSolver) Quote(ctx context.Context, req SwapRequest) (*SolvedSwap, error) {
	if err := requireAmount(req); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("sellToken", strings.ToLower(req.TokenIn.Hex()))
	query.Set("buyToken", strings.ToLower(req.TokenOut.Hex()))
	query.Set("sellAmount", req.AmountIn.String())
	query.Set("takerAddress", strings.ToLower(req.Taker.Hex()))
	query.Set("slippagePercentage", fmt.Sprintf("%g", req.Slippage))
	query.Set("skipValidation", "true")

	endpoint := fmt.Sprintf("%s/swap/v1/quote?%s", s.baseURL, query.Encode())

	headers := map[string]string{}
	if s.apiKey != "" {
		headers["0x-api-key"] = s.apiKey
	}

	var resp zeroXQuoteResponse
	if err := s.getJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, classifyZeroXError(err)
	}

	amountOut, ok := new(big.Int).SetString(resp.BuyAmount, 10)
	if !ok {
		return nil, fmt.Errorf("0x: invalid buyAmount %q", resp.BuyAmount)
	}
	if amountOut.Sign() == 0 {
		return nil, ErrNoRoute
	}

	data, err := hexutil.Decode(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("0x: invalid tx data: %w", err)
	}

	approveTarget := common.HexToAddress(resp.AllowanceTarget)
	if resp.AllowanceTarget == "" {
		approveTarget = common.HexToAddress(resp.To)
	}

	return &SolvedSwap{
		Solver:    IDZeroX,
		AmountOut: amountOut,
		Payload: contract.SwapPayload{
			Target:        common.HexToAddress(resp.To),
			ApproveTarget: approveTarget,
			Data:          data,
		},
		Route: summarizeSources(resp),
	}, nil
}

// classifyZeroXError maps 0x validation replies onto the shared taxonomy
func classifyZeroXError(err error) error {
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	body := strings.ToLower(statusErr.body)
	if strings.Contains(body, "insufficient_asset_liquidity") || strings.Contains(body, "no liquidity") {
		return ErrNoRoute
	}
	if strings.Contains(body, "sellamount") && strings.Contains(body, "greater than") {
		return ErrZeroAmountIn
	}
	return err
}

func summarizeSources(resp zeroXQuoteResponse) string {
	var names []string
	for _, src := range resp.Sources {
		if src.Proportion != "0" {
			names = append(names, src.Name)
		}
	}
	return strings.Join(names, "+")
}
