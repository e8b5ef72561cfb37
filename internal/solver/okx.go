package solver

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gatti/clamm-zap/internal/contract"
)

// OKXSolver quotes through the OKX DEX aggregator
type OKXSolver struct {
	*aggregatorClient
	baseURL string
	apiKey  string
}

// okxSwapResponse is the OKX aggregator envelope. A non-zero code with a
// 200 status is how OKX reports routing failures.
type okxSwapResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		RouterResult struct {
			ToTokenAmount string `json:"toTokenAmount"`
			Router        string `json:"router"`
		} `json:"routerResult"`
		Tx struct {
			To   string `json:"to"`
			Data string `json:"data"`
		} `json:"tx"`
	} `json:"data"`
}

// NewOKXSolver creates an OKX-backed solver
func NewOKXSolver(cfg AggregatorConfig) *OKXSolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.okx.com"
	}

	return &OKXSolver{
		aggregatorClient: newAggregatorClient(IDOKX, cfg),
		baseURL:          cfg.BaseURL,
		apiKey:           cfg.APIKey,
	}
}

// ID returns the solver identifier
func (s *OKXSolver) ID() ID {
	return IDOKX
}

// Quote fetches OKX router calldata for the requested swap
func (s *OKXSolver) Quote(ctx context.Context, req SwapRequest) (*SolvedSwap, error) {
	if err := requireAmount(req); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("chainId", fmt.Sprintf("%d", req.ChainID))
	query.Set("fromTokenAddress", strings.ToLower(req.TokenIn.Hex()))
	query.Set("toTokenAddress", strings.ToLower(req.TokenOut.Hex()))
	query.Set("amount", req.AmountIn.String())
	query.Set("slippage", fmt.Sprintf("%g", req.Slippage))
	query.Set("userWalletAddress", strings.ToLower(req.Taker.Hex()))

	endpoint := fmt.Sprintf("%s/api/v5/dex/aggregator/swap?%s", s.baseURL, query.Encode())

	headers := map[string]string{}
	if s.apiKey != "" {
		headers["OK-ACCESS-KEY"] = s.apiKey
	}

	var resp okxSwapResponse
	if err := s.getJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, err
	}

	if resp.Code != "0" {
		msg := strings.ToLower(resp.Msg)
		if strings.Contains(msg, "insufficient liquidity") || strings.Contains(msg, "no best route") {
			return nil, ErrNoRoute
		}
		return nil, fmt.Errorf("okx: api error code %s: %s", resp.Code, resp.Msg)
	}
	if len(resp.Data) == 0 {
		return nil, ErrNoRoute
	}

	entry := resp.Data[0]

	amountOut, ok := new(big.Int).SetString(entry.RouterResult.ToTokenAmount, 10)
	if !ok {
		return nil, fmt.Errorf("okx: invalid toTokenAmount %q", entry.RouterResult.ToTokenAmount)
	}
	if amountOut.Sign() == 0 {
		return nil, ErrNoRoute
	}

	data, err := hexutil.Decode(entry.Tx.Data)
	if err != nil {
		return nil, fmt.Errorf("okx: invalid tx data: %w", err)
	}

	router := common.HexToAddress(entry.Tx.To)

	return &SolvedSwap{
		Solver:    IDOKX,
		AmountOut: amountOut,
		Payload: contract.SwapPayload{
			Target:        router,
			ApproveTarget: router,
			Data:          data,
		},
		Route: entry.RouterResult.Router,
	}, nil
}
