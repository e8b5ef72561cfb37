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

// OneInchSolver quotes through the 1inch aggregation router v6
type OneInchSolver struct {
	*aggregatorClient
	baseURL string
	apiKey  string
}

// oneInchSwapResponse is the subset of the 1inch swap API response we use
type oneInchSwapResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"tx"`
	Protocols [][][]struct {
		Name string `json:"name"`
		Part float64 `json:"part"`
	} `json:"protocols"`
	Description string `json:"description"` // populated on error replies
}

// NewOneInchSolver creates a 1inch-backed solver
func NewOneInchSolver(cfg AggregatorConfig) *OneInchSolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.1inch.dev"
	}

	return &OneInchSolver{
		aggregatorClient: newAggregatorClient(IDOneInch, cfg),
		baseURL:          cfg.BaseURL,
		apiKey:           cfg.APIKey,
	}
}

// ID returns the solver identifier
func (s *OneInchSolver) ID() ID {
	return IDOneInch
}

// Quote fetches router calldata for the requested swap. The automation
// contract executes the calldata, so it is both taker and spender.
func (s *OneInchSolver) Quote(ctx context.Context, req SwapRequest) (*SolvedSwap, error) {
	if err := requireAmount(req); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("src", strings.ToLower(req.TokenIn.Hex()))
	query.Set("dst", strings.ToLower(req.TokenOut.Hex()))
	query.Set("amount", req.AmountIn.String())
	query.Set("from", strings.ToLower(req.Taker.Hex()))
	query.Set("slippage", fmt.Sprintf("%g", req.Slippage*100))
	query.Set("disableEstimate", "true")

	endpoint := fmt.Sprintf("%s/swap/v6.0/%d/swap?%s", s.baseURL, req.ChainID, query.Encode())

	headers := map[string]string{}
	if s.apiKey != "" {
		headers["Authorization"] = "Bearer " + s.apiKey
	}

	var resp oneInchSwapResponse
	if err := s.getJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, classifyOneInchError(err)
	}

	amountOut, ok := new(big.Int).SetString(resp.DstAmount, 10)
	if !ok {
		return nil, fmt.Errorf("1inch: invalid dstAmount %q", resp.DstAmount)
	}
	if amountOut.Sign() == 0 {
		return nil, ErrNoRoute
	}

	data, err := hexutil.Decode(resp.Tx.Data)
	if err != nil {
		return nil, fmt.Errorf("1inch: invalid tx data: %w", err)
	}

	router := common.HexToAddress(resp.Tx.To)

	return &SolvedSwap{
		Solver:    IDOneInch,
		AmountOut: amountOut,
		Payload: contract.SwapPayload{
			Target:        router,
			ApproveTarget: router,
			Data:          data,
		},
		Route: summarizeProtocols(resp),
	}, nil
}

// classifyOneInchError maps 1inch error replies onto the shared taxonomy.
// "insufficient liquidity" and "cannot sync" replies are routing outcomes,
// not transport failures.
func classifyOneInchError(err error) error {
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	body := strings.ToLower(statusErr.body)
	if strings.Contains(body, "insufficient liquidity") || strings.Contains(body, "cannot find a route") {
		return ErrNoRoute
	}
	if strings.Contains(body, "amount must be") {
		return ErrZeroAmountIn
	}
	return err
}

func summarizeProtocols(resp oneInchSwapResponse) string {
	if len(resp.Protocols) == 0 || len(resp.Protocols[0]) == 0 {
		return ""
	}

	var names []string
	for _, hop := range resp.Protocols[0] {
		for _, part := range hop {
			names = append(names, part.Name)
		}
	}
	return strings.Join(names, ">")
}
