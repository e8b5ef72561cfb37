package api

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/gatti/clamm-zap/internal/optimal"
	"github.com/gatti/clamm-zap/internal/pool"
)

// tokenBody describes one pool token in a request
type tokenBody struct {
	Address  string `json:"address" binding:"required"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals" binding:"required"`
}

// poolBody describes the pool snapshot the solve is planned against
type poolBody struct {
	Token0           tokenBody `json:"token0" binding:"required"`
	Token1           tokenBody `json:"token1" binding:"required"`
	FeeOrTickSpacing int32     `json:"feeOrTickSpacing" binding:"required"`
	SqrtPriceX96     string    `json:"sqrtPriceX96" binding:"required"`
	Tick             int32     `json:"tick"`
	Liquidity        string    `json:"liquidity"`
}

// positionBody describes an existing position for the position-bound flows
type positionBody struct {
	TokenID   string `json:"tokenId" binding:"required"`
	TickLower int32  `json:"tickLower"`
	TickUpper int32  `json:"tickUpper"`
	Liquidity string `json:"liquidity"`
	FeesOwed0 string `json:"feesOwed0"`
	FeesOwed1 string `json:"feesOwed1"`
}

// candidateBody is one decorated candidate in a response
type candidateBody struct {
	Solver          string   `json:"solver"`
	Liquidity       string   `json:"liquidity"`
	Amount0         string   `json:"amount0"`
	Amount1         string   `json:"amount1"`
	AmountIn        string   `json:"amountIn"`
	AmountOut       string   `json:"amountOut"`
	MinAmountOut    string   `json:"minAmountOut"`
	SwapTarget      string   `json:"swapTarget,omitempty"`
	ApproveTarget   string   `json:"approveTarget,omitempty"`
	SwapData        string   `json:"swapData,omitempty"`
	ZeroForOne      bool     `json:"zeroForOne"`
	Token0FeeAmount string   `json:"token0FeeAmount"`
	Token1FeeAmount string   `json:"token1FeeAmount"`
	FeeBips         string   `json:"feeBips"`
	FeeUSD          float64  `json:"feeUsd,omitempty"`
	PriceImpact     float64  `json:"priceImpact"`
	Route           string   `json:"route,omitempty"`
	Path            []string `json:"path,omitempty"`
	GasCostWei      string   `json:"gasCostWei"`
}

type mintRequest struct {
	Pool           poolBody `json:"pool" binding:"required"`
	TickLower      int32    `json:"tickLower"`
	TickUpper      int32    `json:"tickUpper"`
	Amount0Desired string   `json:"amount0Desired" binding:"required"`
	Amount1Desired string   `json:"amount1Desired" binding:"required"`
	Slippage       float64  `json:"slippage"`
	Solvers        []string `json:"solvers"`
	From           string   `json:"from"`
}

func (s *Server) handleMint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snapshot, err := parsePool(req.Pool)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount0, err := parseAmount("amount0Desired", req.Amount0Desired)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount1, err := parseAmount("amount1Desired", req.Amount1Desired)
	if err != nil {
		badRequest(c, err)
		return
	}

	candidates, err := s.engine.Mint(c.Request.Context(), optimal.MintParams{
		Snapshot:       snapshot,
		TickLower:      req.TickLower,
		TickUpper:      req.TickUpper,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Slippage:       req.Slippage,
		Solvers:        s.selectSolvers(req.Solvers),
		From:           common.HexToAddress(req.From),
	})
	if err != nil {
		s.fail(c, "mint solve failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": renderCandidates(candidates)})
}

type increaseRequest struct {
	Pool           poolBody     `json:"pool" binding:"required"`
	Position       positionBody `json:"position" binding:"required"`
	Amount0Desired string       `json:"amount0Desired" binding:"required"`
	Amount1Desired string       `json:"amount1Desired" binding:"required"`
	Slippage       float64      `json:"slippage"`
	Solvers        []string     `json:"solvers"`
	From           string       `json:"from"`
}

func (s *Server) handleIncrease(c *gin.Context) {
	var req increaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snapshot, err := parsePool(req.Pool)
	if err != nil {
		badRequest(c, err)
		return
	}
	position, err := parsePosition(req.Position, snapshot.Key)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount0, err := parseAmount("amount0Desired", req.Amount0Desired)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount1, err := parseAmount("amount1Desired", req.Amount1Desired)
	if err != nil {
		badRequest(c, err)
		return
	}

	candidates, err := s.engine.Increase(c.Request.Context(), optimal.IncreaseParams{
		Position:       position,
		Snapshot:       snapshot,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Slippage:       req.Slippage,
		Solvers:        s.selectSolvers(req.Solvers),
		From:           common.HexToAddress(req.From),
	})
	if err != nil {
		s.fail(c, "increase solve failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": renderCandidates(candidates)})
}

type decreaseRequest struct {
	Pool     poolBody     `json:"pool" binding:"required"`
	Position positionBody `json:"position" binding:"required"`
	Amount0  string       `json:"amount0" binding:"required"`
	Amount1  string       `json:"amount1" binding:"required"`
	TokenOut string       `json:"tokenOut" binding:"required"`
	Slippage float64      `json:"slippage"`
	Solvers  []string     `json:"solvers"`
	From     string       `json:"from"`
}

func (s *Server) handleDecrease(c *gin.Context) {
	var req decreaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snapshot, err := parsePool(req.Pool)
	if err != nil {
		badRequest(c, err)
		return
	}
	position, err := parsePosition(req.Position, snapshot.Key)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount0, err := parseAmount("amount0", req.Amount0)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount1, err := parseAmount("amount1", req.Amount1)
	if err != nil {
		badRequest(c, err)
		return
	}
	if !common.IsHexAddress(req.TokenOut) {
		badRequest(c, fmt.Errorf("invalid tokenOut address"))
		return
	}

	result, err := s.engine.Decrease(c.Request.Context(), optimal.DecreaseParams{
		Position: position,
		Snapshot: snapshot,
		Amount0:  amount0,
		Amount1:  amount1,
		TokenOut: common.HexToAddress(req.TokenOut),
		Slippage: req.Slippage,
		Solvers:  s.selectSolvers(req.Solvers),
		From:     common.HexToAddress(req.From),
	})
	if err != nil {
		s.fail(c, "decrease solve failed", err)
		return
	}

	legs := make([]gin.H, 0, len(result.Legs))
	for _, leg := range result.Legs {
		legs = append(legs, gin.H{
			"tokenIn":    leg.TokenIn.Hex(),
			"amountIn":   bigString(leg.AmountIn),
			"candidates": renderCandidates(leg.Candidates),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"legs":           legs,
		"amountOutTotal": bigString(result.AmountOutTotal),
	})
}

type rebalanceRequest struct {
	Pool         poolBody     `json:"pool" binding:"required"`
	Position     positionBody `json:"position" binding:"required"`
	NewTickLower int32        `json:"newTickLower"`
	NewTickUpper int32        `json:"newTickUpper"`
	Amount0      string       `json:"amount0" binding:"required"`
	Amount1      string       `json:"amount1" binding:"required"`
	Slippage     float64      `json:"slippage"`
	Solvers      []string     `json:"solvers"`
	From         string       `json:"from"`
	ReimburseGas bool         `json:"reimburseGas"`
}

func (s *Server) handleRebalance(c *gin.Context) {
	var req rebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snapshot, err := parsePool(req.Pool)
	if err != nil {
		badRequest(c, err)
		return
	}
	position, err := parsePosition(req.Position, snapshot.Key)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount0, err := parseAmount("amount0", req.Amount0)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount1, err := parseAmount("amount1", req.Amount1)
	if err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.engine.Rebalance(c.Request.Context(), optimal.RebalanceParams{
		Position:     position,
		Snapshot:     snapshot,
		NewTickLower: req.NewTickLower,
		NewTickUpper: req.NewTickUpper,
		Amount0:      amount0,
		Amount1:      amount1,
		Slippage:     req.Slippage,
		Solvers:      s.selectSolvers(req.Solvers),
		From:         common.HexToAddress(req.From),
		ReimburseGas: req.ReimburseGas,
	})
	if err != nil {
		s.fail(c, "rebalance solve failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"candidates": renderCandidates(result.Candidates),
		"feeBips":    bigString(result.FeeBips),
		"feeUsd":     result.FeeUSD.Float64(),
	})
}

type reinvestRequest struct {
	Pool     poolBody     `json:"pool" binding:"required"`
	Position positionBody `json:"position" binding:"required"`
	Slippage float64      `json:"slippage"`
	Solvers  []string     `json:"solvers"`
	From     string       `json:"from"`
}

func (s *Server) handleReinvest(c *gin.Context) {
	var req reinvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	snapshot, err := parsePool(req.Pool)
	if err != nil {
		badRequest(c, err)
		return
	}
	position, err := parsePosition(req.Position, snapshot.Key)
	if err != nil {
		badRequest(c, err)
		return
	}

	candidates, err := s.engine.Reinvest(c.Request.Context(), optimal.ReinvestParams{
		Position: position,
		Snapshot: snapshot,
		Slippage: req.Slippage,
		Solvers:  s.selectSolvers(req.Solvers),
		From:     common.HexToAddress(req.From),
	})
	if err != nil {
		s.fail(c, "reinvest solve failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": renderCandidates(candidates)})
}

func (s *Server) fail(c *gin.Context, msg string, err error) {
	if s.logger != nil {
		s.logger.LogError(c.Request.Context(), msg, err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func parsePool(body poolBody) (*pool.Snapshot, error) {
	token0, err := parseToken(body.Token0)
	if err != nil {
		return nil, err
	}
	token1, err := parseToken(body.Token1)
	if err != nil {
		return nil, err
	}

	sqrtPrice, err := parseAmount("sqrtPriceX96", body.SqrtPriceX96)
	if err != nil {
		return nil, err
	}

	liquidity := big.NewInt(0)
	if body.Liquidity != "" {
		if liquidity, err = parseAmount("liquidity", body.Liquidity); err != nil {
			return nil, err
		}
	}

	return &pool.Snapshot{
		Key: pool.Key{
			Token0:           token0,
			Token1:           token1,
			FeeOrTickSpacing: body.FeeOrTickSpacing,
		},
		SqrtPriceX96: sqrtPrice,
		Tick:         body.Tick,
		Liquidity:    liquidity,
	}, nil
}

func parseToken(body tokenBody) (pool.Token, error) {
	if !common.IsHexAddress(body.Address) {
		return pool.Token{}, fmt.Errorf("invalid token address %q", body.Address)
	}
	return pool.Token{
		Address:  common.HexToAddress(body.Address),
		Symbol:   body.Symbol,
		Decimals: body.Decimals,
	}, nil
}

func parsePosition(body positionBody, key pool.Key) (*pool.Position, error) {
	tokenID, err := parseAmount("tokenId", body.TokenID)
	if err != nil {
		return nil, err
	}

	position := &pool.Position{
		TokenID:   tokenID,
		Key:       key,
		TickLower: body.TickLower,
		TickUpper: body.TickUpper,
		Liquidity: big.NewInt(0),
		FeesOwed0: big.NewInt(0),
		FeesOwed1: big.NewInt(0),
	}

	for name, field := range map[string]struct {
		raw string
		out **big.Int
	}{
		"liquidity": {body.Liquidity, &position.Liquidity},
		"feesOwed0": {body.FeesOwed0, &position.FeesOwed0},
		"feesOwed1": {body.FeesOwed1, &position.FeesOwed1},
	} {
		if field.raw == "" {
			continue
		}
		parsed, err := parseAmount(name, field.raw)
		if err != nil {
			return nil, err
		}
		*field.out = parsed
	}

	return position, nil
}

func parseAmount(name, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", name)
	}
	return v, nil
}

func renderCandidates(candidates []optimal.Candidate) []candidateBody {
	out := make([]candidateBody, 0, len(candidates))
	for _, c := range candidates {
		body := candidateBody{
			Solver:          string(c.Solver),
			Liquidity:       bigString(c.Liquidity),
			Amount0:         bigString(c.Amount0),
			Amount1:         bigString(c.Amount1),
			AmountIn:        bigString(c.AmountIn),
			AmountOut:       bigString(c.AmountOut),
			MinAmountOut:    bigString(c.MinAmountOut),
			ZeroForOne:      c.ZeroForOne,
			Token0FeeAmount: bigString(c.Token0FeeAmount),
			Token1FeeAmount: bigString(c.Token1FeeAmount),
			FeeBips:         bigString(c.FeeBips),
			FeeUSD:          c.FeeUSD.Float64(),
			PriceImpact:     c.PriceImpact,
			Route:           c.Route,
			GasCostWei:      bigString(c.GasCost),
		}
		if !c.Swap.IsEmpty() {
			body.SwapTarget = c.Swap.Target.Hex()
			body.ApproveTarget = c.Swap.ApproveTarget.Hex()
			body.SwapData = "0x" + common.Bytes2Hex(c.Swap.Data)
		}
		for _, hop := range c.Path {
			body.Path = append(body.Path, hop.Hex())
		}
		out = append(out, body)
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
