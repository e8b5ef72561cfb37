// Package api exposes the solver pipeline over HTTP. Callers supply the
// pool snapshot and position data in the request body; the service owns
// no position state.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gatti/clamm-zap/internal/chain"
	"github.com/gatti/clamm-zap/internal/optimal"
	"github.com/gatti/clamm-zap/internal/platform/observability"
	"github.com/gatti/clamm-zap/internal/solver"
)

// Server wires the engine into HTTP handlers
type Server struct {
	engine  *optimal.Engine
	solvers map[solver.ID]solver.Solver
	order   []solver.ID
	clients *chain.ClientPool
	logger  *observability.Logger
}

// ServerConfig holds server dependencies. Solvers are registered in
// priority order; that order is the candidate tie-break.
type ServerConfig struct {
	Engine  *optimal.Engine
	Solvers []solver.Solver
	Clients *chain.ClientPool
	Logger  *observability.Logger
}

// NewServer creates the API server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		engine:  cfg.Engine,
		solvers: make(map[solver.ID]solver.Solver, len(cfg.Solvers)),
		clients: cfg.Clients,
		logger:  cfg.Logger,
	}
	for _, sv := range cfg.Solvers {
		s.solvers[sv.ID()] = sv
		s.order = append(s.order, sv.ID())
	}
	return s
}

// Router builds the gin router
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/v1/solve")
	{
		v1.POST("/mint", s.handleMint)
		v1.POST("/increase", s.handleIncrease)
		v1.POST("/decrease", s.handleDecrease)
		v1.POST("/rebalance", s.handleRebalance)
		v1.POST("/reinvest", s.handleReinvest)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}

	if s.clients != nil && s.clients.HealthyCount() == 0 {
		status = http.StatusServiceUnavailable
		body = gin.H{"status": "degraded", "reason": "no healthy rpc endpoints"}
	}

	c.JSON(status, body)
}

// selectSolvers resolves the request's allow-list against the registered
// solvers, preserving registration order. An empty allow-list selects all.
func (s *Server) selectSolvers(allowed []string) []solver.Solver {
	if len(allowed) == 0 {
		out := make([]solver.Solver, 0, len(s.order))
		for _, id := range s.order {
			out = append(out, s.solvers[id])
		}
		return out
	}

	allow := make(map[solver.ID]bool, len(allowed))
	for _, id := range allowed {
		allow[solver.ID(id)] = true
	}

	out := make([]solver.Solver, 0, len(allowed))
	for _, id := range s.order {
		if allow[id] {
			out = append(out, s.solvers[id])
		}
	}
	return out
}
