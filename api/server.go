// Package api exposes the engine over HTTP: order entry, account and
// position queries, safety controls, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SamoraDC/Phantom-Flow/broker/paper"
	"github.com/SamoraDC/Phantom-Flow/journal"
	"github.com/SamoraDC/Phantom-Flow/safety"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Server is the HTTP surface over the paper broker and its safety guard.
type Server struct {
	broker  *paper.Broker
	guard   *safety.Guard
	journal journal.Journal
	log     *zap.Logger

	engine  *gin.Engine
	srv     *http.Server
	started time.Time
}

// New builds the server and its routes. A nil logger is replaced with a
// no-op.
func New(addr string, b *paper.Broker, g *safety.Guard, j journal.Journal, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		broker:  b,
		guard:   g,
		journal: j,
		log:     log,
		engine:  engine,
		srv:     &http.Server{Addr: addr, Handler: engine},
		started: time.Now().UTC(),
	}

	engine.GET("/health", s.health)
	engine.GET("/status", s.status)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/account", s.account)
	engine.GET("/positions", s.positions)
	engine.GET("/positions/:symbol", s.position)
	engine.GET("/trades", s.trades)
	engine.POST("/orders", s.placeOrder)

	engine.GET("/safety", s.safetyStatus)
	engine.POST("/safety/kill-switch", s.killSwitch)
	engine.POST("/safety/circuit-breaker/reset", s.resetCircuitBreaker)

	return s
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("api server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
