package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SamoraDC/Phantom-Flow/broker"
	"github.com/SamoraDC/Phantom-Flow/journal"
	"github.com/SamoraDC/Phantom-Flow/metrics"
	"github.com/SamoraDC/Phantom-Flow/safety"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	acct := s.broker.Account()
	state := s.guard.Status()

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":  int(time.Since(s.started).Seconds()),
		"balance":         acct.Balance,
		"equity":          acct.Equity,
		"total_trades":    acct.TotalTrades,
		"win_rate":        acct.WinRate(),
		"open_positions":  len(s.broker.Positions()),
		"kill_switch":     state.KillSwitchActive,
		"circuit_breaker": state.CircuitBreakerActive,
	})
}

func (s *Server) account(c *gin.Context) {
	c.JSON(http.StatusOK, s.broker.Account())
}

func (s *Server) positions(c *gin.Context) {
	c.JSON(http.StatusOK, s.broker.Positions())
}

func (s *Server) position(c *gin.Context) {
	symbol := c.Param("symbol")
	pos, ok := s.broker.Position(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no position for symbol " + symbol})
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) trades(c *gin.Context) {
	q := journal.TradeQuery{Symbol: c.Query("symbol")}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		q.Limit = limit
	}

	trades, err := s.journal.Trades(c.Request.Context(), q)
	if err != nil {
		s.log.Error("trade query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trade query failed"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

type orderRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Type     string `json:"type"`
	Quantity string `json:"quantity" binding:"required"`
	Price    string `json:"price" binding:"required"`
}

func (s *Server) placeOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	side, err := broker.ParseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderType := broker.MarketOrder
	switch req.Type {
	case "", string(broker.MarketOrder):
	case string(broker.LimitOrder):
		orderType = broker.LimitOrder
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be MARKET or LIMIT"})
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity: " + req.Quantity})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price: " + req.Price})
		return
	}

	if err := s.guard.ValidateOrder(req.Symbol, price, quantity, s.broker.PositionValue(req.Symbol)); err != nil {
		s.rejectOrder(c, err)
		return
	}

	order, err := s.broker.SubmitOrder(c.Request.Context(), broker.OrderRequest{
		Symbol:   req.Symbol,
		Side:     side,
		Type:     orderType,
		Quantity: quantity,
		Price:    price,
	})
	if err != nil {
		s.rejectOrder(c, err)
		return
	}

	// Limit orders rest until an execution path fills them; only market
	// orders execute inline against the reference price.
	if orderType != broker.MarketOrder {
		c.JSON(http.StatusCreated, gin.H{"order": order})
		return
	}

	trade, err := s.broker.ExecuteMarketOrder(c.Request.Context(), order, price)
	if err != nil {
		s.log.Error("market execution failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "execution failed", "order": order})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order, "trade": trade})
}

// rejectOrder maps admission failures to status codes and counts them.
func (s *Server) rejectOrder(c *gin.Context, err error) {
	var verr *safety.ViolationError
	if errors.As(err, &verr) {
		metrics.SafetyViolations.WithLabelValues(string(verr.Kind)).Inc()
		metrics.OrdersRejected.WithLabelValues(string(verr.Kind)).Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "kind": string(verr.Kind)})
		return
	}

	var rerr *broker.RejectError
	if errors.As(err, &rerr) {
		metrics.OrdersRejected.WithLabelValues("risk_reject").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if errors.Is(err, broker.ErrDailyTradeLimit) {
		metrics.OrdersRejected.WithLabelValues("daily_limit").Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}

	s.log.Error("order submission failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "order submission failed"})
}

func (s *Server) safetyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.guard.Status())
}

type killSwitchRequest struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

func (s *Server) killSwitch(c *gin.Context) {
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Active {
		reason := req.Reason
		if reason == "" {
			reason = "manual activation"
		}
		if err := s.guard.ActivateKillSwitch(reason); err != nil {
			// The switch is engaged even when hooks fail; report both.
			metrics.KillSwitchActive.Set(1)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
				"state": s.guard.Status(),
			})
			return
		}
		metrics.KillSwitchActive.Set(1)
	} else {
		s.guard.DeactivateKillSwitch()
		metrics.KillSwitchActive.Set(0)
	}

	c.JSON(http.StatusOK, s.guard.Status())
}

func (s *Server) resetCircuitBreaker(c *gin.Context) {
	s.guard.ResetCircuitBreaker()
	metrics.CircuitBreakerActive.Set(0)
	c.JSON(http.StatusOK, s.guard.Status())
}
