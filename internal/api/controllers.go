package api

import (
	"net/http"
	"strconv"

	"signal-trader/internal/executor"

	"github.com/gin-gonic/gin"
)

func (s *Server) getStatus(c *gin.Context) {
	pos := s.Engine.Position()
	c.JSON(http.StatusOK, gin.H{
		"venue":    s.Meta.Venue,
		"symbol":   s.Meta.Symbol,
		"version":  s.Meta.Version,
		"position": pos,
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics not enabled"})
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) getPosition(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Position())
}

func (s *Server) getOrders(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not enabled"})
		return
	}
	orders, err := s.DB.ListOrders(c.Request.Context(), listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getSignals(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not enabled"})
		return
	}
	signals, err := s.DB.ListSignals(c.Request.Context(), listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) getBalance(c *gin.Context) {
	if s.BalanceMgr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "balance manager not enabled"})
		return
	}
	c.JSON(http.StatusOK, s.BalanceMgr.Get())
}

// closePosition is the operator's manual flatten: same path as the engine's
// internal emergency close.
func (s *Server) closePosition(c *gin.Context) {
	if err := s.Engine.EmergencyClose(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  string(executor.CodeEmergencyCloseFailed),
			"error": "close failed, position state may be stale",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "closed",
		"position": s.Engine.Position(),
	})
}

func (s *Server) runReconcile(c *gin.Context) {
	if s.Reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation not enabled"})
		return
	}
	report, err := s.Reconciler.Reconcile(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func listLimit(c *gin.Context) int {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return limit
}
