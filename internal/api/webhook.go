package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"signal-trader/internal/executor"
	"signal-trader/internal/monitor"
	"signal-trader/pkg/exchanges/common"

	"github.com/gin-gonic/gin"
)

// webhookRequest is the TradingView-style alert payload. The token may come
// in the body or in the X-Webhook-Token header.
type webhookRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// webhook accepts a trading signal and runs the execution pipeline
// synchronously; the response carries the structured result.
func (s *Server) webhook(c *gin.Context) {
	var req webhookRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}

	token := req.Token
	if token == "" {
		token = c.GetHeader("X-Webhook-Token")
	}
	if !tokenMatches(token, s.WebhookToken) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":  "INVALID_TOKEN",
			"error": "invalid webhook token",
		})
		return
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action != string(common.SideBuy) && action != string(common.SideSell) {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_ACTION",
			"error": "action must be buy or sell",
		})
		return
	}

	timer := monitor.NewTimer(nil)
	if s.Metrics != nil {
		timer = monitor.NewTimer(s.Metrics.SignalLatency)
	}
	res := s.Engine.ProcessSignal(c.Request.Context(), executor.Signal{
		ID:     c.GetString("RequestID"),
		Action: common.Side(action),
		Symbol: strings.TrimSpace(req.Symbol),
	})
	timer.Stop()

	c.JSON(statusForResult(res), res)
}

// tokenMatches compares in constant time; an unset server token rejects all.
func tokenMatches(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// statusForResult maps pipeline outcomes onto HTTP status codes. Partial
// success is still a 200: the caller's signal was acted on and the body says
// exactly what happened.
func statusForResult(res executor.Result) int {
	if res.Status != executor.StatusError {
		return http.StatusOK
	}
	switch res.Code {
	case executor.CodePositionConflict:
		return http.StatusConflict
	case executor.CodeInsufficientFunds, executor.CodeInsufficientSize, executor.CodeInactiveMarket:
		return http.StatusUnprocessableEntity
	case executor.CodeNetworkError, executor.CodeEmergencyCloseFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
