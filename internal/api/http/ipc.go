package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultInvokeTimeout = 30 * time.Second
	maxInvokeTimeout     = 5 * time.Minute
)

// InvokeRequest is the body of POST /ipc/invoke and /ipc/broadcast
type InvokeRequest struct {
	Channel   string `json:"channel" binding:"required"`
	Args      []any  `json:"args"`
	TimeoutMs int64  `json:"timeoutMs"`
}

// ListTargets lists connected IPC targets
func (h *Handlers) ListTargets(c *gin.Context) {
	targets := h.hub.Targets()
	c.JSON(http.StatusOK, gin.H{"targets": targets, "count": len(targets)})
}

// Invoke relays a request to every target and returns the first reply
func (h *Handlers) Invoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "channel is required")
		return
	}

	timeout := defaultInvokeTimeout
	if req.TimeoutMs > 0 {
		timeout = min(time.Duration(req.TimeoutMs)*time.Millisecond, maxInvokeTimeout)
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	result, err := h.hub.Invoke(ctx, req.Channel, req.Args...)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "result": result})
}

// Broadcast sends an event to every target without waiting for replies
func (h *Handlers) Broadcast(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "channel is required")
		return
	}

	delivered := h.hub.Broadcast(req.Channel, req.Args...)
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "delivered": delivered})
}
