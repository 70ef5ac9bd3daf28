// Package server exposes the page bridge over HTTP for the tracker web app
package server

import (
	"net/http"

	"cart-autofill/internal/types"
	"cart-autofill/messaging"

	"github.com/gin-gonic/gin"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	bridge   *messaging.Bridge
	progress *messaging.ProgressTracker
	logger   types.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(bridge *messaging.Bridge, progress *messaging.ProgressTracker, logger types.Logger) *Handler {
	return &Handler{
		bridge:   bridge,
		progress: progress,
		logger:   logger,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "cart-autofill",
	})
}

// StartAutomation relays a startAutomation envelope through the bridge and
// answers with the automationResponse envelope
func (h *Handler) StartAutomation(c *gin.Context) {
	var env messaging.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	reply, ok := h.bridge.Receive(c.Request.Context(), c.GetHeader("Origin"), env)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": types.ErrForbidden.Error()})
		return
	}

	c.JSON(statusFor(reply), reply)
}

// statusFor maps the user-facing errors of a reply onto HTTP status codes
func statusFor(reply messaging.Envelope) int {
	switch reply.Error {
	case "":
		return http.StatusOK
	case types.MsgAlreadyInProgress:
		return http.StatusConflict
	case types.MsgConnectFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// Progress returns the latest progress update for ?site=
func (h *Handler) Progress(c *gin.Context) {
	site, err := types.ParseSite(c.Query("site"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update, ok := h.progress.Latest(site)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no automation has reported progress for " + string(site)})
		return
	}
	c.JSON(http.StatusOK, update)
}
