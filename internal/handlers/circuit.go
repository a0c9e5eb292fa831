package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/terminal-bench/ticketvault/pkg/circuit"
)

// CircuitHandler exposes circuit breaker state for operators.
type CircuitHandler struct {
	breakers *circuit.Registry
}

// NewCircuitHandler creates a circuit breaker handler.
func NewCircuitHandler(breakers *circuit.Registry) *CircuitHandler {
	return &CircuitHandler{breakers: breakers}
}

// Status handles GET /circuit/:name/status.
func (h *CircuitHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.breakers.Get(c.Param("name")).Status())
}

// Reset handles POST /circuit/:name/reset.
func (h *CircuitHandler) Reset(c *gin.Context) {
	name := c.Param("name")
	h.breakers.Get(name).Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset", "name": name})
}
