package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/terminal-bench/ticketvault/internal/models"
	"github.com/terminal-bench/ticketvault/internal/repository"
)

// TicketReader is the ticket query surface the handler needs.
type TicketReader interface {
	List(ctx context.Context, tenantID string, filter repository.ListFilter, page, pageSize int) ([]models.Ticket, error)
	Urgent(ctx context.Context, tenantID string, limit int) ([]models.Ticket, error)
	Get(ctx context.Context, tenantID, externalID string) (*models.Ticket, error)
}

// HistoryReader serves ticket change history.
type HistoryReader interface {
	History(ctx context.Context, tenantID, ticketID string, limit int) ([]models.TicketHistoryEntry, error)
}

// TicketHandler handles ticket query requests.
type TicketHandler struct {
	tickets TicketReader
	history HistoryReader
}

// NewTicketHandler creates a ticket handler.
func NewTicketHandler(tickets TicketReader, history HistoryReader) *TicketHandler {
	return &TicketHandler{tickets: tickets, history: history}
}

// List handles GET /tickets.
func (h *TicketHandler) List(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	page, err := intQuery(c, "page", 1)
	if err != nil || page < 1 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "page must be >= 1"})
		return
	}
	pageSize, err := intQuery(c, "page_size", 20)
	if err != nil || pageSize < 1 || pageSize > 100 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "page_size must be between 1 and 100"})
		return
	}

	filter := repository.ListFilter{
		Status:  c.Query("status"),
		Urgency: c.Query("urgency"),
		Source:  c.Query("source"),
	}

	tickets, err := h.tickets.List(c.Request.Context(), tenantID, filter, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// Urgent handles GET /tickets/urgent.
func (h *TicketHandler) Urgent(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	tickets, err := h.tickets.Urgent(c.Request.Context(), tenantID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list urgent tickets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// Get handles GET /tickets/:external_id.
func (h *TicketHandler) Get(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	ticket, err := h.tickets.Get(c.Request.Context(), tenantID, c.Param("external_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get ticket"})
		return
	}
	if ticket == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// History handles GET /tickets/:external_id/history.
func (h *TicketHandler) History(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	limit, err := intQuery(c, "limit", 50)
	if err != nil || limit < 1 || limit > 200 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "limit must be between 1 and 200"})
		return
	}

	ticketID := c.Param("external_id")
	entries, err := h.history.History(c.Request.Context(), tenantID, ticketID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get ticket history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket_id": ticketID, "history": entries})
}

func requireTenantID(c *gin.Context) (string, bool) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "tenant_id is required"})
		return "", false
	}
	return tenantID, true
}

func intQuery(c *gin.Context, name string, defaultValue int) (int, error) {
	value := c.Query(name)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
