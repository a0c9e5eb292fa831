package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/terminal-bench/ticketvault/internal/models"
	"github.com/terminal-bench/ticketvault/internal/services/analytics"
	ticketsync "github.com/terminal-bench/ticketvault/internal/services/sync"
)

// StatsProvider computes tenant statistics.
type StatsProvider interface {
	GetTenantStats(ctx context.Context, tenantID string, from, to *time.Time) (*models.TenantStats, error)
}

// AnalyticsHandler handles tenant statistics requests.
type AnalyticsHandler struct {
	stats StatsProvider
}

// NewAnalyticsHandler creates an analytics handler.
func NewAnalyticsHandler(stats StatsProvider) *AnalyticsHandler {
	return &AnalyticsHandler{stats: stats}
}

// TenantStats handles GET /tenants/:tenant_id/stats. An aggregation that
// exceeds its server-side time limit yields 504.
func (h *AnalyticsHandler) TenantStats(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	from, ok := dateQuery(c, "from_date")
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to_date")
	if !ok {
		return
	}

	stats, err := h.stats.GetTenantStats(c.Request.Context(), tenantID, from, to)
	if err != nil {
		if errors.Is(err, analytics.ErrTimeout) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "stats aggregation took too long"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func dateQuery(c *gin.Context, name string) (*time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		return nil, true
	}

	t, err := ticketsync.ParseTimestamp(value)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": name + " must be an ISO timestamp"})
		return nil, false
	}
	return &t, true
}
