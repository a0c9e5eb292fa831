package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/terminal-bench/ticketvault/internal/models"
	"github.com/terminal-bench/ticketvault/internal/services/ingest"
	"github.com/terminal-bench/ticketvault/internal/services/lock"
)

// IngestRunner is the coordinator surface the handler needs.
type IngestRunner interface {
	Run(ctx context.Context, tenantID string) (ingest.Result, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	JobStatus(ctx context.Context, jobID string) (*models.IngestionJob, error)
	TenantStatus(ctx context.Context, tenantID string) (*models.IngestionJob, error)
}

// LockInspector reports lock state for a resource.
type LockInspector interface {
	Status(ctx context.Context, resourceID string) (*lock.Status, error)
}

// IngestHandler handles ingestion lifecycle requests.
type IngestHandler struct {
	runner IngestRunner
	locks  LockInspector
}

// NewIngestHandler creates an ingestion handler.
func NewIngestHandler(runner IngestRunner, locks LockInspector) *IngestHandler {
	return &IngestHandler{runner: runner, locks: locks}
}

// Run handles POST /ingest/run. It blocks until the run terminates and
// returns 409 with an X-Job-ID header when a run is already active.
func (h *IngestHandler) Run(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	result, err := h.runner.Run(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if result.Status == ingest.StatusAlreadyRunning {
		c.Header("X-Job-ID", result.JobID)
		c.JSON(http.StatusConflict, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Status handles GET /ingest/status: the tenant's running job, or idle.
func (h *IngestHandler) Status(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	job, err := h.runner.TenantStatus(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get ingestion status"})
		return
	}
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"status": "idle", "tenant_id": tenantID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":     job.JobID,
		"tenant_id":  job.TenantID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	})
}

// Progress handles GET /ingest/progress/:job_id.
func (h *IngestHandler) Progress(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.runner.JobStatus(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// Cancel handles DELETE /ingest/:job_id.
func (h *IngestHandler) Cancel(c *gin.Context) {
	jobID := c.Param("job_id")

	cancelled, err := h.runner.Cancel(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		return
	}
	if !cancelled {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found or already completed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "job_id": jobID})
}

// LockStatus handles GET /ingest/lock/:tenant_id.
func (h *IngestHandler) LockStatus(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	status, err := h.locks.Status(c.Request.Context(), "ingest:"+tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get lock status"})
		return
	}
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"locked": false, "tenant_id": tenantID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"locked":      !status.IsExpired,
		"resource_id": status.ResourceID,
		"owner_id":    status.OwnerID,
		"acquired_at": status.AcquiredAt,
		"expires_at":  status.ExpiresAt,
		"is_expired":  status.IsExpired,
	})
}
