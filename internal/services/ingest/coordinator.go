// Package ingest runs ticket ingestion jobs: one distributed-lock-guarded,
// rate-limited, cancellable pagination loop per tenant, with idempotent
// upserts, deletion reconciliation and an audit trail.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/ticketvault/internal/models"
	"github.com/terminal-bench/ticketvault/internal/services/classify"
	ticketsync "github.com/terminal-bench/ticketvault/internal/services/sync"
)

// Run statuses returned to the API in addition to terminal job statuses.
const StatusAlreadyRunning = "already_running"

// Locker is the distributed lock surface the coordinator needs.
type Locker interface {
	Acquire(ctx context.Context, resourceID, ownerID string) (bool, error)
	Release(ctx context.Context, resourceID, ownerID string) (bool, error)
	Refresh(ctx context.Context, resourceID, ownerID string) (bool, error)
}

// JobStore persists job state and audit log entries.
type JobStore interface {
	Insert(ctx context.Context, job *models.IngestionJob) error
	UpdateProgress(ctx context.Context, jobID string, totalPages, processedPages, progress int) error
	Finish(ctx context.Context, jobID, status string, endedAt time.Time) error
	FindRunningByTenant(ctx context.Context, tenantID string) (*models.IngestionJob, error)
	FindByJobID(ctx context.Context, jobID string) (*models.IngestionJob, error)
	FindRunningByJobID(ctx context.Context, jobID string) (*models.IngestionJob, error)
	InsertLog(ctx context.Context, entry *models.IngestionLogEntry) error
}

// TicketWriter upserts assembled ticket documents.
type TicketWriter interface {
	Upsert(ctx context.Context, ticket *models.Ticket) (created, modified bool, err error)
}

// Syncer performs change detection and history recording.
type Syncer interface {
	SyncTicket(ctx context.Context, external models.ExternalTicket, tenantID string) (ticketsync.Result, error)
	DetectDeleted(ctx context.Context, tenantID string, observedExternalIDs []string) ([]string, error)
	MarkDeleted(ctx context.Context, tenantID string, externalIDs []string) (int64, error)
	RecordHistory(ctx context.Context, ticketID, tenantID, action string, changes map[string]models.FieldChange) error
}

// Notifier schedules fire-and-forget notifications.
type Notifier interface {
	Send(ticketID, tenantID, urgency, reason string)
}

// PageFetcher pulls pages from the external source.
type PageFetcher interface {
	FetchPage(ctx context.Context, tenantID string, page int) (*models.TicketPage, error)
}

// Limiter throttles outbound external calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Result summarises one ingestion run.
type Result struct {
	Status      string `json:"status"`
	JobID       string `json:"job_id"`
	NewIngested int    `json:"new_ingested"`
	Updated     int    `json:"updated"`
	Errors      int    `json:"errors"`
}

// Coordinator owns the ingestion job lifecycle for all tenants in this
// process. Cross-process exclusion comes from the distributed lock;
// cancellation flags are process-local and cooperative.
type Coordinator struct {
	lock     Locker
	jobs     JobStore
	tickets  TicketWriter
	syncer   Syncer
	notifier Notifier
	fetcher  PageFetcher
	limiter  Limiter
	now      func() time.Time

	mu          sync.Mutex
	cancelFlags map[string]bool
}

// NewCoordinator wires an ingestion coordinator.
func NewCoordinator(lock Locker, jobs JobStore, tickets TicketWriter, syncer Syncer, notifier Notifier, fetcher PageFetcher, limiter Limiter) *Coordinator {
	return &Coordinator{
		lock:        lock,
		jobs:        jobs,
		tickets:     tickets,
		syncer:      syncer,
		notifier:    notifier,
		fetcher:     fetcher,
		limiter:     limiter,
		now:         time.Now,
		cancelFlags: make(map[string]bool),
	}
}

// Run executes a full ingestion for a tenant and blocks until it terminates.
// When another run holds the tenant's lock it returns StatusAlreadyRunning
// with the running job's id and zero counters.
func (c *Coordinator) Run(ctx context.Context, tenantID string) (Result, error) {
	jobID := uuid.NewString()
	resource := "ingest:" + tenantID

	acquired, err := c.lock.Acquire(ctx, resource, jobID)
	if err != nil {
		return Result{}, fmt.Errorf("acquire ingestion lock: %w", err)
	}
	if !acquired {
		res := Result{Status: StatusAlreadyRunning}
		existing, err := c.jobs.FindRunningByTenant(ctx, tenantID)
		if err != nil {
			return Result{}, fmt.Errorf("lookup running job: %w", err)
		}
		if existing != nil {
			res.JobID = existing.JobID
		}
		return res, nil
	}

	startedAt := c.now().UTC()
	job := &models.IngestionJob{
		JobID:     jobID,
		TenantID:  tenantID,
		Status:    models.JobRunning,
		StartedAt: startedAt,
	}
	// Terminal bookkeeping and lock release must survive cancellation of the
	// caller's context, or a client disconnect would strand the job row at
	// running with no audit entry.
	finishCtx := context.WithoutCancel(ctx)

	if err := c.jobs.Insert(ctx, job); err != nil {
		if _, releaseErr := c.lock.Release(finishCtx, resource, jobID); releaseErr != nil {
			logrus.WithError(releaseErr).WithField("job_id", jobID).Error("failed to release lock")
		}
		return Result{}, fmt.Errorf("record job: %w", err)
	}

	c.setFlag(jobID)
	defer func() {
		if _, err := c.lock.Release(finishCtx, resource, jobID); err != nil {
			logrus.WithError(err).WithField("job_id", jobID).Error("failed to release lock")
		}
		c.clearFlag(jobID)
	}()

	log := logrus.WithFields(logrus.Fields{"tenant_id": tenantID, "job_id": jobID})
	log.Info("ingestion started")

	result := Result{JobID: jobID}
	var observedExternalIDs []string

	runErr := c.paginate(ctx, tenantID, jobID, &result, &observedExternalIDs, log)
	if runErr == nil {
		runErr = c.reconcileDeletions(ctx, tenantID, observedExternalIDs, log)
	}

	endedAt := c.now().UTC()

	if runErr != nil {
		if err := c.jobs.Finish(finishCtx, jobID, models.JobFailed, endedAt); err != nil {
			log.WithError(err).Error("failed to mark job failed")
		}
		c.writeAudit(finishCtx, tenantID, jobID, models.LogFailed, startedAt, endedAt, result, runErr.Error(), log)
		result.Status = models.JobFailed
		return result, runErr
	}

	finalStatus := models.JobCompleted
	if c.cancelled(jobID) {
		finalStatus = models.JobCancelled
	}
	if err := c.jobs.Finish(finishCtx, jobID, finalStatus, endedAt); err != nil {
		// The job row is not terminal; do not claim success.
		c.writeAudit(finishCtx, tenantID, jobID, models.LogFailed, startedAt, endedAt, result, err.Error(), log)
		result.Status = models.JobFailed
		return result, fmt.Errorf("mark job %s: %w", finalStatus, err)
	}

	logStatus := models.LogSuccess
	if result.Errors > 0 {
		logStatus = models.LogPartialSuccess
	}
	c.writeAudit(finishCtx, tenantID, jobID, logStatus, startedAt, endedAt, result, "", log)

	result.Status = finalStatus
	log.WithFields(logrus.Fields{
		"status":       finalStatus,
		"new_ingested": result.NewIngested,
		"updated":      result.Updated,
		"errors":       result.Errors,
	}).Info("ingestion finished")

	return result, nil
}

// paginate walks pages in ascending order until the last page, cancellation
// or a terminal fetch failure.
func (c *Coordinator) paginate(ctx context.Context, tenantID, jobID string, result *Result, observed *[]string, log *logrus.Entry) error {
	resource := "ingest:" + tenantID
	page := 1

	for {
		if c.cancelled(jobID) {
			log.Info("ingestion cancelled")
			return nil
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		pageData, err := c.fetcher.FetchPage(ctx, tenantID, page)
		if err != nil {
			return err
		}
		if pageData == nil {
			return nil
		}

		totalPages := pageData.Pagination.TotalPages
		progress := 0
		if totalPages > 0 {
			progress = page * 100 / totalPages
		}
		if err := c.jobs.UpdateProgress(ctx, jobID, totalPages, page, progress); err != nil {
			log.WithError(err).WithField("page", page).Error("failed to update job progress")
		}

		for _, external := range pageData.Tickets {
			*observed = append(*observed, external.ID)
			if err := c.processTicket(ctx, tenantID, external, result); err != nil {
				log.WithError(err).WithField("ticket_id", external.ID).Error("error processing ticket")
				result.Errors++
			}
		}

		if page >= totalPages {
			return nil
		}
		page++

		if page%5 == 0 {
			if _, err := c.lock.Refresh(ctx, resource, jobID); err != nil {
				log.WithError(err).Error("failed to refresh lock")
			}
		}
	}
}

// processTicket syncs, classifies, upserts and (for high urgency) notifies
// for one upstream ticket.
func (c *Coordinator) processTicket(ctx context.Context, tenantID string, external models.ExternalTicket, result *Result) error {
	syncResult, err := c.syncer.SyncTicket(ctx, external, tenantID)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"ticket_id": external.ID,
		"action":    syncResult.Action,
	}).Debug("sync result")

	classification := classify.Classify(external.Subject, external.Message)

	createdAt, err := parseOptionalTimestamp(external.CreatedAt)
	if err != nil {
		return err
	}
	updatedAt, err := parseOptionalTimestamp(external.UpdatedAt)
	if err != nil {
		return err
	}

	ticket := &models.Ticket{
		ExternalID:     external.ID,
		TenantID:       tenantID,
		Source:         external.Source,
		CustomerID:     external.CustomerID,
		Subject:        external.Subject,
		Message:        external.Message,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		Status:         external.Status,
		Urgency:        classification.Urgency,
		Sentiment:      classification.Sentiment,
		RequiresAction: classification.RequiresAction,
	}

	created, modified, err := c.tickets.Upsert(ctx, ticket)
	if err != nil {
		return err
	}

	if created {
		result.NewIngested++
		if err := c.syncer.RecordHistory(ctx, external.ID, tenantID, models.ActionCreated, nil); err != nil {
			return err
		}
	} else if modified {
		result.Updated++
	}

	if classification.Urgency == models.UrgencyHigh {
		c.notifier.Send(external.ID, tenantID, models.UrgencyHigh, "High urgency ticket detected")
	}

	return nil
}

// reconcileDeletions soft-deletes tickets missing from the full enumeration.
func (c *Coordinator) reconcileDeletions(ctx context.Context, tenantID string, observed []string, log *logrus.Entry) error {
	deletedIDs, err := c.syncer.DetectDeleted(ctx, tenantID, observed)
	if err != nil {
		return fmt.Errorf("detect deleted tickets: %w", err)
	}
	if len(deletedIDs) == 0 {
		return nil
	}

	count, err := c.syncer.MarkDeleted(ctx, tenantID, deletedIDs)
	if err != nil {
		return fmt.Errorf("mark deleted tickets: %w", err)
	}
	log.WithField("count", count).Info("soft-deleted missing tickets")
	return nil
}

// writeAudit inserts the single audit entry for a terminated run.
func (c *Coordinator) writeAudit(ctx context.Context, tenantID, jobID, status string, startedAt, endedAt time.Time, result Result, errMsg string, log *logrus.Entry) {
	entry := &models.IngestionLogEntry{
		TenantID:    tenantID,
		JobID:       jobID,
		Status:      status,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
		NewIngested: result.NewIngested,
		Updated:     result.Updated,
		Errors:      result.Errors,
		Error:       errMsg,
	}
	if err := c.jobs.InsertLog(ctx, entry); err != nil {
		log.WithError(err).Error("failed to write ingestion log")
	}
}

// Cancel requests cooperative cancellation of a running job. The coordinator
// observes the flag at the next page boundary; processed work is kept.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := c.jobs.FindRunningByJobID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	c.mu.Lock()
	c.cancelFlags[job.JobID] = true
	c.mu.Unlock()
	return true, nil
}

// JobStatus returns a job by id, or nil if unknown.
func (c *Coordinator) JobStatus(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	return c.jobs.FindByJobID(ctx, jobID)
}

// TenantStatus returns the tenant's currently running job, or nil when idle.
// Terminal jobs are reachable through JobStatus only.
func (c *Coordinator) TenantStatus(ctx context.Context, tenantID string) (*models.IngestionJob, error) {
	return c.jobs.FindRunningByTenant(ctx, tenantID)
}

func (c *Coordinator) setFlag(jobID string) {
	c.mu.Lock()
	c.cancelFlags[jobID] = false
	c.mu.Unlock()
}

func (c *Coordinator) cancelled(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelFlags[jobID]
}

func (c *Coordinator) clearFlag(jobID string) {
	c.mu.Lock()
	delete(c.cancelFlags, jobID)
	c.mu.Unlock()
}

func parseOptionalTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return ticketsync.ParseTimestamp(value)
}
