package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/terminal-bench/ticketvault/internal/config"
	"github.com/terminal-bench/ticketvault/internal/models"
)

// JobRepository handles ingestion job state and the audit log.
type JobRepository struct {
	jobs *mongo.Collection
	logs *mongo.Collection
}

// NewJobRepository creates a job repository.
func NewJobRepository(store *Store) *JobRepository {
	return &JobRepository{
		jobs: store.Collection(config.JobsCollection),
		logs: store.Collection(config.LogsCollection),
	}
}

// Insert records a new job row.
func (r *JobRepository) Insert(ctx context.Context, job *models.IngestionJob) error {
	if _, err := r.jobs.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("insert job %s: %w", job.JobID, err)
	}
	return nil
}

// UpdateProgress records pagination progress for a running job.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, totalPages, processedPages, progress int) error {
	_, err := r.jobs.UpdateOne(ctx,
		bson.M{"job_id": jobID},
		bson.M{"$set": bson.M{
			"total_pages":     totalPages,
			"processed_pages": processedPages,
			"progress":        progress,
		}},
	)
	if err != nil {
		return fmt.Errorf("update job %s progress: %w", jobID, err)
	}
	return nil
}

// Finish moves a job to a terminal status and stamps ended_at.
func (r *JobRepository) Finish(ctx context.Context, jobID, status string, endedAt time.Time) error {
	_, err := r.jobs.UpdateOne(ctx,
		bson.M{"job_id": jobID},
		bson.M{"$set": bson.M{
			"status":   status,
			"ended_at": endedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}
	return nil
}

// FindRunningByTenant returns the most recently started running job for a
// tenant, or nil when the tenant is idle.
func (r *JobRepository) FindRunningByTenant(ctx context.Context, tenantID string) (*models.IngestionJob, error) {
	var job models.IngestionJob
	err := r.jobs.FindOne(ctx,
		bson.M{"tenant_id": tenantID, "status": models.JobRunning},
		options.FindOne().SetSort(d{{Key: "started_at", Value: -1}}),
	).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find running job for %s: %w", tenantID, err)
	}
	return &job, nil
}

// FindByJobID looks a job up by its job_id, falling back to the Mongo _id
// for rows written before job_id existed.
func (r *JobRepository) FindByJobID(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	return r.findJob(ctx, bson.M{"job_id": jobID}, jobID)
}

// FindRunningByJobID is FindByJobID restricted to running jobs.
func (r *JobRepository) FindRunningByJobID(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	return r.findJob(ctx, bson.M{"job_id": jobID, "status": models.JobRunning}, jobID)
}

func (r *JobRepository) findJob(ctx context.Context, query bson.M, jobID string) (*models.IngestionJob, error) {
	var job models.IngestionJob
	err := r.jobs.FindOne(ctx, query).Decode(&job)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("find job %s: %w", jobID, err)
	}

	// Legacy fallback: callers may hold the storage-native id.
	oid, oidErr := primitive.ObjectIDFromHex(jobID)
	if oidErr != nil {
		return nil, nil
	}
	legacy := bson.M{"_id": oid}
	for k, v := range query {
		if k != "job_id" {
			legacy[k] = v
		}
	}
	err = r.jobs.FindOne(ctx, legacy).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s by _id: %w", jobID, err)
	}
	if job.JobID == "" {
		job.JobID = jobID
	}
	return &job, nil
}

// InsertLog appends one audit log entry. Written exactly once per job
// termination.
func (r *JobRepository) InsertLog(ctx context.Context, entry *models.IngestionLogEntry) error {
	if _, err := r.logs.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert ingestion log for %s: %w", entry.JobID, err)
	}
	return nil
}
