package models

import "time"

// Ingestion job statuses. A job transitions from running to exactly one of
// the terminal states.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobCancelled = "cancelled"
	JobFailed    = "failed"
)

// Audit log statuses, written once per job termination.
const (
	LogSuccess        = "SUCCESS"
	LogPartialSuccess = "PARTIAL_SUCCESS"
	LogFailed         = "FAILED"
)

// IngestionJob tracks one ingestion run for a tenant.
type IngestionJob struct {
	JobID          string     `json:"job_id" bson:"job_id"`
	TenantID       string     `json:"tenant_id" bson:"tenant_id"`
	Status         string     `json:"status" bson:"status"`
	StartedAt      time.Time  `json:"started_at" bson:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	TotalPages     *int       `json:"total_pages" bson:"total_pages"`
	ProcessedPages int        `json:"processed_pages" bson:"processed_pages"`
	Progress       int        `json:"progress" bson:"progress"`
}

// IngestionLogEntry is the append-only audit record for a finished run.
type IngestionLogEntry struct {
	TenantID    string    `json:"tenant_id" bson:"tenant_id"`
	JobID       string    `json:"job_id" bson:"job_id"`
	Status      string    `json:"status" bson:"status"`
	StartedAt   time.Time `json:"started_at" bson:"started_at"`
	EndedAt     time.Time `json:"ended_at" bson:"ended_at"`
	NewIngested int       `json:"new_ingested" bson:"new_ingested"`
	Updated     int       `json:"updated" bson:"updated"`
	Errors      int       `json:"errors" bson:"errors"`
	Error       string    `json:"error,omitempty" bson:"error,omitempty"`
}

// DistributedLock is a TTL-bounded lease over a named resource. At most one
// non-expired document exists per resource_id.
type DistributedLock struct {
	ResourceID string    `json:"resource_id" bson:"resource_id"`
	OwnerID    string    `json:"owner_id" bson:"owner_id"`
	AcquiredAt time.Time `json:"acquired_at" bson:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at" bson:"expires_at"`
}
