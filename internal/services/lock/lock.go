// Package lock implements a distributed lock as a TTL-bounded lease in the
// distributed_locks collection. It is the sole cross-process exclusion
// primitive; correctness rests on the unique resource_id index and on atomic
// findOneAndUpdate.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/terminal-bench/ticketvault/internal/models"
)

// Status describes the current lock on a resource.
type Status struct {
	ResourceID string    `json:"resource_id"`
	OwnerID    string    `json:"owner_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsExpired  bool      `json:"is_expired"`
}

// Collection is the slice of *mongo.Collection the lock service uses.
type Collection interface {
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// Service manages leases over named resources.
type Service struct {
	locks Collection
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a lock service with the given lease TTL.
func NewService(locks Collection, ttl time.Duration) *Service {
	return &Service{
		locks: locks,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Acquire attempts to take the lease on resourceID for ownerID. It first
// tries to atomically steal an expired lease, then to insert a fresh one; a
// duplicate key on insert means a live lease exists and acquisition fails.
func (s *Service) Acquire(ctx context.Context, resourceID, ownerID string) (bool, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	err := s.locks.FindOneAndUpdate(ctx,
		bson.M{
			"resource_id": resourceID,
			"expires_at":  bson.M{"$lt": now},
		},
		bson.M{"$set": bson.M{
			"owner_id":    ownerID,
			"acquired_at": now,
			"expires_at":  expiresAt,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Err()

	if err == nil {
		return true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, fmt.Errorf("steal expired lock %s: %w", resourceID, err)
	}

	_, err = s.locks.InsertOne(ctx, models.DistributedLock{
		ResourceID: resourceID,
		OwnerID:    ownerID,
		AcquiredAt: now,
		ExpiresAt:  expiresAt,
	})
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		// A live lease exists.
		return false, nil
	}
	return false, fmt.Errorf("insert lock %s: %w", resourceID, err)
}

// Release deletes the lease iff ownerID still holds it. A release after the
// lease expired and was stolen is a benign no-op returning false.
func (s *Service) Release(ctx context.Context, resourceID, ownerID string) (bool, error) {
	res, err := s.locks.DeleteOne(ctx, bson.M{
		"resource_id": resourceID,
		"owner_id":    ownerID,
	})
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", resourceID, err)
	}
	return res.DeletedCount > 0, nil
}

// Refresh extends the lease iff ownerID still holds it. Long-running holders
// must refresh before expiry to keep exclusivity.
func (s *Service) Refresh(ctx context.Context, resourceID, ownerID string) (bool, error) {
	res, err := s.locks.UpdateOne(ctx,
		bson.M{
			"resource_id": resourceID,
			"owner_id":    ownerID,
		},
		bson.M{"$set": bson.M{
			"expires_at": s.now().UTC().Add(s.ttl),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("refresh lock %s: %w", resourceID, err)
	}
	return res.MatchedCount > 0, nil
}

// Status returns the current lease on resourceID, or nil if none exists.
func (s *Service) Status(ctx context.Context, resourceID string) (*Status, error) {
	var doc models.DistributedLock
	err := s.locks.FindOne(ctx, bson.M{"resource_id": resourceID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock status %s: %w", resourceID, err)
	}

	return &Status{
		ResourceID: doc.ResourceID,
		OwnerID:    doc.OwnerID,
		AcquiredAt: doc.AcquiredAt,
		ExpiresAt:  doc.ExpiresAt,
		IsExpired:  s.now().UTC().After(doc.ExpiresAt),
	}, nil
}

// CleanupExpired removes expired leases. Callers do not depend on it for
// correctness; expired leases are stolen on acquire.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.locks.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lt": s.now().UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup expired locks: %w", err)
	}
	return res.DeletedCount, nil
}
