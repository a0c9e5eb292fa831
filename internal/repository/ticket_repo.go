package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/terminal-bench/ticketvault/internal/config"
	"github.com/terminal-bench/ticketvault/internal/models"
)

// TicketRepository handles the tickets collection.
type TicketRepository struct {
	tickets *mongo.Collection
}

// NewTicketRepository creates a ticket repository.
func NewTicketRepository(store *Store) *TicketRepository {
	return &TicketRepository{tickets: store.Collection(config.TicketsCollection)}
}

// ListFilter narrows List results. Zero-value fields are ignored.
type ListFilter struct {
	Status  string
	Urgency string
	Source  string
}

// List returns a page of live tickets for a tenant. Soft-deleted tickets are
// excluded.
func (r *TicketRepository) List(ctx context.Context, tenantID string, filter ListFilter, page, pageSize int) ([]models.Ticket, error) {
	query := bson.M{
		"tenant_id":  tenantID,
		"deleted_at": bson.M{"$exists": false},
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Urgency != "" {
		query["urgency"] = filter.Urgency
	}
	if filter.Source != "" {
		query["source"] = filter.Source
	}

	opts := options.Find().
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.tickets.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer cursor.Close(ctx)

	tickets := make([]models.Ticket, 0, pageSize)
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("decode tickets: %w", err)
	}
	return tickets, nil
}

// Urgent returns up to limit live high-urgency tickets, newest first.
func (r *TicketRepository) Urgent(ctx context.Context, tenantID string, limit int) ([]models.Ticket, error) {
	query := bson.M{
		"tenant_id":  tenantID,
		"urgency":    models.UrgencyHigh,
		"deleted_at": bson.M{"$exists": false},
	}

	opts := options.Find().
		SetSort(d{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.tickets.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list urgent tickets: %w", err)
	}
	defer cursor.Close(ctx)

	tickets := make([]models.Ticket, 0, limit)
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("decode urgent tickets: %w", err)
	}
	return tickets, nil
}

// Get returns a live ticket by external id, or nil if absent or soft-deleted.
func (r *TicketRepository) Get(ctx context.Context, tenantID, externalID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.tickets.FindOne(ctx, bson.M{
		"tenant_id":   tenantID,
		"external_id": externalID,
		"deleted_at":  bson.M{"$exists": false},
	}).Decode(&ticket)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", externalID, err)
	}
	return &ticket, nil
}

// FindByExternalID returns a ticket regardless of soft-delete state, or nil
// if it was never ingested. Used by change detection.
func (r *TicketRepository) FindByExternalID(ctx context.Context, tenantID, externalID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.tickets.FindOne(ctx, bson.M{
		"tenant_id":   tenantID,
		"external_id": externalID,
	}).Decode(&ticket)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket %s: %w", externalID, err)
	}
	return &ticket, nil
}

// Upsert inserts or updates a ticket keyed on (tenant_id, external_id).
// created_at is only written on insert, and deleted_at is never touched, so
// re-ingesting a soft-deleted ticket does not resurrect it.
func (r *TicketRepository) Upsert(ctx context.Context, ticket *models.Ticket) (created, modified bool, err error) {
	res, err := r.tickets.UpdateOne(ctx,
		bson.M{
			"tenant_id":   ticket.TenantID,
			"external_id": ticket.ExternalID,
		},
		bson.M{
			"$set": bson.M{
				"source":          ticket.Source,
				"customer_id":     ticket.CustomerID,
				"subject":         ticket.Subject,
				"message":         ticket.Message,
				"updated_at":      ticket.UpdatedAt,
				"status":          ticket.Status,
				"urgency":         ticket.Urgency,
				"sentiment":       ticket.Sentiment,
				"requires_action": ticket.RequiresAction,
			},
			"$setOnInsert": bson.M{
				"created_at": ticket.CreatedAt,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, false, fmt.Errorf("upsert ticket %s: %w", ticket.ExternalID, err)
	}
	return res.UpsertedCount > 0, res.ModifiedCount > 0, nil
}

// FindActiveExternalIDsNotIn returns external ids of live tickets absent from
// externalIDs.
func (r *TicketRepository) FindActiveExternalIDsNotIn(ctx context.Context, tenantID string, externalIDs []string) ([]string, error) {
	if externalIDs == nil {
		externalIDs = []string{}
	}

	cursor, err := r.tickets.Find(ctx,
		bson.M{
			"tenant_id":   tenantID,
			"external_id": bson.M{"$nin": externalIDs},
			"deleted_at":  bson.M{"$exists": false},
		},
		options.Find().SetProjection(bson.M{"external_id": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("find missing tickets: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ExternalID string `bson:"external_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode missing ticket: %w", err)
		}
		ids = append(ids, doc.ExternalID)
	}
	return ids, cursor.Err()
}

// MarkDeleted stamps deleted_at on the given tickets unless already set.
// deleted_at is monotonic: ingestion never clears it.
func (r *TicketRepository) MarkDeleted(ctx context.Context, tenantID string, externalIDs []string, deletedAt time.Time) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}

	res, err := r.tickets.UpdateMany(ctx,
		bson.M{
			"tenant_id":   tenantID,
			"external_id": bson.M{"$in": externalIDs},
			"deleted_at":  bson.M{"$exists": false},
		},
		bson.M{"$set": bson.M{"deleted_at": deletedAt}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark deleted: %w", err)
	}
	return res.ModifiedCount, nil
}
