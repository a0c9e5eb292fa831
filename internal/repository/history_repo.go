package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/terminal-bench/ticketvault/internal/config"
	"github.com/terminal-bench/ticketvault/internal/models"
)

// HistoryRepository handles the append-only ticket_history collection.
type HistoryRepository struct {
	history *mongo.Collection
}

// NewHistoryRepository creates a history repository.
func NewHistoryRepository(store *Store) *HistoryRepository {
	return &HistoryRepository{history: store.Collection(config.HistoryCollection)}
}

// Insert appends one history entry.
func (r *HistoryRepository) Insert(ctx context.Context, entry *models.TicketHistoryEntry) error {
	if _, err := r.history.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert history for %s: %w", entry.TicketID, err)
	}
	return nil
}

// ListByTicket returns a ticket's history entries, newest first.
func (r *HistoryRepository) ListByTicket(ctx context.Context, tenantID, ticketID string, limit int) ([]models.TicketHistoryEntry, error) {
	cursor, err := r.history.Find(ctx,
		bson.M{"ticket_id": ticketID, "tenant_id": tenantID},
		options.Find().SetSort(d{{Key: "recorded_at", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", ticketID, err)
	}
	defer cursor.Close(ctx)

	entries := make([]models.TicketHistoryEntry, 0, limit)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", ticketID, err)
	}
	return entries, nil
}
