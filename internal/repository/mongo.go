// Package repository provides MongoDB-backed persistence for tickets, jobs,
// audit logs and ticket history.
package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/terminal-bench/ticketvault/internal/config"
)

// d is shorthand for ordered BSON documents in index definitions.
type d = bson.D

// Store wraps the shared MongoDB client and database handle. One instance is
// created at startup and injected everywhere; the driver pools connections.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore connects to MongoDB and verifies the connection.
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURL).
		SetMaxPoolSize(50).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(45 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(45 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(config.DatabaseName),
	}, nil
}

// Collection returns a handle to a named collection.
func (s *Store) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// Ping verifies the connection, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. Call on shutdown.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes required by the query patterns. It is
// idempotent and runs at startup. ticketTTLDays > 0 additionally installs a
// TTL index purging tickets that many days after created_at.
func (s *Store) EnsureIndexes(ctx context.Context, ticketTTLDays int) error {
	tickets := []mongo.IndexModel{
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_tenant_external_id"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("tenant_created_at"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("tenant_status_created"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "urgency", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("tenant_urgency_created"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "sentiment", Value: 1}},
			Options: options.Index().SetName("tenant_sentiment"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "source", Value: 1}},
			Options: options.Index().SetName("tenant_source"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "deleted_at", Value: 1}},
			Options: options.Index().SetName("tenant_deleted_at"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "customer_id", Value: 1}},
			Options: options.Index().SetName("tenant_customer"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("tenant_updated_at"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "deleted_at", Value: 1}, {Key: "created_at", Value: -1}, {Key: "status", Value: 1}, {Key: "urgency", Value: 1}},
			Options: options.Index().SetName("stats_optimized"),
		},
	}
	if ticketTTLDays > 0 {
		tickets = append(tickets, mongo.IndexModel{
			Keys: d{{Key: "created_at", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(int32(ticketTTLDays * 24 * 60 * 60)).
				SetName("ttl_created_at"),
		})
	}
	if _, err := s.Collection(config.TicketsCollection).Indexes().CreateMany(ctx, tickets); err != nil {
		return fmt.Errorf("create ticket indexes: %w", err)
	}

	jobs := []mongo.IndexModel{
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("tenant_status"),
		},
		{
			Keys:    d{{Key: "job_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("job_id_unique"),
		},
		{
			Keys:    d{{Key: "started_at", Value: -1}},
			Options: options.Index().SetName("started_at"),
		},
	}
	if _, err := s.Collection(config.JobsCollection).Indexes().CreateMany(ctx, jobs); err != nil {
		return fmt.Errorf("create job indexes: %w", err)
	}

	logs := []mongo.IndexModel{
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "started_at", Value: -1}},
			Options: options.Index().SetName("tenant_started"),
		},
		{
			Keys:    d{{Key: "job_id", Value: 1}},
			Options: options.Index().SetName("job_id"),
		},
	}
	if _, err := s.Collection(config.LogsCollection).Indexes().CreateMany(ctx, logs); err != nil {
		return fmt.Errorf("create log indexes: %w", err)
	}

	locks := []mongo.IndexModel{
		{
			Keys:    d{{Key: "resource_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("resource_id_unique"),
		},
		{
			Keys:    d{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_at"),
		},
	}
	if _, err := s.Collection(config.LocksCollection).Indexes().CreateMany(ctx, locks); err != nil {
		return fmt.Errorf("create lock indexes: %w", err)
	}

	history := []mongo.IndexModel{
		{
			Keys:    d{{Key: "ticket_id", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("ticket_recorded"),
		},
		{
			Keys:    d{{Key: "tenant_id", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("tenant_recorded"),
		},
	}
	if _, err := s.Collection(config.HistoryCollection).Indexes().CreateMany(ctx, history); err != nil {
		return fmt.Errorf("create history indexes: %w", err)
	}

	return nil
}
