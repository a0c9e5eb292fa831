// Package sync detects changes between upstream tickets and persisted state,
// reconciles upstream deletions as soft deletes, and records change history.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/ticketvault/internal/models"
)

// TicketStore is the slice of the ticket repository the sync service needs.
type TicketStore interface {
	FindByExternalID(ctx context.Context, tenantID, externalID string) (*models.Ticket, error)
	FindActiveExternalIDsNotIn(ctx context.Context, tenantID string, externalIDs []string) ([]string, error)
	MarkDeleted(ctx context.Context, tenantID string, externalIDs []string, deletedAt time.Time) (int64, error)
}

// HistoryStore persists append-only ticket history.
type HistoryStore interface {
	Insert(ctx context.Context, entry *models.TicketHistoryEntry) error
	ListByTicket(ctx context.Context, tenantID, ticketID string, limit int) ([]models.TicketHistoryEntry, error)
}

// Result describes the outcome of syncing one upstream ticket.
type Result struct {
	Action   string   `json:"action"`
	TicketID string   `json:"ticket_id"`
	Changes  []string `json:"changes"`
}

// Service implements change detection and soft-delete reconciliation.
type Service struct {
	tickets TicketStore
	history HistoryStore
	now     func() time.Time
}

// NewService creates a sync service over the given stores.
func NewService(tickets TicketStore, history HistoryStore) *Service {
	return &Service{
		tickets: tickets,
		history: history,
		now:     time.Now,
	}
}

// SyncTicket compares an upstream ticket with the persisted copy and reports
// created, updated or unchanged. An "updated" result has already written its
// history entry; "created" history is emitted by the coordinator on actual
// upsert.
func (s *Service) SyncTicket(ctx context.Context, external models.ExternalTicket, tenantID string) (Result, error) {
	existing, err := s.tickets.FindByExternalID(ctx, tenantID, external.ID)
	if err != nil {
		return Result{}, fmt.Errorf("lookup ticket %s: %w", external.ID, err)
	}

	if existing == nil {
		return Result{Action: models.ActionCreated, TicketID: external.ID, Changes: []string{}}, nil
	}

	// updated_at gate: skip when the upstream copy is not newer. Both sides
	// are normalized to time.Time (unzoned inputs parse as UTC).
	if external.UpdatedAt != "" && !existing.UpdatedAt.IsZero() {
		externalUpdated, err := ParseTimestamp(external.UpdatedAt)
		if err == nil && !externalUpdated.After(existing.UpdatedAt) {
			return Result{Action: models.ActionUnchanged, TicketID: external.ID, Changes: []string{}}, nil
		}
	}

	changes := computeChanges(existing, external)
	if len(changes) == 0 {
		return Result{Action: models.ActionUnchanged, TicketID: external.ID, Changes: []string{}}, nil
	}

	if err := s.RecordHistory(ctx, external.ID, tenantID, models.ActionUpdated, changes); err != nil {
		return Result{}, fmt.Errorf("record history for %s: %w", external.ID, err)
	}

	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}

	return Result{Action: models.ActionUpdated, TicketID: external.ID, Changes: fields}, nil
}

// DetectDeleted returns external IDs of live tickets absent from the observed
// set. The caller must pass the complete set seen in a full enumeration.
func (s *Service) DetectDeleted(ctx context.Context, tenantID string, observedExternalIDs []string) ([]string, error) {
	return s.tickets.FindActiveExternalIDsNotIn(ctx, tenantID, observedExternalIDs)
}

// MarkDeleted soft-deletes the given tickets and records a history entry per
// id. Already-deleted tickets keep their original deleted_at.
func (s *Service) MarkDeleted(ctx context.Context, tenantID string, externalIDs []string) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}

	count, err := s.tickets.MarkDeleted(ctx, tenantID, externalIDs, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark deleted: %w", err)
	}

	for _, externalID := range externalIDs {
		if err := s.RecordHistory(ctx, externalID, tenantID, models.ActionDeleted, nil); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"ticket_id": externalID,
			}).Error("failed to record deletion history")
		}
	}

	return count, nil
}

// RecordHistory appends one history entry.
func (s *Service) RecordHistory(ctx context.Context, ticketID, tenantID, action string, changes map[string]models.FieldChange) error {
	if changes == nil {
		changes = map[string]models.FieldChange{}
	}
	return s.history.Insert(ctx, &models.TicketHistoryEntry{
		TicketID:   ticketID,
		TenantID:   tenantID,
		Action:     action,
		Changes:    changes,
		RecordedAt: s.now().UTC(),
	})
}

// History returns a ticket's change history, newest first.
func (s *Service) History(ctx context.Context, tenantID, ticketID string, limit int) ([]models.TicketHistoryEntry, error) {
	return s.history.ListByTicket(ctx, tenantID, ticketID, limit)
}

// computeChanges diffs the tracked fields. A field missing on both sides is
// not a change.
func computeChanges(existing *models.Ticket, external models.ExternalTicket) map[string]models.FieldChange {
	changes := make(map[string]models.FieldChange)

	compare := func(field, oldValue, newValue string) {
		if oldValue == "" && newValue == "" {
			return
		}
		if oldValue != newValue {
			changes[field] = models.FieldChange{Old: oldValue, New: newValue}
		}
	}

	compare("subject", existing.Subject, external.Subject)
	compare("message", existing.Message, external.Message)
	compare("status", existing.Status, external.Status)

	return changes
}

// timestampLayouts are tried in order when parsing upstream timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an upstream timestamp string. Layouts without a zone
// are interpreted as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
