package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/ticketvault/internal/models"
)

type fakeTicketStore struct {
	tickets map[string]*models.Ticket // keyed by external id
	missing []string
	marked  []string
}

func (f *fakeTicketStore) FindByExternalID(_ context.Context, _, externalID string) (*models.Ticket, error) {
	return f.tickets[externalID], nil
}

func (f *fakeTicketStore) FindActiveExternalIDsNotIn(_ context.Context, _ string, _ []string) ([]string, error) {
	return f.missing, nil
}

func (f *fakeTicketStore) MarkDeleted(_ context.Context, _ string, externalIDs []string, _ time.Time) (int64, error) {
	f.marked = append(f.marked, externalIDs...)
	return int64(len(externalIDs)), nil
}

type fakeHistoryStore struct {
	entries []models.TicketHistoryEntry
}

func (f *fakeHistoryStore) Insert(_ context.Context, entry *models.TicketHistoryEntry) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistoryStore) ListByTicket(_ context.Context, _, _ string, _ int) ([]models.TicketHistoryEntry, error) {
	return f.entries, nil
}

func newTestService(tickets *fakeTicketStore, history *fakeHistoryStore) *Service {
	s := NewService(tickets, history)
	s.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestSyncTicketCreated(t *testing.T) {
	tickets := &fakeTicketStore{tickets: map[string]*models.Ticket{}}
	history := &fakeHistoryStore{}
	s := newTestService(tickets, history)

	res, err := s.SyncTicket(context.Background(), models.ExternalTicket{ID: "X1"}, "T1")
	require.NoError(t, err)

	assert.Equal(t, models.ActionCreated, res.Action)
	assert.Equal(t, "X1", res.TicketID)
	assert.Empty(t, res.Changes)
	// Creation history is written by the coordinator on actual upsert.
	assert.Empty(t, history.entries)
}

func TestSyncTicketUnchangedWhenNotNewer(t *testing.T) {
	existing := &models.Ticket{
		ExternalID: "X1",
		Subject:    "old subject",
		UpdatedAt:  time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	tickets := &fakeTicketStore{tickets: map[string]*models.Ticket{"X1": existing}}
	history := &fakeHistoryStore{}
	s := newTestService(tickets, history)

	// Same updated_at, even with differing fields: the timestamp gate wins.
	res, err := s.SyncTicket(context.Background(), models.ExternalTicket{
		ID:        "X1",
		Subject:   "new subject",
		UpdatedAt: "2026-08-20T10:00:00Z",
	}, "T1")
	require.NoError(t, err)

	assert.Equal(t, models.ActionUnchanged, res.Action)
	assert.Empty(t, history.entries)
}

func TestSyncTicketUpdatedRecordsHistory(t *testing.T) {
	existing := &models.Ticket{
		ExternalID: "X1",
		Subject:    "old subject",
		Message:    "same message",
		Status:     "open",
		UpdatedAt:  time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	tickets := &fakeTicketStore{tickets: map[string]*models.Ticket{"X1": existing}}
	history := &fakeHistoryStore{}
	s := newTestService(tickets, history)

	res, err := s.SyncTicket(context.Background(), models.ExternalTicket{
		ID:        "X1",
		Subject:   "new subject",
		Message:   "same message",
		Status:    "closed",
		UpdatedAt: "2026-08-21T10:00:00Z",
	}, "T1")
	require.NoError(t, err)

	assert.Equal(t, models.ActionUpdated, res.Action)
	assert.ElementsMatch(t, []string{"subject", "status"}, res.Changes)

	require.Len(t, history.entries, 1)
	entry := history.entries[0]
	assert.Equal(t, models.ActionUpdated, entry.Action)
	assert.Equal(t, "T1", entry.TenantID)
	assert.Equal(t, models.FieldChange{Old: "old subject", New: "new subject"}, entry.Changes["subject"])
	assert.Equal(t, models.FieldChange{Old: "open", New: "closed"}, entry.Changes["status"])
	assert.NotContains(t, entry.Changes, "message")
}

func TestSyncTicketUnchangedWhenNewerButIdentical(t *testing.T) {
	existing := &models.Ticket{
		ExternalID: "X1",
		Subject:    "subject",
		Message:    "message",
		Status:     "open",
		UpdatedAt:  time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	tickets := &fakeTicketStore{tickets: map[string]*models.Ticket{"X1": existing}}
	history := &fakeHistoryStore{}
	s := newTestService(tickets, history)

	res, err := s.SyncTicket(context.Background(), models.ExternalTicket{
		ID:        "X1",
		Subject:   "subject",
		Message:   "message",
		Status:    "open",
		UpdatedAt: "2026-08-22T10:00:00Z",
	}, "T1")
	require.NoError(t, err)

	assert.Equal(t, models.ActionUnchanged, res.Action)
	assert.Empty(t, history.entries)
}

func TestSyncTicketNormalizesNaiveTimestamps(t *testing.T) {
	existing := &models.Ticket{
		ExternalID: "X1",
		UpdatedAt:  time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	tickets := &fakeTicketStore{tickets: map[string]*models.Ticket{"X1": existing}}
	history := &fakeHistoryStore{}
	s := newTestService(tickets, history)

	// No zone: interpreted as UTC, equal to the stored value.
	res, err := s.SyncTicket(context.Background(), models.ExternalTicket{
		ID:        "X1",
		Subject:   "changed",
		UpdatedAt: "2026-08-20T10:00:00",
	}, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionUnchanged, res.Action)
}

func TestMarkDeletedRecordsHistoryPerTicket(t *testing.T) {
	tickets := &fakeTicketStore{tickets: map[string]*models.Ticket{}}
	history := &fakeHistoryStore{}
	s := newTestService(tickets, history)

	count, err := s.MarkDeleted(context.Background(), "T1", []string{"X1", "X2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, []string{"X1", "X2"}, tickets.marked)

	require.Len(t, history.entries, 2)
	for i, id := range []string{"X1", "X2"} {
		assert.Equal(t, models.ActionDeleted, history.entries[i].Action)
		assert.Equal(t, id, history.entries[i].TicketID)
		assert.Empty(t, history.entries[i].Changes)
	}
}

func TestMarkDeletedEmptyIsNoop(t *testing.T) {
	tickets := &fakeTicketStore{}
	history := &fakeHistoryStore{}
	s := newTestService(tickets, history)

	count, err := s.MarkDeleted(context.Background(), "T1", nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, history.entries)
}

func TestDetectDeleted(t *testing.T) {
	tickets := &fakeTicketStore{missing: []string{"X2"}}
	s := newTestService(tickets, &fakeHistoryStore{})

	ids, err := s.DetectDeleted(context.Background(), "T1", []string{"X1", "X3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X2"}, ids)
}

func TestComputeChanges(t *testing.T) {
	existing := &models.Ticket{Subject: "a", Message: "", Status: "open"}

	changes := computeChanges(existing, models.ExternalTicket{Subject: "b", Message: "", Status: "open"})
	assert.Len(t, changes, 1)
	assert.Equal(t, models.FieldChange{Old: "a", New: "b"}, changes["subject"])

	// Absent on both sides is not a change.
	changes = computeChanges(&models.Ticket{}, models.ExternalTicket{})
	assert.Empty(t, changes)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-08-20T10:00:00Z", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)},
		{"2026-08-20T10:00:00+02:00", time.Date(2026, 8, 20, 10, 0, 0, 0, time.FixedZone("", 2*3600))},
		{"2026-08-20T10:00:00", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)},
		{"2026-08-20 10:00:00", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)},
		{"2026-08-20", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, got.Equal(tt.want), "parsing %s: got %v want %v", tt.in, got, tt.want)
	}

	_, err := ParseTimestamp("not a date")
	assert.Error(t, err)
}
