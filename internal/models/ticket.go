package models

import "time"

// Urgency levels assigned by the classifier.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Sentiment values assigned by the classifier.
const (
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentPositive = "positive"
)

// History actions recorded in ticket_history.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionUnchanged = "unchanged"
)

// Ticket is the persisted form of a support ticket. Identity is
// (tenant_id, external_id), unique per tenant.
type Ticket struct {
	ExternalID     string     `json:"external_id" bson:"external_id"`
	TenantID       string     `json:"tenant_id" bson:"tenant_id"`
	Source         string     `json:"source" bson:"source"`
	CustomerID     string     `json:"customer_id" bson:"customer_id"`
	Subject        string     `json:"subject" bson:"subject"`
	Message        string     `json:"message" bson:"message"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" bson:"updated_at"`
	Status         string     `json:"status" bson:"status"`
	Urgency        string     `json:"urgency" bson:"urgency"`
	Sentiment      string     `json:"sentiment" bson:"sentiment"`
	RequiresAction bool       `json:"requires_action" bson:"requires_action"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

// ExternalTicket is a ticket payload as returned by the upstream source.
// Timestamps arrive as strings and are parsed during ingestion.
type ExternalTicket struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	CustomerID string `json:"customer_id"`
	Subject    string `json:"subject"`
	Message    string `json:"message"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// TicketPage is one page of the upstream enumeration.
type TicketPage struct {
	Tickets    []ExternalTicket `json:"tickets"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination carries upstream paging metadata.
type Pagination struct {
	TotalPages int `json:"total_pages"`
}

// FieldChange records a before/after pair for one ticket field.
type FieldChange struct {
	Old string `json:"old" bson:"old"`
	New string `json:"new" bson:"new"`
}

// TicketHistoryEntry is an append-only change record. Changes is empty for
// created and deleted actions.
type TicketHistoryEntry struct {
	TicketID   string                 `json:"ticket_id" bson:"ticket_id"`
	TenantID   string                 `json:"tenant_id" bson:"tenant_id"`
	Action     string                 `json:"action" bson:"action"`
	Changes    map[string]FieldChange `json:"changes" bson:"changes"`
	RecordedAt time.Time              `json:"recorded_at" bson:"recorded_at"`
}
