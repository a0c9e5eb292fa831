package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		message string
		want    Classification
	}{
		{
			name:    "urgent refund with legal action",
			subject: "Urgent: refund",
			message: "legal action",
			want:    Classification{Urgency: "high", Sentiment: "neutral", RequiresAction: true},
		},
		{
			name:    "grateful customer",
			subject: "Thanks",
			message: "great service",
			want:    Classification{Urgency: "low", Sentiment: "positive", RequiresAction: false},
		},
		{
			name:    "broken and disappointed",
			subject: "Broken",
			message: "disappointed",
			want:    Classification{Urgency: "high", Sentiment: "negative", RequiresAction: true},
		},
		{
			name:    "medium urgency complaint",
			subject: "Complaint",
			message: "I have a concern about my bill",
			want:    Classification{Urgency: "medium", Sentiment: "neutral", RequiresAction: false},
		},
		{
			name:    "plain question",
			subject: "Question",
			message: "where can I view my invoices?",
			want:    Classification{Urgency: "low", Sentiment: "neutral", RequiresAction: false},
		},
		{
			name:    "negative wins over positive",
			subject: "Thanks for nothing",
			message: "great product but the worst support",
			want:    Classification{Urgency: "low", Sentiment: "negative", RequiresAction: false},
		},
		{
			name:    "case insensitive",
			subject: "URGENT",
			message: "PLEASE FIX THIS",
			want:    Classification{Urgency: "high", Sentiment: "neutral", RequiresAction: true},
		},
		{
			name:    "substring matching is intentional",
			subject: "Feedback",
			message: "I am heartbroken about the cancellation",
			// "broken" matches inside "heartbroken", "cancel" inside "cancellation".
			want: Classification{Urgency: "high", Sentiment: "negative", RequiresAction: true},
		},
		{
			name:    "keyword in subject only",
			subject: "Service outage",
			message: "",
			want:    Classification{Urgency: "high", Sentiment: "neutral", RequiresAction: false},
		},
		{
			name:    "empty input",
			subject: "",
			message: "",
			want:    Classification{Urgency: "low", Sentiment: "neutral", RequiresAction: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.subject, tt.message))
		})
	}
}
