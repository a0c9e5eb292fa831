// Package classify assigns urgency, sentiment and actionability to tickets
// using deterministic keyword rules.
package classify

import "strings"

// Classification is the derived triple stored on every ticket.
type Classification struct {
	Urgency        string `json:"urgency"`
	Sentiment      string `json:"sentiment"`
	RequiresAction bool   `json:"requires_action"`
}

var highUrgencyKeywords = []string{
	"urgent", "critical", "emergency", "asap", "immediately",
	"lawsuit", "legal", "lawyer", "attorney", "court",
	"refund", "chargeback", "fraud", "security breach",
	"data breach", "gdpr", "compliance", "violation",
	"outage", "down", "not working", "broken", "crashed",
}

var mediumUrgencyKeywords = []string{
	"issue", "problem", "error", "bug", "concern",
	"complaint", "unhappy", "dissatisfied", "disappointed",
}

// Negative keywords are checked before positive ones: a ticket containing
// both classifies as negative.
var negativeKeywords = []string{
	"angry", "frustrated", "terrible", "awful", "horrible",
	"worst", "hate", "useless", "broken", "disappointed",
	"unacceptable", "poor", "bad", "annoyed", "upset",
}

var positiveKeywords = []string{
	"thank", "thanks", "appreciate", "great", "excellent",
	"good", "happy", "satisfied", "wonderful", "love",
}

var actionRequiredKeywords = []string{
	"refund", "cancel", "delete", "remove", "fix",
	"help", "urgent", "asap", "immediately",
	"lawsuit", "legal", "gdpr", "compliance",
	"broken", "not working", "error", "issue",
}

// Classify derives urgency, sentiment and requires_action from a ticket's
// subject and message. Matching is substring containment over the lowercased
// concatenation "subject message"; word boundaries are deliberately ignored.
func Classify(subject, message string) Classification {
	text := strings.ToLower(subject + " " + message)

	urgency := "low"
	if containsAny(text, highUrgencyKeywords) {
		urgency = "high"
	} else if containsAny(text, mediumUrgencyKeywords) {
		urgency = "medium"
	}

	sentiment := "neutral"
	if containsAny(text, negativeKeywords) {
		sentiment = "negative"
	} else if containsAny(text, positiveKeywords) {
		sentiment = "positive"
	}

	return Classification{
		Urgency:        urgency,
		Sentiment:      sentiment,
		RequiresAction: containsAny(text, actionRequiredKeywords),
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
