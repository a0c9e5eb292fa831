package models

// HourBucket is one hour of ticket volume, formatted "YYYY-MM-DD HH:00:00".
type HourBucket struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

// AtRiskCustomer is a customer with repeated high-urgency tickets.
type AtRiskCustomer struct {
	CustomerID       string   `json:"customer_id"`
	HighUrgencyCount int64    `json:"high_urgency_count"`
	TicketIDs        []string `json:"ticket_ids"`
}

// TenantStats is the result of the multi-facet analytics aggregation.
// Ratios are rounded to three decimal places and are 0 when no tickets match.
type TenantStats struct {
	TotalTickets           int64            `json:"total_tickets"`
	ByStatus               map[string]int64 `json:"by_status"`
	UrgencyHighRatio       float64          `json:"urgency_high_ratio"`
	NegativeSentimentRatio float64          `json:"negative_sentiment_ratio"`
	HourlyTrend            []HourBucket     `json:"hourly_trend"`
	TopKeywords            []string         `json:"top_keywords"`
	AtRiskCustomers        []AtRiskCustomer `json:"at_risk_customers"`
}
