package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/terminal-bench/ticketvault/internal/models"
)

func TestBuildStats(t *testing.T) {
	fr := facetResult{
		Total: []struct {
			Count int64 `bson:"count"`
		}{{Count: 7}},
		ByStatus: []countBucket{
			{ID: "open", Count: 4},
			{ID: "closed", Count: 3},
		},
		UrgencyStats: []countBucket{
			{ID: "low", Count: 5},
			{ID: "high", Count: 2},
		},
		SentimentStats: []countBucket{
			{ID: "neutral", Count: 6},
			{ID: "negative", Count: 1},
		},
		HourlyTrend: []countBucket{
			{ID: "2026-08-25 10:00:00", Count: 3},
			{ID: "2026-08-25 11:00:00", Count: 4},
		},
		Keywords: []countBucket{
			{ID: "refund", Count: 5},
			{ID: "billing", Count: 2},
		},
		AtRisk: []struct {
			CustomerID       string   `bson:"_id"`
			HighUrgencyCount int64    `bson:"high_urgency_count"`
			TicketIDs        []string `bson:"ticket_ids"`
		}{
			{CustomerID: "C1", HighUrgencyCount: 2, TicketIDs: []string{"X1", "X2"}},
		},
	}

	stats := buildStats(fr)

	assert.Equal(t, int64(7), stats.TotalTickets)
	assert.Equal(t, map[string]int64{"open": 4, "closed": 3}, stats.ByStatus)
	assert.Equal(t, 0.286, stats.UrgencyHighRatio)
	assert.Equal(t, 0.143, stats.NegativeSentimentRatio)
	assert.Equal(t, []models.HourBucket{
		{Hour: "2026-08-25 10:00:00", Count: 3},
		{Hour: "2026-08-25 11:00:00", Count: 4},
	}, stats.HourlyTrend)
	assert.Equal(t, []string{"refund", "billing"}, stats.TopKeywords)
	require.Len(t, stats.AtRiskCustomers, 1)
	assert.Equal(t, models.AtRiskCustomer{
		CustomerID:       "C1",
		HighUrgencyCount: 2,
		TicketIDs:        []string{"X1", "X2"},
	}, stats.AtRiskCustomers[0])
}

func TestBuildStatsMissingTotalFacet(t *testing.T) {
	stats := buildStats(facetResult{})

	assert.Zero(t, stats.TotalTickets)
	assert.Zero(t, stats.UrgencyHighRatio)
	assert.Zero(t, stats.NegativeSentimentRatio)
	assert.NotNil(t, stats.ByStatus)
	assert.NotNil(t, stats.HourlyTrend)
}

func TestEmptyStatsSerializesWithEmptyCollections(t *testing.T) {
	body, err := json.Marshal(emptyStats())
	require.NoError(t, err)

	// Collections must marshal as [] and {}, not null.
	assert.JSONEq(t, `{
		"total_tickets": 0,
		"by_status": {},
		"urgency_high_ratio": 0,
		"negative_sentiment_ratio": 0,
		"hourly_trend": [],
		"top_keywords": [],
		"at_risk_customers": []
	}`, string(body))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, ratio(5, 0))
	assert.Equal(t, 0.5, ratio(1, 2))
	assert.Equal(t, 0.333, ratio(1, 3))
	assert.Equal(t, 0.667, ratio(2, 3))
	assert.Equal(t, 1.0, ratio(3, 3))
}

func TestBuildPipelineShape(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	from := now.Add(-48 * time.Hour)

	pipeline := buildPipeline("T1", from, now, now)
	require.Len(t, pipeline, 2)

	match := pipeline[0]
	assert.Equal(t, "$match", match[0].Key)
	criteria := match[0].Value.(bson.M)
	assert.Equal(t, "T1", criteria["tenant_id"])
	assert.Equal(t, bson.M{"$exists": false}, criteria["deleted_at"])
	assert.Equal(t, bson.M{"$gte": from, "$lte": now}, criteria["created_at"])

	facetStage := pipeline[1]
	assert.Equal(t, "$facet", facetStage[0].Key)
	facets := facetStage[0].Value.(bson.M)
	for _, name := range []string{"total", "by_status", "urgency_stats", "sentiment_stats", "hourly_trend", "keywords", "at_risk"} {
		assert.Contains(t, facets, name)
	}

	// The trend facet looks back 24h from now, independent of the range filter.
	trend := facets["hourly_trend"].(bson.A)
	trendMatch := trend[0].(bson.M)["$match"].(bson.M)
	assert.Equal(t, bson.M{"$gte": now.Add(-24 * time.Hour)}, trendMatch["created_at"])

	// Keyword extraction drops stop words and short tokens.
	kw := facets["keywords"].(bson.A)
	kwMatch := kw[2].(bson.M)["$match"].(bson.M)["words"].(bson.M)
	assert.Equal(t, stopWords, kwMatch["$nin"])
	assert.Equal(t, "^[a-z]{4,}$", kwMatch["$regex"])

	// At-risk customers need at least two high-urgency tickets.
	atRisk := facets["at_risk"].(bson.A)
	assert.Equal(t, bson.M{"urgency": "high"}, atRisk[0].(bson.M)["$match"])
	assert.Equal(t, bson.M{"high_urgency_count": bson.M{"$gte": 2}}, atRisk[2].(bson.M)["$match"])
}

func TestWrapAggregateErrorMapsTimeouts(t *testing.T) {
	maxTime := mongo.CommandError{Code: 50, Name: "MaxTimeMSExpired", Message: "operation exceeded time limit"}
	assert.ErrorIs(t, wrapAggregateError(maxTime), ErrTimeout)

	deadline := fmt.Errorf("aggregate: %w", context.DeadlineExceeded)
	assert.ErrorIs(t, wrapAggregateError(deadline), ErrTimeout)

	other := wrapAggregateError(assert.AnError)
	assert.NotErrorIs(t, other, ErrTimeout)
	assert.ErrorIs(t, other, assert.AnError)
}
