// Package analytics computes per-tenant ticket statistics with a single
// multi-facet MongoDB aggregation.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/terminal-bench/ticketvault/internal/models"
)

// ErrTimeout is returned when the aggregation exceeds maxAggregationTime.
// The HTTP boundary maps it to 504.
var ErrTimeout = errors.New("stats aggregation exceeded time limit")

const (
	defaultRange       = 60 * 24 * time.Hour
	maxAggregationTime = 2 * time.Second
)

var stopWords = bson.A{
	"the", "a", "an", "and", "or", "but", "in", "on", "at",
	"to", "for", "of", "with", "is", "are", "was", "were", "",
}

// Service runs the tenant stats aggregation.
type Service struct {
	tickets *mongo.Collection
	now     func() time.Time
}

// NewService creates an analytics service over the tickets collection.
func NewService(tickets *mongo.Collection) *Service {
	return &Service{
		tickets: tickets,
		now:     time.Now,
	}
}

// GetTenantStats aggregates six facets over the tenant's live tickets whose
// created_at falls in [from, to]. Defaults: to=now, from=to-60d.
func (s *Service) GetTenantStats(ctx context.Context, tenantID string, from, to *time.Time) (*models.TenantStats, error) {
	now := s.now().UTC()

	toDate := now
	if to != nil {
		toDate = *to
	}
	fromDate := toDate.Add(-defaultRange)
	if from != nil {
		fromDate = *from
	}

	pipeline := buildPipeline(tenantID, fromDate, toDate, now)

	cursor, err := s.tickets.Aggregate(ctx, pipeline,
		options.Aggregate().SetMaxTime(maxAggregationTime))
	if err != nil {
		return nil, wrapAggregateError(err)
	}
	defer cursor.Close(ctx)

	var results []facetResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, wrapAggregateError(err)
	}

	if len(results) == 0 {
		return emptyStats(), nil
	}
	return buildStats(results[0]), nil
}

func wrapAggregateError(err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 50 { // MaxTimeMSExpired
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("stats aggregation: %w", err)
}

// buildPipeline assembles the $match + $facet pipeline. All computation runs
// server-side in one pass over the filtered set.
func buildPipeline(tenantID string, from, to, now time.Time) mongo.Pipeline {
	match := bson.D{{Key: "$match", Value: bson.M{
		"tenant_id":  tenantID,
		"deleted_at": bson.M{"$exists": false},
		"created_at": bson.M{"$gte": from, "$lte": to},
	}}}

	count := func(field string) bson.A {
		return bson.A{bson.M{"$group": bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}}
	}

	facet := bson.D{{Key: "$facet", Value: bson.M{
		"total": bson.A{
			bson.M{"$count": "count"},
		},
		"by_status":       count("status"),
		"urgency_stats":   count("urgency"),
		"sentiment_stats": count("sentiment"),
		"hourly_trend": bson.A{
			bson.M{"$match": bson.M{
				"created_at": bson.M{"$gte": now.Add(-24 * time.Hour)},
			}},
			bson.M{"$group": bson.M{
				"_id": bson.M{"$dateToString": bson.M{
					"format": "%Y-%m-%d %H:00:00",
					"date":   "$created_at",
				}},
				"count": bson.M{"$sum": 1},
			}},
			bson.M{"$sort": bson.M{"_id": 1}},
			bson.M{"$limit": 24},
		},
		"keywords": bson.A{
			bson.M{"$project": bson.M{
				"words": bson.M{"$split": bson.A{bson.M{"$toLower": "$message"}, " "}},
			}},
			bson.M{"$unwind": "$words"},
			bson.M{"$match": bson.M{
				"words": bson.M{
					"$nin":   stopWords,
					"$regex": "^[a-z]{4,}$",
				},
			}},
			bson.M{"$group": bson.M{"_id": "$words", "count": bson.M{"$sum": 1}}},
			bson.M{"$sort": bson.M{"count": -1}},
			bson.M{"$limit": 10},
		},
		"at_risk": bson.A{
			bson.M{"$match": bson.M{"urgency": models.UrgencyHigh}},
			bson.M{"$group": bson.M{
				"_id":                "$customer_id",
				"high_urgency_count": bson.M{"$sum": 1},
				"ticket_ids":         bson.M{"$push": "$external_id"},
			}},
			bson.M{"$match": bson.M{"high_urgency_count": bson.M{"$gte": 2}}},
			bson.M{"$sort": bson.M{"high_urgency_count": -1}},
			bson.M{"$limit": 10},
		},
	}}}

	return mongo.Pipeline{match, facet}
}

type countBucket struct {
	ID    string `bson:"_id"`
	Count int64  `bson:"count"`
}

type facetResult struct {
	Total []struct {
		Count int64 `bson:"count"`
	} `bson:"total"`
	ByStatus       []countBucket `bson:"by_status"`
	UrgencyStats   []countBucket `bson:"urgency_stats"`
	SentimentStats []countBucket `bson:"sentiment_stats"`
	HourlyTrend    []countBucket `bson:"hourly_trend"`
	Keywords       []countBucket `bson:"keywords"`
	AtRisk         []struct {
		CustomerID       string   `bson:"_id"`
		HighUrgencyCount int64    `bson:"high_urgency_count"`
		TicketIDs        []string `bson:"ticket_ids"`
	} `bson:"at_risk"`
}

// buildStats shapes the raw facet output into the API response.
func buildStats(fr facetResult) *models.TenantStats {
	var total int64
	if len(fr.Total) > 0 {
		total = fr.Total[0].Count
	}

	byStatus := make(map[string]int64, len(fr.ByStatus))
	for _, b := range fr.ByStatus {
		byStatus[b.ID] = b.Count
	}

	var highCount, negativeCount int64
	for _, b := range fr.UrgencyStats {
		if b.ID == models.UrgencyHigh {
			highCount = b.Count
		}
	}
	for _, b := range fr.SentimentStats {
		if b.ID == models.SentimentNegative {
			negativeCount = b.Count
		}
	}

	hourly := make([]models.HourBucket, 0, len(fr.HourlyTrend))
	for _, b := range fr.HourlyTrend {
		hourly = append(hourly, models.HourBucket{Hour: b.ID, Count: b.Count})
	}

	keywords := make([]string, 0, len(fr.Keywords))
	for _, b := range fr.Keywords {
		keywords = append(keywords, b.ID)
	}

	atRisk := make([]models.AtRiskCustomer, 0, len(fr.AtRisk))
	for _, c := range fr.AtRisk {
		atRisk = append(atRisk, models.AtRiskCustomer{
			CustomerID:       c.CustomerID,
			HighUrgencyCount: c.HighUrgencyCount,
			TicketIDs:        c.TicketIDs,
		})
	}

	return &models.TenantStats{
		TotalTickets:           total,
		ByStatus:               byStatus,
		UrgencyHighRatio:       ratio(highCount, total),
		NegativeSentimentRatio: ratio(negativeCount, total),
		HourlyTrend:            hourly,
		TopKeywords:            keywords,
		AtRiskCustomers:        atRisk,
	}
}

func emptyStats() *models.TenantStats {
	return &models.TenantStats{
		ByStatus:        map[string]int64{},
		HourlyTrend:     []models.HourBucket{},
		TopKeywords:     []string{},
		AtRiskCustomers: []models.AtRiskCustomer{},
	}
}

// ratio returns part/total rounded to 3 decimal places, 0 when total is 0.
func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 1000
}
