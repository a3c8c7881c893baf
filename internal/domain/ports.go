package domain

import (
	"context"
	"time"
)

type ReviewRepository interface {
	// Write paths
	UpsertReview(ctx context.Context, r Review) error
	InsertSentiment(ctx context.Context, s Sentiment) error
	InsertClassification(ctx context.Context, c Classification) error
	InsertTopics(ctx context.Context, labels []string, reviewIDs []string) error
	InsertWeeklySummary(ctx context.Context, text string, at time.Time) error

	// Read paths
	ListNegativeSentiments(ctx context.Context, threshold float64, limit int) ([]SentimentWithReview, error)
	GetReview(ctx context.Context, id string) (Review, error)
	ListReviewRows(ctx context.Context, limit int) ([]ReviewRow, error)
	ListReviewRowsSince(ctx context.Context, since time.Time) ([]ReviewRow, error)
	SampleReviews(ctx context.Context, limit int) ([]Review, error)
	ListSentimentPoints(ctx context.Context) ([]SentimentPoint, error)
	ListTopics(ctx context.Context) ([]Topic, error)
	LatestWeeklySummary(ctx context.Context) (WeeklySummary, error)
}

type ReviewFeed interface {
	GetReviews(ctx context.Context, page, count int) ([]map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, keys ...string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// EventSource opens realtime subscriptions. onStatus receives connection-state
// transitions for the lifetime of the subscription.
type EventSource interface {
	Subscribe(ctx context.Context, table, eventType string, onStatus func(SubscriptionStatus, error)) (Subscription, error)
}

type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}
