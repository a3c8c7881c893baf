package domain

import "time"

// Alert is a negative-sentiment review surfaced for attention.
type Alert struct {
	ReviewID   string     `json:"review_id"`
	Text       *string    `json:"text"`
	ReviewDate *time.Time `json:"review_date"`
	Score      *float64   `json:"score"`
}

// SentimentWithReview is a sentiment row joined to its parent review.
// Review is nil when the parent row is missing.
type SentimentWithReview struct {
	ReviewID string
	Score    *float64
	Review   *Review
}

const (
	TableSentiments = "sentiments"
	EventInsert     = "INSERT"
)

// ChangeEvent is a row-level change notification delivered by the realtime feed.
type ChangeEvent struct {
	Table           string         `json:"table"`
	Type            string         `json:"type"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
	New             map[string]any `json:"new"`
}

type SubscriptionStatus string

const (
	StatusConnecting SubscriptionStatus = "connecting"
	StatusConnected  SubscriptionStatus = "connected"
	StatusError      SubscriptionStatus = "error"
	StatusTimeout    SubscriptionStatus = "timeout"
)
