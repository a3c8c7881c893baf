package domain

import "time"

type Review struct {
	ID         string         `json:"id"`
	Text       *string        `json:"text"`
	ReviewDate *time.Time     `json:"review_date"`
	Metadata   map[string]any `json:"metadata"`
}

type Sentiment struct {
	ReviewID string
	Score    *float64
	Summary  *string
}

type Classification struct {
	ReviewID string
	Label    *string
}

// IncomingReview is a review on its way in. Score and Label are set when the
// producer already annotated the review; otherwise ingestion computes them.
type IncomingReview struct {
	Review Review
	Score  *float64
	Label  *string
}

// ReviewRow is a review flattened with its optional sentiment and classification.
type ReviewRow struct {
	ID                  string         `json:"id"`
	Text                *string        `json:"text"`
	ReviewDate          *time.Time     `json:"review_date"`
	Metadata            map[string]any `json:"metadata"`
	SentimentScore      *float64       `json:"sentiment_score"`
	ClassificationLabel *string        `json:"classification_label"`
}

type SentimentPoint struct {
	ReviewDate time.Time `json:"review_date"`
	Score      *float64  `json:"score"`
}

type Topic struct {
	TopicID   int64    `json:"topic_id"`
	Label     *string  `json:"label"`
	ReviewIDs []string `json:"review_ids"`
}

type WordCloudItem struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type WeeklySummary struct {
	ID          int64      `json:"id"`
	SummaryText *string    `json:"summary_text"`
	GeneratedAt *time.Time `json:"generated_at"`
}

// Report is a weekly summary with its markdown rendered for display.
type Report struct {
	WeeklySummary
	SummaryHTML string `json:"summary_html"`
}
