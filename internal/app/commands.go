package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"review_pulse/internal/adapters/observability"
	"review_pulse/internal/alerts"
	"review_pulse/internal/domain"
	"review_pulse/internal/reviewtable"
	"review_pulse/internal/sentiment"
)

const (
	TopicSampleSize = 50
	TopicCount      = 5
	SummaryWindow   = 7 * 24 * time.Hour
)

// ValidationError reports required payload fields that were absent or empty.
type ValidationError struct{ Missing []string }

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// IngestResult is what ingestion stored for one review.
type IngestResult struct {
	ReviewID string   `json:"review_id"`
	Score    *float64 `json:"score"`
	Label    *string  `json:"classification"`
}

type IngestionService struct {
	feed  domain.ReviewFeed
	repo  domain.ReviewRepository
	cache domain.Cache
	pub   domain.EventPublisher

	// AlertThreshold is used for the alert count in weekly summaries.
	AlertThreshold float64
	now            func() time.Time
}

func NewIngestionService(f domain.ReviewFeed, r domain.ReviewRepository, cache domain.Cache, pub domain.EventPublisher) *IngestionService {
	return &IngestionService{
		feed:           f,
		repo:           r,
		cache:          cache,
		pub:            pub,
		AlertThreshold: alerts.DefaultThreshold,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// FetchPage pulls one page from the review feed and normalizes it. A page the
// feed does not know yields an empty slice.
func (s *IngestionService) FetchPage(ctx context.Context, page, count int) ([]domain.IncomingReview, error) {
	if s.feed == nil {
		return nil, errors.New("no review feed configured")
	}
	raw, err := s.feed.GetReviews(ctx, page, count)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch reviews page %d: %w", page, err)
	}
	out := make([]domain.IncomingReview, 0, len(raw))
	for _, p := range raw {
		out = append(out, mapReview(p))
	}
	return out, nil
}

// IngestWebhook validates a pushed review payload and ingests it.
func (s *IngestionService) IngestWebhook(ctx context.Context, payload map[string]any) (IngestResult, error) {
	if missing := missingFields(payload); len(missing) > 0 {
		return IngestResult{}, &ValidationError{Missing: missing}
	}
	in := mapReview(payload)
	if in.Review.ReviewDate == nil {
		return IngestResult{}, &ValidationError{Missing: []string{"review_date"}}
	}
	return s.IngestReview(ctx, in)
}

// IngestReview stores a review, scores and classifies it unless the producer
// already did, evicts the affected read models and announces the new sentiment.
func (s *IngestionService) IngestReview(ctx context.Context, in domain.IncomingReview) (IngestResult, error) {
	rv := in.Review
	if rv.ID == "" {
		return IngestResult{}, &ValidationError{Missing: []string{"id"}}
	}

	// Parent upsert first to satisfy FK for sentiments/classifications.
	if err := s.repo.UpsertReview(ctx, rv); err != nil {
		return IngestResult{}, fmt.Errorf("upsert review %s: %w", rv.ID, err)
	}
	res := IngestResult{ReviewID: rv.ID, Score: in.Score, Label: in.Label}

	text := strings.TrimSpace(deref(rv.Text))
	if res.Score == nil && text != "" {
		r := sentiment.Score(text)
		score := float64(r.Score)
		res.Score = &score
		summary := r.Summary
		if err := s.repo.InsertSentiment(ctx, domain.Sentiment{ReviewID: rv.ID, Score: &score, Summary: &summary}); err != nil {
			return res, fmt.Errorf("insert sentiment %s: %w", rv.ID, err)
		}
	} else if res.Score != nil {
		if err := s.repo.InsertSentiment(ctx, domain.Sentiment{ReviewID: rv.ID, Score: res.Score}); err != nil {
			return res, fmt.Errorf("insert sentiment %s: %w", rv.ID, err)
		}
	}

	if res.Label == nil && text != "" {
		label := sentiment.Classify(text)
		res.Label = &label
	}
	if res.Label != nil {
		if err := s.repo.InsertClassification(ctx, domain.Classification{ReviewID: rv.ID, Label: res.Label}); err != nil {
			return res, fmt.Errorf("insert classification %s: %w", rv.ID, err)
		}
		observability.ObserveIngest(*res.Label)
	} else {
		observability.ObserveIngest("none")
	}

	s.invalidate(ctx, keyReviewRows, keyTrend)

	if res.Score != nil {
		s.publish(ctx, rv.ID, *res.Score)
	}
	return res, nil
}

// ExtractTopics derives the most frequent terms from a sample of recent reviews
// and stores them tagged with the sampled review ids.
func (s *IngestionService) ExtractTopics(ctx context.Context) ([]string, error) {
	sample, err := s.repo.SampleReviews(ctx, TopicSampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample reviews: %w", err)
	}
	texts := make([]string, 0, len(sample))
	ids := make([]string, 0, len(sample))
	for _, rv := range sample {
		if t := sentiment.PlainText(deref(rv.Text)); t != "" {
			texts = append(texts, t)
			ids = append(ids, rv.ID)
		}
	}
	labels := sentiment.Topics(texts, TopicCount)
	if len(labels) == 0 {
		log.Info().Int("sample", len(sample)).Msg("no topics extracted")
		return labels, nil
	}
	if err := s.repo.InsertTopics(ctx, labels, ids); err != nil {
		return nil, fmt.Errorf("store topics: %w", err)
	}
	s.invalidate(ctx, keyTopics)
	log.Info().Strs("topics", labels).Int("sample", len(ids)).Msg("topics extracted")
	return labels, nil
}

// GenerateWeeklySummary writes a markdown digest of the last seven days.
func (s *IngestionService) GenerateWeeklySummary(ctx context.Context) (string, error) {
	now := s.now()
	rows, err := s.repo.ListReviewRowsSince(ctx, now.Add(-SummaryWindow))
	if err != nil {
		return "", fmt.Errorf("load week of reviews: %w", err)
	}
	md := weeklyDigest(rows, now, s.AlertThreshold)
	if err := s.repo.InsertWeeklySummary(ctx, md, now); err != nil {
		return "", fmt.Errorf("store weekly summary: %w", err)
	}
	s.invalidate(ctx, keyReport)
	log.Info().Int("reviews", len(rows)).Msg("weekly summary generated")
	return md, nil
}

func (s *IngestionService) publish(ctx context.Context, reviewID string, score float64) {
	if s.pub == nil {
		return
	}
	ev := domain.ChangeEvent{
		Table:           domain.TableSentiments,
		Type:            domain.EventInsert,
		CommitTimestamp: s.now(),
		New:             map[string]any{"review_id": reviewID, "score": score},
	}
	// the review is stored either way; live views just miss this one
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("review_id", reviewID).Msg("publish sentiment insert failed")
	}
}

func (s *IngestionService) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

func weeklyDigest(rows []domain.ReviewRow, now time.Time, threshold float64) string {
	var (
		sum     float64
		scored  int
		alertsN int
		buckets = map[reviewtable.Bucket]int{}
		labels  = map[string]int{}
	)
	for _, r := range rows {
		if r.SentimentScore != nil {
			sum += *r.SentimentScore
			scored++
			if *r.SentimentScore <= threshold {
				alertsN++
			}
		}
		if b, ok := reviewtable.BucketOf(r.SentimentScore); ok {
			buckets[b]++
		}
		if r.ClassificationLabel != nil {
			labels[*r.ClassificationLabel]++
		}
	}

	var b strings.Builder
	from := now.Add(-SummaryWindow)
	fmt.Fprintf(&b, "# Weekly review summary\n\n")
	fmt.Fprintf(&b, "_%s to %s_\n\n", from.Format("2006-01-02"), now.Format("2006-01-02"))
	fmt.Fprintf(&b, "- **Reviews:** %d\n", len(rows))
	if scored > 0 {
		fmt.Fprintf(&b, "- **Average sentiment:** %.1f / 5\n", math.Round(sum/float64(scored)*10)/10)
	} else {
		fmt.Fprintf(&b, "- **Average sentiment:** n/a\n")
	}
	fmt.Fprintf(&b, "- **Alerts (score at or below %g):** %d\n", threshold, alertsN)
	if top, n := topLabel(labels); top != "" {
		fmt.Fprintf(&b, "- **Top classification:** %s (%d)\n", top, n)
	}

	fmt.Fprintf(&b, "\n## Sentiment breakdown\n\n")
	fmt.Fprintf(&b, "| Bucket | Reviews |\n|---|---|\n")
	fmt.Fprintf(&b, "| Low | %d |\n", buckets[reviewtable.BucketLow])
	fmt.Fprintf(&b, "| Medium | %d |\n", buckets[reviewtable.BucketMedium])
	fmt.Fprintf(&b, "| High | %d |\n", buckets[reviewtable.BucketHigh])
	return b.String()
}

func topLabel(counts map[string]int) (string, int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, n := "", 0
	for _, k := range keys {
		if counts[k] > n {
			best, n = k, counts[k]
		}
	}
	return best, n
}
