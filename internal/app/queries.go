package app

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/russross/blackfriday/v2"

	"review_pulse/internal/domain"
	"review_pulse/internal/reviewtable"
)

// Cache keys for the read models. Ingestion and the background tasks evict them.
const (
	keyReviewRows = "reviews:rows"
	keyTrend      = "trend:sentiment"
	keyTopics     = "topics:cloud"
	keyReport     = "report:latest"
)

type QueryService struct {
	repo         domain.ReviewRepository
	cache        domain.Cache
	cacheTTL     time.Duration
	reviewsLimit int
}

func NewQueryService(r domain.ReviewRepository, c domain.Cache, ttl time.Duration, reviewsLimit int) *QueryService {
	if reviewsLimit <= 0 {
		reviewsLimit = 500
	}
	return &QueryService{repo: r, cache: c, cacheTTL: ttl, reviewsLimit: reviewsLimit}
}

// ReviewsPage is one table page plus the labels offered by the classification filter.
type ReviewsPage struct {
	reviewtable.Page
	Query           reviewtable.Query `json:"query"`
	Classifications []string          `json:"classifications"`
}

// ReviewRows returns the flattened row set the review table works over.
func (s *QueryService) ReviewRows(ctx context.Context) ([]domain.ReviewRow, error) {
	var rows []domain.ReviewRow
	err := s.cached(ctx, keyReviewRows, &rows, func() (any, error) {
		rs, err := s.repo.ListReviewRows(ctx, s.reviewsLimit)
		if err != nil {
			return nil, err
		}
		// copy slice to avoid aliasing the repo's backing array
		rows = append([]domain.ReviewRow(nil), rs...)
		return rows, nil
	})
	return rows, err
}

func (s *QueryService) ReviewsPage(ctx context.Context, q reviewtable.Query) (ReviewsPage, error) {
	rows, err := s.ReviewRows(ctx)
	if err != nil {
		return ReviewsPage{}, err
	}
	p := reviewtable.Apply(rows, q)
	q.Page = p.Page
	return ReviewsPage{Page: p, Query: q, Classifications: reviewtable.Classifications(rows)}, nil
}

// SentimentTrend returns dated sentiment points in ascending date order.
func (s *QueryService) SentimentTrend(ctx context.Context) ([]domain.SentimentPoint, error) {
	var pts []domain.SentimentPoint
	err := s.cached(ctx, keyTrend, &pts, func() (any, error) {
		ps, err := s.repo.ListSentimentPoints(ctx)
		if err != nil {
			return nil, err
		}
		pts = append([]domain.SentimentPoint(nil), ps...)
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].ReviewDate.Before(pts[j].ReviewDate) })
		return pts, nil
	})
	return pts, err
}

// TopicCloud weights each topic label by the number of reviews tagged with it.
// Unlabelled topics are dropped.
func (s *QueryService) TopicCloud(ctx context.Context) ([]domain.WordCloudItem, error) {
	var items []domain.WordCloudItem
	err := s.cached(ctx, keyTopics, &items, func() (any, error) {
		topics, err := s.repo.ListTopics(ctx)
		if err != nil {
			return nil, err
		}
		items = wordCloud(topics)
		return items, nil
	})
	return items, err
}

// LatestReport returns the newest weekly summary rendered to HTML, or
// domain.ErrNotFound when none has been generated yet.
func (s *QueryService) LatestReport(ctx context.Context) (domain.Report, error) {
	var rep domain.Report
	err := s.cached(ctx, keyReport, &rep, func() (any, error) {
		ws, err := s.repo.LatestWeeklySummary(ctx)
		if err != nil {
			return nil, err
		}
		rep = domain.Report{WeeklySummary: ws}
		if ws.SummaryText != nil {
			rep.SummaryHTML = string(blackfriday.Run([]byte(*ws.SummaryText)))
		}
		return rep, nil
	})
	return rep, err
}

// cached is the cache-aside read: dst is filled from cache on a hit, otherwise
// load fills it and the result is stored. Cache failures never fail the read.
func (s *QueryService) cached(ctx context.Context, key string, dst any, load func() (any, error)) error {
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, dst); ok {
			return nil
		}
	}
	v, err := load()
	if err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	// optional size guard
	if b, _ := json.Marshal(v); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))
	}
	return nil
}

func wordCloud(topics []domain.Topic) []domain.WordCloudItem {
	counts := map[string]int{}
	for _, t := range topics {
		if t.Label == nil || *t.Label == "" || *t.Label == "Unknown" {
			continue
		}
		n := len(t.ReviewIDs)
		if n == 0 {
			n = 1
		}
		counts[*t.Label] += n
	}
	out := make([]domain.WordCloudItem, 0, len(counts))
	for text, v := range counts {
		out = append(out, domain.WordCloudItem{Text: text, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Text < out[j].Text
	})
	return out
}
