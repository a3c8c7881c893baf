// Package alerts loads negative-sentiment alerts and merges realtime sentiment
// inserts into a per-view alert list.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"review_pulse/internal/domain"
)

const (
	DefaultThreshold = 2
	DefaultLimit     = 50
)

// Store is the slice of the review repository the alert feed reads from.
type Store interface {
	ListNegativeSentiments(ctx context.Context, threshold float64, limit int) ([]domain.SentimentWithReview, error)
	GetReview(ctx context.Context, id string) (domain.Review, error)
}

type Feed struct {
	store     Store
	threshold float64
	limit     int
}

func NewFeed(s Store, threshold float64, limit int) *Feed {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Feed{store: s, threshold: threshold, limit: limit}
}

func (f *Feed) Threshold() float64 { return f.threshold }

// Load runs the initial bounded query. On failure it returns an empty list and
// the error; it never returns a partial list.
func (f *Feed) Load(ctx context.Context) ([]domain.Alert, error) {
	rows, err := f.store.ListNegativeSentiments(ctx, f.threshold, f.limit)
	if err != nil {
		return []domain.Alert{}, fmt.Errorf("load alerts: %w", err)
	}
	out := make([]domain.Alert, 0, len(rows))
	for _, r := range rows {
		if r.Review == nil {
			continue
		}
		out = append(out, domain.Alert{
			ReviewID:   r.Review.ID,
			Text:       r.Review.Text,
			ReviewDate: r.Review.ReviewDate,
			Score:      r.Score,
		})
	}
	return out, nil
}

// Qualifies reports whether an insert event carries a score at or below the
// threshold, and returns the review it points at.
func (f *Feed) Qualifies(ev domain.ChangeEvent) (reviewID string, score float64, ok bool) {
	score, ok = number(ev.New["score"])
	if !ok || score > f.threshold {
		return "", 0, false
	}
	reviewID, ok = text(ev.New["review_id"])
	if !ok || reviewID == "" {
		return "", 0, false
	}
	return reviewID, score, true
}

// Resolve fetches the review behind a qualifying event and builds its alert.
func (f *Feed) Resolve(ctx context.Context, reviewID string, score float64) (domain.Alert, error) {
	r, err := f.store.GetReview(ctx, reviewID)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("fetch review %s: %w", reviewID, err)
	}
	s := score
	return domain.Alert{
		ReviewID:   r.ID,
		Text:       r.Text,
		ReviewDate: r.ReviewDate,
		Score:      &s,
	}, nil
}

// Prepend returns a new list with a at index 0. The input is left untouched.
func Prepend(list []domain.Alert, a domain.Alert) []domain.Alert {
	out := make([]domain.Alert, 0, len(list)+1)
	out = append(out, a)
	return append(out, list...)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func text(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case json.Number:
		return s.String(), true
	}
	return "", false
}
