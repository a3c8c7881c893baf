package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"review_pulse/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
func valJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
func f64Ptr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertReview(ctx context.Context, rv domain.Review) error {
	var meta any
	if len(rv.Metadata) > 0 {
		var err error
		if meta, err = valJSON(rv.Metadata); err != nil {
			return fmt.Errorf("encode metadata for %s: %w", rv.ID, err)
		}
	}
	_, err := r.db.ExecContext(ctx, upsertReviewSQL,
		rv.ID,
		valStr(rv.Text),
		valTime(rv.ReviewDate),
		meta,
	)
	return err
}

func (r *Repo) InsertSentiment(ctx context.Context, s domain.Sentiment) error {
	_, err := r.db.ExecContext(ctx, insertSentimentSQL, s.ReviewID, valF64(s.Score), valStr(s.Summary))
	return err
}

func (r *Repo) InsertClassification(ctx context.Context, c domain.Classification) error {
	_, err := r.db.ExecContext(ctx, insertClassificationSQL, c.ReviewID, valStr(c.Label))
	return err
}

// InsertTopics stores one row per label, all tagged with the same review ids.
func (r *Repo) InsertTopics(ctx context.Context, labels []string, reviewIDs []string) error {
	if len(labels) == 0 {
		return nil
	}
	if reviewIDs == nil {
		reviewIDs = []string{}
	}
	ids, err := valJSON(reviewIDs)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, l := range labels {
		if _, err := tx.ExecContext(ctx, insertTopicSQL, l, ids); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert topic %q: %w", l, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) InsertWeeklySummary(ctx context.Context, text string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, insertWeeklySummarySQL, text, at.UTC())
	return err
}

func (r *Repo) ListNegativeSentiments(ctx context.Context, threshold float64, limit int) ([]domain.SentimentWithReview, error) {
	rows, err := r.db.QueryContext(ctx, listNegativeSentimentsSQL, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SentimentWithReview{}
	for rows.Next() {
		var (
			sw         domain.SentimentWithReview
			score      sql.NullFloat64
			reviewID   sql.NullString
			text       sql.NullString
			reviewDate sql.NullTime
		)
		if err := rows.Scan(&sw.ReviewID, &score, &reviewID, &text, &reviewDate); err != nil {
			return nil, err
		}
		sw.Score = f64Ptr(score)
		// NULL id means the joined review is gone
		if reviewID.Valid {
			sw.Review = &domain.Review{
				ID:         reviewID.String,
				Text:       strPtr(text),
				ReviewDate: timePtr(reviewDate),
			}
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

func (r *Repo) GetReview(ctx context.Context, id string) (domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, getReviewSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, err
}

func (r *Repo) ListReviewRows(ctx context.Context, limit int) ([]domain.ReviewRow, error) {
	return r.queryReviewRows(ctx, listReviewRowsSQL, limit)
}

func (r *Repo) ListReviewRowsSince(ctx context.Context, since time.Time) ([]domain.ReviewRow, error) {
	return r.queryReviewRows(ctx, listReviewRowsSinceSQL, since.UTC())
}

func (r *Repo) SampleReviews(ctx context.Context, limit int) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, sampleReviewsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) ListSentimentPoints(ctx context.Context) ([]domain.SentimentPoint, error) {
	rows, err := r.db.QueryContext(ctx, listSentimentPointsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SentimentPoint{}
	for rows.Next() {
		var p domain.SentimentPoint
		var score sql.NullFloat64
		if err := rows.Scan(&p.ReviewDate, &score); err != nil {
			return nil, err
		}
		p.Score = f64Ptr(score)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	rows, err := r.db.QueryContext(ctx, listTopicsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Topic{}
	for rows.Next() {
		var (
			t     domain.Topic
			label sql.NullString
			ids   []byte
		)
		if err := rows.Scan(&t.TopicID, &label, &ids); err != nil {
			return nil, err
		}
		t.Label = strPtr(label)
		if len(ids) > 0 {
			if err := json.Unmarshal(ids, &t.ReviewIDs); err != nil {
				return nil, fmt.Errorf("decode review ids for topic %d: %w", t.TopicID, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) LatestWeeklySummary(ctx context.Context) (domain.WeeklySummary, error) {
	var (
		ws   domain.WeeklySummary
		text sql.NullString
		at   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, latestWeeklySummarySQL).Scan(&ws.ID, &text, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WeeklySummary{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	ws.SummaryText = strPtr(text)
	ws.GeneratedAt = timePtr(at)
	return ws, nil
}

func (r *Repo) queryReviewRows(ctx context.Context, query string, args ...any) ([]domain.ReviewRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ReviewRow{}
	for rows.Next() {
		var (
			row        domain.ReviewRow
			text       sql.NullString
			reviewDate sql.NullTime
			meta       []byte
			score      sql.NullFloat64
			label      sql.NullString
		)
		if err := rows.Scan(&row.ID, &text, &reviewDate, &meta, &score, &label); err != nil {
			return nil, err
		}
		row.Text = strPtr(text)
		row.ReviewDate = timePtr(reviewDate)
		row.SentimentScore = f64Ptr(score)
		row.ClassificationLabel = strPtr(label)
		if row.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanReview(s scanner) (domain.Review, error) {
	var (
		rv         domain.Review
		text       sql.NullString
		reviewDate sql.NullTime
		meta       []byte
	)
	if err := s.Scan(&rv.ID, &text, &reviewDate, &meta); err != nil {
		return domain.Review{}, err
	}
	rv.Text = strPtr(text)
	rv.ReviewDate = timePtr(reviewDate)
	m, err := decodeMetadata(meta)
	if err != nil {
		return domain.Review{}, fmt.Errorf("decode metadata for %s: %w", rv.ID, err)
	}
	rv.Metadata = m
	return rv, nil
}

func decodeMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
