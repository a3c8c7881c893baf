package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"review_pulse/internal/app"
	"review_pulse/internal/domain"
)

type fakePub struct {
	events []domain.ChangeEvent
	err    error
}

func (p *fakePub) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

type fakeFeed struct {
	pages map[int][]map[string]any
	err   error
}

func (f *fakeFeed) GetReviews(ctx context.Context, page, count int) ([]map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pages[page]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func TestIngestWebhook_MissingFields(t *testing.T) {
	ing := app.NewIngestionService(nil, &fakeRepo{}, nil, nil)

	_, err := ing.IngestWebhook(context.Background(), map[string]any{"text": "ok"})
	var ve *app.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if strings.Join(ve.Missing, ",") != "id,review_date" {
		t.Fatalf("unexpected missing fields: %v", ve.Missing)
	}

	_, err = ing.IngestWebhook(context.Background(), map[string]any{})
	if !errors.As(err, &ve) || len(ve.Missing) != 3 {
		t.Fatalf("empty payload should miss every field, got %v", err)
	}
}

func TestIngestWebhook_ScoresClassifiesAndPublishes(t *testing.T) {
	repo := &fakeRepo{}
	cache := &fakeCache{}
	pub := &fakePub{}
	ing := app.NewIngestionService(nil, repo, cache, pub)

	res, err := ing.IngestWebhook(context.Background(), map[string]any{
		"id":          "r-42",
		"text":        "The staff were rude and the reception was slow. Terrible, awful stay.",
		"review_date": "2025-04-02T10:00:00Z",
		"rating":      "1,5",
		"channel":     "web",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Score == nil || *res.Score > 2 {
		t.Fatalf("expected a negative score, got %v", res.Score)
	}
	if res.Label == nil || *res.Label != "Service" {
		t.Fatalf("expected Service classification, got %v", res.Label)
	}

	if len(repo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(repo.upserted))
	}
	rv := repo.upserted[0]
	if rv.ReviewDate == nil || rv.ReviewDate.Day() != 2 {
		t.Fatalf("review date not parsed: %v", rv.ReviewDate)
	}
	if rv.Metadata["rating"] != 1.5 || rv.Metadata["channel"] != "web" {
		t.Fatalf("unexpected metadata: %#v", rv.Metadata)
	}
	if len(repo.sentiments) != 1 || repo.sentiments[0].Summary == nil {
		t.Fatalf("sentiment not stored: %+v", repo.sentiments)
	}
	if len(repo.classifications) != 1 {
		t.Fatalf("classification not stored")
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Table != domain.TableSentiments || ev.Type != domain.EventInsert || ev.New["review_id"] != "r-42" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if strings.Join(cache.deleted, ",") != "reviews:rows,trend:sentiment" {
		t.Fatalf("unexpected invalidations: %v", cache.deleted)
	}
}

func TestIngestReview_KeepsProducerAnnotations(t *testing.T) {
	repo := &fakeRepo{}
	ing := app.NewIngestionService(nil, repo, nil, nil)

	_, err := ing.IngestReview(context.Background(), domain.IncomingReview{
		Review: domain.Review{ID: "r-1", Text: ptr("Wonderful views of the sea")},
		Score:  pfloat(1),
		Label:  ptr("Location"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if *repo.sentiments[0].Score != 1 || *repo.classifications[0].Label != "Location" {
		t.Fatalf("producer annotations overwritten: %+v %+v", repo.sentiments, repo.classifications)
	}
}

func TestIngestReview_PublishFailureIsNotFatal(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePub{err: errors.New("redis down")}
	ing := app.NewIngestionService(nil, repo, nil, pub)

	_, err := ing.IngestReview(context.Background(), domain.IncomingReview{
		Review: domain.Review{ID: "r-1", Text: ptr("Cold shower")},
	})
	if err != nil {
		t.Fatalf("publish failure must not fail ingestion: %v", err)
	}
	if len(repo.upserted) != 1 || len(pub.events) != 1 {
		t.Fatalf("review should be stored and publish attempted")
	}
}

func TestIngestReview_NoTextStoresReviewOnly(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePub{}
	ing := app.NewIngestionService(nil, repo, nil, pub)

	if _, err := ing.IngestReview(context.Background(), domain.IncomingReview{Review: domain.Review{ID: "r-1"}}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(repo.sentiments) != 0 || len(repo.classifications) != 0 || len(pub.events) != 0 {
		t.Fatalf("nothing to score, nothing to announce")
	}
}

func TestFetchPage_MapsAliasesAndRelationShapes(t *testing.T) {
	feed := &fakeFeed{pages: map[int][]map[string]any{
		1: {
			{
				"review_id":       "a",
				"comment":         "Parking was easy",
				"date":            "2025-04-01",
				"sentiments":      []any{map[string]any{"score": 2.0}},
				"classifications": map[string]any{"label": "Location"},
			},
			{
				"body":       "No id here",
				"created_at": float64(time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC).Unix()),
				"sentiment":  map[string]any{"score": "4"},
			},
		},
	}}
	ing := app.NewIngestionService(feed, &fakeRepo{}, nil, nil)

	got, err := ing.FetchPage(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(got))
	}
	a := got[0]
	if a.Review.ID != "a" || *a.Review.Text != "Parking was easy" || a.Review.ReviewDate == nil {
		t.Fatalf("unexpected first review: %+v", a.Review)
	}
	if a.Score == nil || *a.Score != 2 || a.Label == nil || *a.Label != "Location" {
		t.Fatalf("relations not mapped: %+v", a)
	}
	if a.Review.Metadata != nil {
		t.Fatalf("relations must not leak into metadata: %#v", a.Review.Metadata)
	}
	b := got[1]
	if len(b.Review.ID) != 40 {
		t.Fatalf("expected synthesized sha1 id, got %q", b.Review.ID)
	}
	if b.Review.ReviewDate == nil || b.Review.ReviewDate.Day() != 3 {
		t.Fatalf("unix date not parsed: %v", b.Review.ReviewDate)
	}
	if b.Score == nil || *b.Score != 4 {
		t.Fatalf("object relation not mapped: %+v", b)
	}

	// past the last page
	if got, err := ing.FetchPage(context.Background(), 2, 100); err != nil || len(got) != 0 {
		t.Fatalf("expected empty page, got %d %v", len(got), err)
	}
}

func TestFetchPage_FeedError(t *testing.T) {
	ing := app.NewIngestionService(&fakeFeed{err: errors.New("502")}, &fakeRepo{}, nil, nil)
	if _, err := ing.FetchPage(context.Background(), 1, 10); err == nil {
		t.Fatalf("expected error")
	}
}

func TestExtractTopics_StoresSampledIDs(t *testing.T) {
	repo := &fakeRepo{sample: []domain.Review{
		{ID: "a", Text: ptr("Breakfast was cold, parking expensive")},
		{ID: "b", Text: ptr("Loved the **breakfast** buffet")},
		{ID: "c", Text: ptr("Parking garage was full; breakfast fine")},
		{ID: "d"},
	}}
	cache := &fakeCache{}
	ing := app.NewIngestionService(nil, repo, cache, nil)

	labels, err := ing.ExtractTopics(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(labels) == 0 || labels[0] != "breakfast" {
		t.Fatalf("unexpected topics: %v", labels)
	}
	if strings.Join(repo.topicIDs, ",") != "a,b,c" {
		t.Fatalf("expected sampled ids with text, got %v", repo.topicIDs)
	}
	if strings.Join(cache.deleted, ",") != "topics:cloud" {
		t.Fatalf("topic cloud not invalidated: %v", cache.deleted)
	}
}

func TestGenerateWeeklySummary_Digest(t *testing.T) {
	repo := &fakeRepo{rows: []domain.ReviewRow{
		{ID: "a", SentimentScore: pfloat(1), ClassificationLabel: ptr("Service")},
		{ID: "b", SentimentScore: pfloat(2), ClassificationLabel: ptr("Service")},
		{ID: "c", SentimentScore: pfloat(5), ClassificationLabel: ptr("Location")},
		{ID: "d"},
	}}
	cache := &fakeCache{}
	ing := app.NewIngestionService(nil, repo, cache, nil)

	md, err := ing.GenerateWeeklySummary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{
		"- **Reviews:** 4",
		"- **Average sentiment:** 2.7 / 5",
		"- **Alerts (score at or below 2):** 2",
		"- **Top classification:** Service (2)",
		"| Low | 2 |",
		"| High | 1 |",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("digest missing %q:\n%s", want, md)
		}
	}
	if len(repo.summaries) != 1 {
		t.Fatalf("summary not stored")
	}
	if time.Since(repo.since) < 7*24*time.Hour-time.Minute {
		t.Fatalf("expected a seven day window, got since=%s", repo.since)
	}
	if strings.Join(cache.deleted, ",") != "report:latest" {
		t.Fatalf("report not invalidated: %v", cache.deleted)
	}
}
