package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"review_pulse/internal/domain"
	mysqlrepo "review_pulse/internal/storage/mysql"
)

func newMock(t *testing.T) (*mysqlrepo.Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return mysqlrepo.New(db), mock
}

func TestListNegativeSentiments_JoinsAndKeepsOrphans(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN reviews r ON r.id = s.review_id")).
		WithArgs(2.0, 50).
		WillReturnRows(sqlmock.NewRows([]string{"review_id", "score", "id", "text", "review_date"}).
			AddRow("r-2", 1.0, "r-2", "Cold room", at).
			AddRow("r-gone", 2.0, nil, nil, nil))

	got, err := repo.ListNegativeSentiments(context.Background(), 2, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Review == nil || *got[0].Review.Text != "Cold room" || !got[0].Review.ReviewDate.Equal(at) {
		t.Fatalf("unexpected joined review: %+v", got[0].Review)
	}
	if got[1].Review != nil {
		t.Fatalf("orphan row should have nil review, got %+v", got[1].Review)
	}
	if got[1].Score == nil || *got[1].Score != 2 {
		t.Fatalf("orphan score lost: %+v", got[1])
	}
}

func TestListNegativeSentiments_QueryError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM sentiments s").WillReturnError(errors.New("connection reset"))

	if _, err := repo.ListNegativeSentiments(context.Background(), 2, 50); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGetReview_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM reviews WHERE id = ?").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetReview(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReview_DecodesMetadata(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM reviews WHERE id = ?").
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "review_date", "metadata"}).
			AddRow("r-1", "Lovely stay", nil, []byte(`{"rating":4,"source":"web"}`)))

	rv, err := repo.GetReview(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rv.ReviewDate != nil {
		t.Fatalf("expected nil review date")
	}
	if rv.Metadata["rating"] != 4.0 || rv.Metadata["source"] != "web" {
		t.Fatalf("unexpected metadata: %#v", rv.Metadata)
	}
}

func TestListReviewRows_FlattensLatestSentimentAndLabel(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM reviews r").
		WithArgs(200).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "review_date", "metadata", "score", "label"}).
			AddRow("r-1", "Great staff", at, nil, 5.0, "Service").
			AddRow("r-2", nil, nil, nil, nil, nil))

	rows, err := repo.ListReviewRows(context.Background(), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if *rows[0].SentimentScore != 5 || *rows[0].ClassificationLabel != "Service" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].SentimentScore != nil || rows[1].ClassificationLabel != nil || rows[1].Text != nil {
		t.Fatalf("missing values should stay nil: %+v", rows[1])
	}
}

func TestUpsertReview_EncodesMetadata(t *testing.T) {
	repo, mock := newMock(t)
	text := "Quiet room"
	at := time.Date(2025, 4, 3, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO reviews").
		WithArgs("r-9", "Quiet room", at, `{"rating":5}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertReview(context.Background(), domain.Review{
		ID: "r-9", Text: &text, ReviewDate: &at, Metadata: map[string]any{"rating": 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInsertTopics_OneRowPerLabelInTx(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO topics").WithArgs("breakfast", `["r-1","r-2"]`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO topics").WithArgs("parking", `["r-1","r-2"]`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := repo.InsertTopics(context.Background(), []string{"breakfast", "parking"}, []string{"r-1", "r-2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInsertTopics_RollsBackOnFailure(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO topics").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := repo.InsertTopics(context.Background(), []string{"breakfast"}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLatestWeeklySummary_NoneIsNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM weekly_summaries").WillReturnError(sql.ErrNoRows)

	if _, err := repo.LatestWeeklySummary(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTopics_DecodesReviewIDs(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM topics").
		WillReturnRows(sqlmock.NewRows([]string{"topic_id", "label", "review_ids"}).
			AddRow(int64(3), "parking", []byte(`["a","b"]`)).
			AddRow(int64(2), nil, nil))

	got, err := repo.ListTopics(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || len(got[0].ReviewIDs) != 2 || got[1].Label != nil {
		t.Fatalf("unexpected topics: %+v", got)
	}
}
