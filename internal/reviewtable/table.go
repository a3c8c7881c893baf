// Package reviewtable filters, sorts and paginates an already-fetched set of
// review rows for the reviews table.
package reviewtable

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"review_pulse/internal/domain"
)

type Bucket string

const (
	BucketAll    Bucket = "all"
	BucketLow    Bucket = "low"    // score <= 2
	BucketMedium Bucket = "medium" // 2 < score < 4
	BucketHigh   Bucket = "high"   // score >= 4
)

type Field string

const (
	FieldReviewDate     Field = "review_date"
	FieldSentimentScore Field = "sentiment_score"
	FieldClassification Field = "classification_label"
	FieldRating         Field = "rating"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

const (
	AllClassifications = "all"
	DefaultPageSize    = 10
	maxPageButtons     = 5
)

type Query struct {
	Classification string    `json:"classification"`
	Sentiment      Bucket    `json:"sentiment"`
	SortField      Field     `json:"sort"`
	SortDir        Direction `json:"dir"`
	Page           int       `json:"page"`
	PageSize       int       `json:"page_size"`
}

// DefaultQuery is the table's initial state: everything, newest first.
func DefaultQuery() Query {
	return Query{
		Classification: AllClassifications,
		Sentiment:      BucketAll,
		SortField:      FieldReviewDate,
		SortDir:        Desc,
		Page:           1,
		PageSize:       DefaultPageSize,
	}
}

type Page struct {
	Rows       []domain.ReviewRow `json:"rows"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	Total      int                `json:"total"`
	TotalPages int                `json:"total_pages"`
	From       int                `json:"from"`
	To         int                `json:"to"`
	Window     []int              `json:"window"`
}

func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(s); b {
	case "":
		return BucketAll, nil
	case BucketAll, BucketLow, BucketMedium, BucketHigh:
		return b, nil
	}
	return "", fmt.Errorf("unknown sentiment bucket %q", s)
}

func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case "":
		return FieldReviewDate, nil
	case FieldReviewDate, FieldSentimentScore, FieldClassification, FieldRating:
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Asc, Desc:
		return d, nil
	}
	return "", fmt.Errorf("unknown sort direction %q", s)
}

// DefaultDirection is the direction a column starts in when first selected.
func DefaultDirection(f Field) Direction {
	if f == FieldReviewDate {
		return Desc
	}
	return Asc
}

// BucketOf reports the sentiment bucket of a score. A nil score has no bucket.
func BucketOf(score *float64) (Bucket, bool) {
	if score == nil {
		return "", false
	}
	switch s := *score; {
	case s <= 2:
		return BucketLow, true
	case s < 4:
		return BucketMedium, true
	default:
		return BucketHigh, true
	}
}

// Filter returns the rows matching the classification and bucket filters.
// The input slice is not modified.
func Filter(rows []domain.ReviewRow, classification string, bucket Bucket) []domain.ReviewRow {
	out := make([]domain.ReviewRow, 0, len(rows))
	for _, r := range rows {
		if classification != "" && classification != AllClassifications {
			if r.ClassificationLabel == nil || *r.ClassificationLabel != classification {
				continue
			}
		}
		if bucket != "" && bucket != BucketAll {
			if b, ok := BucketOf(r.SentimentScore); !ok || b != bucket {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// Sort orders rows in place.
func Sort(rows []domain.ReviewRow, field Field, dir Direction) {
	var col *collate.Collator
	if field == FieldClassification {
		col = collate.New(language.English)
	}
	cmp := func(a, b domain.ReviewRow) int {
		switch field {
		case FieldSentimentScore:
			return compareFloat(floatOrZero(a.SentimentScore), floatOrZero(b.SentimentScore))
		case FieldClassification:
			return col.CompareString(strOrEmpty(a.ClassificationLabel), strOrEmpty(b.ClassificationLabel))
		case FieldRating:
			return compareFloat(ratingOf(a), ratingOf(b))
		default:
			return compareInt(epochMillis(a), epochMillis(b))
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := cmp(rows[i], rows[j])
		if dir == Desc {
			c = -c
		}
		return c < 0
	})
}

// Apply filters, sorts and slices rows into the requested page. The page index
// is clamped to [1, totalPages].
func Apply(rows []domain.ReviewRow, q Query) Page {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	filtered := Filter(rows, q.Classification, q.Sentiment)
	Sort(filtered, q.SortField, q.SortDir)

	total := len(filtered)
	totalPages := TotalPages(total, size)
	page := clampPage(q.Page, totalPages)

	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	out := Page{
		Rows:       filtered[start:end],
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: totalPages,
		Window:     pageWindow(page, totalPages),
	}
	if total > 0 {
		out.From = start + 1
		out.To = end
	}
	return out
}

func TotalPages(total, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return int(math.Ceil(float64(total) / float64(size)))
}

// Classifications lists the distinct non-null labels, sorted.
func Classifications(rows []domain.ReviewRow) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range rows {
		if r.ClassificationLabel == nil || *r.ClassificationLabel == "" {
			continue
		}
		if _, ok := seen[*r.ClassificationLabel]; ok {
			continue
		}
		seen[*r.ClassificationLabel] = struct{}{}
		out = append(out, *r.ClassificationLabel)
	}
	sort.Strings(out)
	return out
}

func clampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// pageWindow returns at most five page numbers around the current page.
func pageWindow(page, totalPages int) []int {
	n := totalPages
	if n > maxPageButtons {
		n = maxPageButtons
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		var p int
		switch {
		case totalPages <= maxPageButtons, page <= 3:
			p = i + 1
		case page >= totalPages-2:
			p = totalPages - 4 + i
		default:
			p = page - 2 + i
		}
		out = append(out, p)
	}
	return out
}

func epochMillis(r domain.ReviewRow) int64 {
	if r.ReviewDate == nil {
		return 0
	}
	return r.ReviewDate.UnixMilli()
}

func ratingOf(r domain.ReviewRow) float64 {
	switch v := r.Metadata["rating"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func floatOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
