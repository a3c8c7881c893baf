package reviewtable

import "review_pulse/internal/domain"

// Model is the stateful table: it remembers the current filters, sort and page
// over a fixed row set.
type Model struct {
	rows []domain.ReviewRow
	q    Query
}

func NewModel(rows []domain.ReviewRow) *Model {
	return &Model{rows: rows, q: DefaultQuery()}
}

func (m *Model) Query() Query { return m.q }

func (m *Model) Page() Page { return Apply(m.rows, m.q) }

func (m *Model) Classifications() []string { return Classifications(m.rows) }

func (m *Model) SetClassification(c string) {
	m.q.Classification = c
	m.q.Page = 1
}

func (m *Model) SetSentiment(b Bucket) {
	m.q.Sentiment = b
	m.q.Page = 1
}

// Sort selects a column. Selecting the current column flips the direction;
// a new column starts in its default direction.
func (m *Model) Sort(f Field) {
	if f == m.q.SortField {
		if m.q.SortDir == Asc {
			m.q.SortDir = Desc
		} else {
			m.q.SortDir = Asc
		}
	} else {
		m.q.SortField = f
		m.q.SortDir = DefaultDirection(f)
	}
	m.q.Page = 1
}

// GoToPage moves to page n, clamped to the pages available under the current filters.
func (m *Model) GoToPage(n int) {
	total := len(Filter(m.rows, m.q.Classification, m.q.Sentiment))
	m.q.Page = clampPage(n, TotalPages(total, m.q.PageSize))
}
