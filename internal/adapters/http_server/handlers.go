package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"review_pulse/internal/alerts"
	"review_pulse/internal/app"
	"review_pulse/internal/domain"
	"review_pulse/internal/reviewtable"
)

const (
	readTimeout    = 15 * time.Second
	taskTimeout    = 60 * time.Second
	maxWebhookBody = 1 << 20
	alertsLoadFail = "Failed to load alerts. Please try again later."
)

type Handlers struct {
	Q       *app.QueryService
	Ingest  *app.IngestionService
	Alerts  *alerts.Feed
	Events  domain.EventSource
	Webhook *rate.Limiter
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type alertsResponse struct {
	Threshold float64        `json:"threshold"`
	Alerts    []domain.Alert `json:"alerts"`
	Error     string         `json:"error,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(readTimeout))
		r.Get("/v1/alerts", h.listAlerts)
		r.Get("/v1/reviews", h.listReviews)
		r.Get("/v1/overview/sentiment-trend", h.sentimentTrend)
		r.Get("/v1/topics", h.topics)
		r.Get("/v1/reports/latest", h.latestReport)
		r.With(RateLimit(h.Webhook)).Post("/webhook/reviews", h.webhook)
	})

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(taskTimeout))
		r.Post("/v1/tasks/topics", h.runTopics)
		r.Post("/v1/tasks/weekly-summary", h.runWeeklySummary)
	})

	// long-lived; no timeout wrapper
	s.mux.Get("/v1/alerts/live", h.liveAlerts)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v as JSON with a weak ETag, answering 304 when the
// client already holds this version.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routeOf(r)).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// listAlerts mirrors the dashboard load: a failed query is a 200 carrying an
// empty list and an error message.
func (h *Handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Alerts.Load(r.Context())
	resp := alertsResponse{Threshold: h.Alerts.Threshold(), Alerts: list}
	if err != nil {
		log.Error().Err(err).Msg("alert load failed")
		resp.Error = alertsLoadFail
	}
	writeCached(w, r, resp)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	q, err := parseTableQuery(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}
	out, err := h.Q.ReviewsPage(r.Context(), q)
	if err != nil {
		log.Error().Err(err).Msg("reviews page failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "reviews unavailable")
		return
	}
	writeCached(w, r, out)
}

func parseTableQuery(r *http.Request) (reviewtable.Query, error) {
	v := r.URL.Query()
	q := reviewtable.DefaultQuery()

	if c := v.Get("classification"); c != "" {
		q.Classification = c
	}
	b, err := reviewtable.ParseBucket(v.Get("sentiment"))
	if err != nil {
		return q, err
	}
	q.Sentiment = b

	if s := v.Get("sort"); s != "" {
		f, err := reviewtable.ParseField(s)
		if err != nil {
			return q, err
		}
		q.SortField = f
		q.SortDir = reviewtable.DefaultDirection(f)
	}
	if d := v.Get("dir"); d != "" {
		dir, err := reviewtable.ParseDirection(d)
		if err != nil {
			return q, err
		}
		q.SortDir = dir
	}
	if p := v.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return q, errors.New("page must be a positive integer")
		}
		q.Page = n
	}
	return q, nil
}

func (h *Handlers) sentimentTrend(w http.ResponseWriter, r *http.Request) {
	pts, err := h.Q.SentimentTrend(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("sentiment trend failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "sentiment trend unavailable")
		return
	}
	writeCached(w, r, pts)
}

func (h *Handlers) topics(w http.ResponseWriter, r *http.Request) {
	items, err := h.Q.TopicCloud(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("topic cloud failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "topics unavailable")
		return
	}
	writeCached(w, r, items)
}

func (h *Handlers) latestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Q.LatestReport(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no report generated yet")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("latest report failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "report unavailable")
		return
	}
	writeCached(w, r, rep)
}

func (h *Handlers) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid payload", "could not read body")
		return
	}
	var payload map[string]any
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil || len(payload) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid payload", "body must be a non-empty JSON object")
		return
	}

	res, err := h.Ingest.IngestWebhook(r.Context(), payload)
	var ve *app.ValidationError
	if errors.As(err, &ve) {
		writeProblem(w, http.StatusBadRequest, "Invalid payload", ve.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("webhook ingest failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "review not stored")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"review_id":      res.ReviewID,
		"score":          res.Score,
		"classification": res.Label,
	})
}

func (h *Handlers) runTopics(w http.ResponseWriter, r *http.Request) {
	labels, err := h.Ingest.ExtractTopics(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("topic extraction failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "topic extraction failed")
		return
	}
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "topics": labels})
}

func (h *Handlers) runWeeklySummary(w http.ResponseWriter, r *http.Request) {
	md, err := h.Ingest.GenerateWeeklySummary(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("weekly summary failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "weekly summary failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "summary": md})
}
