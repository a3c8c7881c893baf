package app

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"review_pulse/internal/domain"
)

/********** alias registries (single source of truth) **********/

var reviewAliases = map[string][]string{
	"id":          {"id", "review_id", "reviewId", "uuid"},
	"text":        {"text", "review_text", "review", "comment", "content", "body"},
	"review_date": {"review_date", "reviewDate", "date", "published_at", "publishedAt", "created_at", "createdAt"},
	"rating":      {"rating", "rate", "stars", "rating.value", "scores.overall"},
}

// Embedded relations arrive either as a single object or as an array of them.
var relationAliases = map[string][]string{
	"sentiment":      {"sentiments", "sentiment"},
	"classification": {"classifications", "classification"},
}

// Fields a webhook payload must carry.
var requiredWebhookFields = []string{"id", "text", "review_date"}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns a string (or a number rendered as one) at path, or "".
func lookupStr(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// getFloatFlexible: number from several paths (float64/int/string like "4,5").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// getTimeFlexible: RFC3339-ish strings, plain dates, or unix seconds.
func getTimeFlexible(m map[string]any, paths ...string) *time.Time {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case string:
			s := strings.TrimSpace(v)
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					t = t.UTC()
					return &t
				}
			}
		case float64:
			t := time.Unix(int64(v), 0).UTC()
			return &t
		}
	}
	return nil
}

// relation returns the first object of an embedded relation, whichever shape it came in.
func relation(m map[string]any, key string) map[string]any {
	for _, p := range relationAliases[key] {
		switch v := lookupAny(m, p).(type) {
		case map[string]any:
			return v
		case []any:
			for _, it := range v {
				if obj, ok := it.(map[string]any); ok {
					return obj
				}
			}
		}
	}
	return nil
}

// topLevelKnownFromAliases builds a set of top-level keys to exclude from metadata.
func topLevelKnownFromAliases(aliases map[string][]string, keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, 16)
	for _, k := range keys {
		for _, path := range aliases[k] {
			top := path
			if i := strings.IndexByte(top, '.'); i >= 0 {
				top = top[:i]
			}
			set[top] = struct{}{}
		}
	}
	return set
}

/********** review mapper **********/

// missingFields lists the required webhook fields absent or empty in p.
func missingFields(p map[string]any) []string {
	var out []string
	for _, f := range requiredWebhookFields {
		if lookupStr(p, f) == "" {
			out = append(out, f)
		}
	}
	return out
}

// mapReview normalizes a feed or webhook payload. Unknown top-level keys are
// kept as metadata; a recognised rating is stored there as "rating".
func mapReview(p map[string]any) domain.IncomingReview {
	var in domain.IncomingReview

	in.Review.Text = firstNonEmptyAlias(p, reviewAliases, "text")
	in.Review.ReviewDate = getTimeFlexible(p, reviewAliases["review_date"]...)

	// ID → prefer explicit; else synthesize stable hash.
	if s := firstNonEmptyAlias(p, reviewAliases, "id"); s != nil {
		in.Review.ID = *s
	} else {
		d := ""
		if in.Review.ReviewDate != nil {
			d = in.Review.ReviewDate.Format(time.RFC3339)
		}
		sum := sha1.Sum([]byte(deref(in.Review.Text) + "|" + d))
		in.Review.ID = hex.EncodeToString(sum[:])
	}

	known := topLevelKnownFromAliases(reviewAliases, "id", "text", "review_date", "rating")
	for k := range topLevelKnownFromAliases(relationAliases, "sentiment", "classification") {
		known[k] = struct{}{}
	}
	meta := make(map[string]any, 4)
	for k, v := range p {
		if _, ok := known[k]; ok {
			continue
		}
		meta[k] = v
	}
	if r := getFloatFlexible(p, reviewAliases["rating"]...); r != nil {
		meta["rating"] = *r
	}
	if len(meta) > 0 {
		in.Review.Metadata = meta
	}

	if s := relation(p, "sentiment"); s != nil {
		in.Score = getFloatFlexible(s, "score", "value")
	}
	if c := relation(p, "classification"); c != nil {
		in.Label = firstNonEmptyAlias(c, map[string][]string{"label": {"label", "name", "category"}}, "label")
	}
	return in
}
