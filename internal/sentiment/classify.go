package sentiment

import "strings"

var DefaultBuckets = []string{"Service", "Location", "Product"}

const fallbackBucket = "Product"

var bucketKeywords = map[string][]string{
	"Service": {
		"staff", "service", "rude", "friendly", "helpful", "waiter", "waitress", "support",
		"reception", "manager", "employee", "wait", "waited", "slow", "polite", "attitude",
	},
	"Location": {
		"location", "parking", "neighborhood", "neighbourhood", "area", "view", "access",
		"downtown", "street", "noisy", "noise", "nearby", "walk", "distance", "transport",
	},
	"Product": {
		"product", "quality", "price", "broken", "food", "taste", "room", "bed", "item",
		"menu", "portion", "clean", "dirty", "value", "expensive", "cheap", "size",
	},
}

// Classify assigns text to the bucket with the most keyword hits. Ties go to
// the earlier bucket in DefaultBuckets; no hits fall back to Product.
func Classify(text string) string {
	words := tokenize(text)
	best, bestHits := fallbackBucket, 0
	for _, b := range DefaultBuckets {
		hits := 0
		for _, kw := range bucketKeywords[b] {
			hits += words[kw]
		}
		if hits > bestHits {
			best, bestHits = b, hits
		}
	}
	return best
}

func tokenize(text string) map[string]int {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(PlainText(text)), isSeparator) {
		counts[w]++
	}
	return counts
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'' || r > 127)
}
