package sentiment

import (
	"sort"
	"strings"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again all also am an and any are as at be because been
		before being below between both but by can could did do does doing don't down during each few for from
		further had has have having he her here hers him his how i i'm i've if in into is it it's its itself just
		me more most my no nor not now of off on once only or other our ours out over own really same she should
		so some such than that the their theirs them then there these they this those through to too under until
		up very was we were what when where which while who whom why will with would you your yours got get one
		even back again place time us there's didn't wasn't isn't won't`) {
		stopwords[w] = struct{}{}
	}
}

// Topics returns the k most frequent meaningful terms across texts. Each term
// counts at most once per text.
func Topics(texts []string, k int) []string {
	if k <= 0 {
		return nil
	}
	freq := make(map[string]int)
	for _, t := range texts {
		for w := range tokenize(t) {
			if len(w) < 3 {
				continue
			}
			if _, stop := stopwords[w]; stop {
				continue
			}
			freq[w]++
		}
	}
	terms := make([]string, 0, len(freq))
	for w := range freq {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > k {
		terms = terms[:k]
	}
	return terms
}
