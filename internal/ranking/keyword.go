package ranking

import (
	"math"
	"strings"
	"unicode"

	"github.com/shiokaze/tazune/internal/models"
)

// Per-term field weights for keyword matching. Every term adds a fixed
// 1.0+0.5+0.3 to the total regardless of matches, so a term matching only
// content earns 1.0/1.8 of its share. Tuned against a real archive; change
// with care.
const (
	contentWeight    = 1.0
	handleWeight     = 1.5
	nameWeight       = 1.2
	perTermTotal     = 1.0 + 0.5 + 0.3
	repeatBonusStep  = 0.2
	repeatBonusLimit = 0.5
)

// stopWords is the fixed English stop-word list removed during tokenization.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "about": {},
	"as": {}, "and": {}, "or": {}, "but": {}, "not": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "it": {}, "its": {}, "i": {},
	"you": {}, "he": {}, "she": {}, "we": {}, "they": {}, "what": {},
	"which": {}, "who": {}, "how": {}, "when": {}, "where": {}, "why": {},
	"do": {}, "does": {}, "did": {}, "have": {}, "has": {}, "had": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "should": {},
	"my": {}, "your": {}, "me": {}, "us": {},
}

// TokenizeQuery splits a query into lowercase alphanumeric terms, dropping
// stop words and terms of length <= 1.
func TokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// KeywordScore scores an item against pre-tokenized query terms by
// case-insensitive substring containment over three fields: content (with a
// capped bonus for repeated occurrences), author handle, and author display
// name. The result is matched weight over total weight, capped at 1.0.
// Returns 0 when there are no terms.
func KeywordScore(terms []string, item *models.Item) float64 {
	if len(terms) == 0 || item == nil {
		return 0
	}

	content := strings.ToLower(item.Content)
	handle := strings.ToLower(item.AuthorID)
	name := strings.ToLower(item.AuthorName)

	var matched, total float64
	for _, term := range terms {
		total += perTermTotal
		if n := strings.Count(content, term); n > 0 {
			matched += contentWeight
			if n > 1 {
				matched += math.Min(repeatBonusStep*float64(n-1), repeatBonusLimit)
			}
		}
		if strings.Contains(handle, term) {
			matched += handleWeight
		}
		if strings.Contains(name, term) {
			matched += nameWeight
		}
	}
	return math.Min(matched/total, 1.0)
}
