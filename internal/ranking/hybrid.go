package ranking

import (
	"sort"

	"github.com/shiokaze/tazune/internal/config"
	"github.com/shiokaze/tazune/internal/models"
)

// Scorer combines cosine similarity and keyword matching into one ranking
// signal: hybrid = semanticWeight*cosine + keywordWeight*keywordScore.
type Scorer struct {
	config *config.ScoringConfig
}

// NewScorer creates a hybrid scorer with the given weights and thresholds.
func NewScorer(cfg *config.ScoringConfig) *Scorer {
	return &Scorer{config: cfg}
}

// Rank scores every item against the query and returns the included items
// sorted by hybrid score descending, stable on input order, truncated to
// limit (limit <= 0 means no truncation).
//
// queryVec may be nil (e.g. the embedding capability is unavailable), in
// which case every semantic score is 0 and only keyword matches can qualify.
// Embeddings whose model tag differs from modelTag are ignored: vectors from
// different models are not comparable.
//
// An item is included when any one signal clears its threshold: semantic,
// keyword, or hybrid. Either signal alone can rescue an item the other
// misses.
func (s *Scorer) Rank(query string, queryVec []float32, modelTag string, items []*models.Item, embeddings map[string]*models.Embedding, limit int) []*models.ScoredItem {
	terms := TokenizeQuery(query)

	results := make([]*models.ScoredItem, 0, len(items))
	for _, item := range items {
		semantic := 0.0
		if queryVec != nil {
			if emb, ok := embeddings[item.ID]; ok && emb.ModelTag == modelTag {
				semantic = Cosine(queryVec, emb.Vector)
			}
		}
		keyword := KeywordScore(terms, item)
		hybrid := s.config.SemanticWeight*semantic + s.config.KeywordWeight*keyword

		if semantic < s.config.MinSemanticScore &&
			keyword < s.config.MinKeywordScore &&
			hybrid < s.config.MinHybridScore {
			continue
		}
		results = append(results, &models.ScoredItem{
			Item:          item,
			Score:         hybrid,
			KeywordScore:  keyword,
			SemanticScore: semantic,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i, r := range results {
		r.Rank = i + 1
	}
	return results
}
