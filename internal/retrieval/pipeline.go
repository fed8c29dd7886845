// Package retrieval runs staged search over the cached archive: author
// filter, then keyword filter, then a semantic fallback when the cheap stages
// under-deliver.
package retrieval

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/cache"
	"github.com/shiokaze/tazune/internal/config"
	"github.com/shiokaze/tazune/internal/llm"
	"github.com/shiokaze/tazune/internal/models"
	"github.com/shiokaze/tazune/internal/ranking"
)

// Pipeline orchestrates the staged search. The author and keyword stages are
// cheap, precise, and explainable; the semantic stage runs only when they
// collect fewer than the configured threshold, which bounds both latency and
// the cost of comparing embeddings over the full corpus.
type Pipeline struct {
	corpus   *cache.CorpusCache
	vectors  *cache.VectorCache
	embedder llm.Embedder
	scorer   *ranking.Scorer
	config   *config.RetrievalConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline creates a retrieval pipeline with the given collaborators.
func NewPipeline(
	corpus *cache.CorpusCache,
	vectors *cache.VectorCache,
	embedder llm.Embedder,
	scorer *ranking.Scorer,
	cfg *config.RetrievalConfig,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		corpus:   corpus,
		vectors:  vectors,
		embedder: embedder,
		scorer:   scorer,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Search returns up to the configured cap of items matching params, most
// relevant first. Stage order: date filter, author filter, keyword filter,
// semantic fallback. Results are deduplicated by item ID; each stage appends
// in date-descending order except the semantic stage, which appends in
// semantic rank order.
func (p *Pipeline) Search(ctx context.Context, params *models.SearchParams) ([]*models.Item, error) {
	all, err := p.corpus.Get(ctx)
	if err != nil {
		return nil, err
	}

	// Stage 1: date-range filter. The snapshot is already newest-first.
	items := all
	if params.DateRange.Valid() {
		cutoff := params.DateRange.CutoffFrom(p.now())
		filtered := make([]*models.Item, 0, len(all))
		for _, item := range all {
			if !item.PostedAt.Before(cutoff) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	limit := p.config.ResultCap
	results := make([]*models.Item, 0, limit)
	added := make(map[string]bool, limit)

	appendItem := func(item *models.Item) bool {
		if added[item.ID] {
			return len(results) < limit
		}
		added[item.ID] = true
		results = append(results, item)
		return len(results) < limit
	}

	// Stage 2: author filter.
	if len(params.Authors) > 0 {
		authors := make(map[string]bool, len(params.Authors))
		for _, a := range params.Authors {
			authors[strings.ToLower(a)] = true
		}
		for _, item := range items {
			if !authors[strings.ToLower(item.AuthorID)] {
				continue
			}
			if !appendItem(item) {
				return results, nil
			}
		}
	}

	// Stage 3: keyword filter.
	if len(params.Keywords) > 0 {
		for _, item := range items {
			if added[item.ID] || !matchesAnyKeyword(item, params.Keywords) {
				continue
			}
			if !appendItem(item) {
				return results, nil
			}
		}
	}

	// Stage 4: semantic fallback, only when the cheap stages under-delivered.
	if len(results) < p.config.SemanticThreshold {
		semantic, err := p.semanticSearch(ctx, params, items)
		if err != nil {
			return nil, err
		}
		for _, scored := range semantic {
			if added[scored.Item.ID] {
				continue
			}
			if !appendItem(scored.Item) {
				break
			}
		}
	}

	return results, nil
}

// semanticSearch ranks items against the combined keyword+topic query using
// the vector snapshot. An unavailable embedding capability degrades to a
// zero semantic contribution rather than failing the search.
func (p *Pipeline) semanticSearch(ctx context.Context, params *models.SearchParams, items []*models.Item) ([]*models.ScoredItem, error) {
	query := strings.TrimSpace(strings.Join(append(append([]string{}, params.Keywords...), params.Topics...), " "))
	if query == "" {
		return nil, nil
	}

	embeddings, err := p.vectors.Get(ctx)
	if err != nil {
		return nil, err
	}

	queryVec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		p.logger.Warn("query embedding unavailable, keyword-only scoring", zap.Error(err))
		queryVec = nil
	}

	return p.scorer.Rank(query, queryVec, p.embedder.ModelTag(), items, embeddings, p.config.SemanticLimit), nil
}

func matchesAnyKeyword(item *models.Item, keywords []string) bool {
	content := strings.ToLower(item.Content)
	handle := strings.ToLower(item.AuthorID)
	name := strings.ToLower(item.AuthorName)
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(content, kw) || strings.Contains(handle, kw) || strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
