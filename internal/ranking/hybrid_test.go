package ranking

import (
	"reflect"
	"testing"

	"github.com/shiokaze/tazune/internal/config"
	"github.com/shiokaze/tazune/internal/models"
)

func testScoringConfig() *config.ScoringConfig {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return &cfg.Scoring
}

func TestScorer_Rank_KeywordOnly(t *testing.T) {
	scorer := NewScorer(testScoringConfig())
	items := []*models.Item{
		{ID: "1", Content: "I love machine learning"},
		{ID: "2", Content: "weather is nice"},
	}

	// No embeddings loaded: keyword signal alone must rescue item 1.
	results := scorer.Rank("machine learning", nil, "", items, nil, 10)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Item.ID != "1" {
		t.Errorf("expected item 1, got %s", results[0].Item.ID)
	}
	if results[0].KeywordScore < 0.3 {
		t.Errorf("keyword score %f below inclusion threshold", results[0].KeywordScore)
	}
	if results[0].SemanticScore != 0 {
		t.Errorf("semantic score = %f, want 0 with no embeddings", results[0].SemanticScore)
	}
	if results[0].Rank != 1 {
		t.Errorf("rank = %d, want 1", results[0].Rank)
	}
}

func TestScorer_Rank_SemanticRescue(t *testing.T) {
	scorer := NewScorer(testScoringConfig())
	items := []*models.Item{
		{ID: "1", Content: "the cherry trees are blooming"},
		{ID: "2", Content: "kernel scheduling internals"},
	}
	embeddings := map[string]*models.Embedding{
		"1": {ItemID: "1", Vector: []float32{1, 0}, ModelTag: "m1"},
		"2": {ItemID: "2", Vector: []float32{0, 1}, ModelTag: "m1"},
	}

	// Query shares no keywords with item 1 but its vector is close.
	results := scorer.Rank("sakura season", []float32{0.95, 0.05}, "m1", items, embeddings, 10)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Item.ID != "1" {
		t.Errorf("expected semantically similar item 1, got %s", results[0].Item.ID)
	}
}

func TestScorer_Rank_ModelTagMismatch(t *testing.T) {
	scorer := NewScorer(testScoringConfig())
	items := []*models.Item{{ID: "1", Content: "unrelated text"}}
	embeddings := map[string]*models.Embedding{
		"1": {ItemID: "1", Vector: []float32{1, 0}, ModelTag: "old-model"},
	}

	// Vector matches perfectly but comes from a different model: ignored.
	results := scorer.Rank("query", []float32{1, 0}, "new-model", items, embeddings, 10)
	if len(results) != 0 {
		t.Errorf("expected mismatched model tag to be ignored, got %d results", len(results))
	}
}

func TestScorer_Rank_Ordering(t *testing.T) {
	scorer := NewScorer(testScoringConfig())
	items := []*models.Item{
		{ID: "weak", Content: "golang mentioned once here"},
		{ID: "strong", Content: "golang golang golang content all about golang"},
	}

	results := scorer.Rank("golang", nil, "", items, nil, 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Item.ID != "strong" {
		t.Errorf("expected higher-scoring item first, got %s", results[0].Item.ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted descending")
	}
}

func TestScorer_Rank_Stable(t *testing.T) {
	scorer := NewScorer(testScoringConfig())
	// Identical content produces tied scores; input order must be preserved
	// and repeated runs must agree.
	items := []*models.Item{
		{ID: "a", Content: "golang tips"},
		{ID: "b", Content: "golang tips"},
		{ID: "c", Content: "golang tips"},
	}

	var firstOrder []string
	for run := 0; run < 5; run++ {
		results := scorer.Rank("golang tips", nil, "", items, nil, 10)
		order := make([]string, len(results))
		for i, r := range results {
			order[i] = r.Item.ID
		}
		if run == 0 {
			firstOrder = order
			if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
				t.Errorf("ties not broken by input order: %v", order)
			}
			continue
		}
		if !reflect.DeepEqual(order, firstOrder) {
			t.Errorf("run %d order %v differs from first %v", run, order, firstOrder)
		}
	}
}

func TestScorer_Rank_Limit(t *testing.T) {
	scorer := NewScorer(testScoringConfig())
	items := make([]*models.Item, 10)
	for i := range items {
		items[i] = &models.Item{ID: string(rune('a' + i)), Content: "golang content"}
	}
	results := scorer.Rank("golang", nil, "", items, nil, 3)
	if len(results) != 3 {
		t.Errorf("expected truncation to 3, got %d", len(results))
	}
}

func TestScorer_Rank_WeightMonotonicity(t *testing.T) {
	item := &models.Item{ID: "1", Content: "golang"}
	embeddings := map[string]*models.Embedding{
		"1": {ItemID: "1", Vector: []float32{1, 0}, ModelTag: "m"},
	}
	queryVec := []float32{1, 0} // semantic = 1, above the keyword score

	base := testScoringConfig()
	raised := *base
	raised.SemanticWeight = 0.9

	lo := NewScorer(base).Rank("golang", queryVec, "m", []*models.Item{item}, embeddings, 1)
	hi := NewScorer(&raised).Rank("golang", queryVec, "m", []*models.Item{item}, embeddings, 1)
	if len(lo) != 1 || len(hi) != 1 {
		t.Fatal("expected item included under both configs")
	}
	if hi[0].Score < lo[0].Score {
		t.Errorf("raising semantic weight decreased hybrid score: %f -> %f", lo[0].Score, hi[0].Score)
	}
}
