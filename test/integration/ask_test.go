// Package integration exercises the full question pipeline over real sqlite
// storage, with the chat and embedding services replaced by deterministic
// fakes.
package integration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/answer"
	"github.com/shiokaze/tazune/internal/cache"
	"github.com/shiokaze/tazune/internal/config"
	"github.com/shiokaze/tazune/internal/interpret"
	"github.com/shiokaze/tazune/internal/llm"
	"github.com/shiokaze/tazune/internal/models"
	"github.com/shiokaze/tazune/internal/ranking"
	"github.com/shiokaze/tazune/internal/retrieval"
	"github.com/shiokaze/tazune/internal/storage"
)

// fakeServices answers the parse prompt with structured JSON and streams a
// fixed cited answer for everything else.
type fakeServices struct {
	parseJSON  string
	answerText string
}

func (f *fakeServices) Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (string, error) {
	return f.parseJSON, nil
}

func (f *fakeServices) CompleteStreaming(ctx context.Context, messages []llm.Message, systemPrompt string, maxTokens int, onChunk func(string)) (string, error) {
	for _, part := range strings.SplitAfter(f.answerText, " ") {
		if onChunk != nil {
			onChunk(part)
		}
	}
	return f.answerText, nil
}

func (f *fakeServices) Embed(ctx context.Context, text string) ([]float32, error) {
	// Vector depends only on whether the text mentions gophers, so items
	// about gophers land near gopher questions.
	if strings.Contains(strings.ToLower(text), "gopher") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (f *fakeServices) ModelTag() string { return "fake-embedder" }

func TestIntegration_AskFlow(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	ctx := context.Background()

	now := time.Now()
	items := []*models.Item{
		{ID: "1", AuthorID: "alice", AuthorName: "Alice", Content: "gopher plushies arrived today", PostedAt: now.Add(-24 * time.Hour)},
		{ID: "2", AuthorID: "bob", AuthorName: "Bob", Content: "thoughts on garden design", PostedAt: now.Add(-48 * time.Hour)},
		{ID: "3", AuthorID: "alice", AuthorName: "Alice", Content: "compiling go on a raspberry pi", PostedAt: now.Add(-72 * time.Hour)},
	}
	for _, item := range items {
		if err := store.CreateItem(ctx, item); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpsertEmbedding(ctx, &models.Embedding{ItemID: "1", Vector: []float32{1, 0}, ModelTag: "fake-embedder"}); err != nil {
		t.Fatal(err)
	}

	services := &fakeServices{
		parseJSON:  `{"keywords":["gopher"],"authors":["alice"]}`,
		answerText: "Alice got gopher plushies [ITEM:1]@alice[/ITEM].\n---FOLLOWUPS---\n- What else did Alice post?",
	}

	logger := zap.NewNop()
	corpus := cache.NewCorpusCache(store, time.Minute)
	vectors := cache.NewVectorCache(store, time.Minute)
	scorer := ranking.NewScorer(&cfg.Scoring)
	interpreter := interpret.New(services, logger)
	pipeline := retrieval.NewPipeline(corpus, vectors, services, scorer, &cfg.Retrieval, logger)
	streamer := answer.NewStreamer(interpreter, pipeline, services, store, &cfg.Retrieval, cfg.LLM.MaxTokens, logger)

	var states []string
	var chunks []string
	var final *models.Answer
	for ev := range streamer.Ask(ctx, "did alice get gopher plushies?") {
		switch ev.Type {
		case answer.EventState:
			states = append(states, ev.State)
		case answer.EventChunk:
			chunks = append(chunks, ev.Chunk)
		case answer.EventDone:
			final = ev.Answer
		case answer.EventError:
			t.Fatalf("unexpected error event: %s", ev.Err)
		}
	}

	wantStates := []string{"parsing", "searching", "generating", "done"}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v", states)
	}
	for i, want := range wantStates {
		if states[i] != want {
			t.Errorf("state[%d] = %q, want %q", i, states[i], want)
		}
	}

	streamed := strings.Join(chunks, "")
	if !strings.HasPrefix(services.answerText, streamed) && streamed != services.answerText {
		t.Errorf("streamed text diverged from generation:\n%q", streamed)
	}

	if final == nil {
		t.Fatal("no done event")
	}
	if final.Text != "Alice got gopher plushies [ITEM:1]@alice[/ITEM]." {
		t.Errorf("answer text = %q", final.Text)
	}
	if len(final.FollowUps) != 1 || final.FollowUps[0] != "What else did Alice post?" {
		t.Errorf("follow-ups = %v", final.FollowUps)
	}

	turns, err := store.ListTurns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected persisted exchange, got %d turns", len(turns))
	}
	// Newest first: assistant turn, then user turn.
	if turns[0].Role != models.RoleAssistant || turns[1].Role != models.RoleUser {
		t.Errorf("turn roles = %s, %s", turns[0].Role, turns[1].Role)
	}
	if len(turns[0].GroundingIDs) == 0 {
		t.Error("assistant turn missing grounding")
	}
}

func TestIntegration_SearchOnly(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	ctx := context.Background()

	now := time.Now()
	seed := []*models.Item{
		{ID: "old", AuthorID: "carol", AuthorName: "Carol", Content: "ancient gopher lore", PostedAt: now.AddDate(-2, 0, 0)},
		{ID: "new", AuthorID: "carol", AuthorName: "Carol", Content: "fresh gopher lore", PostedAt: now.Add(-time.Hour)},
	}
	for _, item := range seed {
		if err := store.CreateItem(ctx, item); err != nil {
			t.Fatal(err)
		}
	}

	services := &fakeServices{parseJSON: `not json at all`}
	logger := zap.NewNop()
	corpus := cache.NewCorpusCache(store, time.Minute)
	vectors := cache.NewVectorCache(store, time.Minute)
	scorer := ranking.NewScorer(&cfg.Scoring)
	interpreter := interpret.New(services, logger)
	pipeline := retrieval.NewPipeline(corpus, vectors, services, scorer, &cfg.Retrieval, logger)

	// The parse falls back to token extraction when the service returns
	// malformed output; retrieval still works.
	params := interpreter.Parse(ctx, "gopher lore")
	results, err := pipeline.Search(ctx, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both items, got %d", len(results))
	}
	if results[0].ID != "new" {
		t.Errorf("expected newest first, got %s", results[0].ID)
	}
}
