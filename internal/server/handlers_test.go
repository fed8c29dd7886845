package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/answer"
	"github.com/shiokaze/tazune/internal/cache"
	"github.com/shiokaze/tazune/internal/config"
	"github.com/shiokaze/tazune/internal/llm"
	"github.com/shiokaze/tazune/internal/models"
	"github.com/shiokaze/tazune/internal/ranking"
	"github.com/shiokaze/tazune/internal/retrieval"
)

type memStore struct {
	items []*models.Item
	turns []*models.ConversationTurn
}

func (s *memStore) CreateItem(ctx context.Context, item *models.Item) error { return nil }
func (s *memStore) ListItems(ctx context.Context, limit int) ([]*models.Item, error) {
	return s.items, nil
}
func (s *memStore) CountItems(ctx context.Context) (int64, error)                  { return int64(len(s.items)), nil }
func (s *memStore) UpsertEmbedding(ctx context.Context, e *models.Embedding) error { return nil }
func (s *memStore) ListEmbeddings(ctx context.Context) ([]*models.Embedding, error) {
	return nil, nil
}

func (s *memStore) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	s.turns = append(s.turns, turn)
	return nil
}

func (s *memStore) AppendExchange(ctx context.Context, user, assistant *models.ConversationTurn) error {
	s.turns = append(s.turns, user, assistant)
	return nil
}

func (s *memStore) ListTurns(ctx context.Context, limit int) ([]*models.ConversationTurn, error) {
	out := make([]*models.ConversationTurn, len(s.turns))
	for i, t := range s.turns {
		out[len(s.turns)-1-i] = t
	}
	return out, nil
}

func (s *memStore) ClearTurns(ctx context.Context) error {
	s.turns = nil
	return nil
}
func (s *memStore) Close() error { return nil }

type stubParser struct{}

func (stubParser) Parse(ctx context.Context, question string) *models.SearchParams {
	return &models.SearchParams{Keywords: []string{"golang"}}
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (stubEmbedder) ModelTag() string { return "stub" }

type stubCompleter struct{}

func (stubCompleter) Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (string, error) {
	return "", nil
}

func (stubCompleter) CompleteStreaming(ctx context.Context, messages []llm.Message, systemPrompt string, maxTokens int, onChunk func(string)) (string, error) {
	text := "Go is great.\n---FOLLOWUPS---\n- More?"
	if onChunk != nil {
		onChunk(text)
	}
	return text, nil
}

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	store := &memStore{
		items: []*models.Item{
			{ID: "1", AuthorID: "alice", AuthorName: "Alice", Content: "golang generics deep dive", PostedAt: time.Now()},
		},
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	corpus := cache.NewCorpusCache(store, time.Minute)
	vectors := cache.NewVectorCache(store, time.Minute)
	scorer := ranking.NewScorer(&cfg.Scoring)
	pipeline := retrieval.NewPipeline(corpus, vectors, stubEmbedder{}, scorer, &cfg.Retrieval, zap.NewNop())
	streamer := answer.NewStreamer(stubParser{}, pipeline, stubCompleter{}, store, &cfg.Retrieval, cfg.LLM.MaxTokens, zap.NewNop())

	return NewServer(streamer, stubParser{}, pipeline, store, &cfg.Server, zap.NewNop()), store
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"question":"golang posts"}`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Items []*models.Item `json:"items"`
		Total int            `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Items[0].ID != "1" {
		t.Errorf("unexpected search response: %+v", resp)
	}
}

func TestHandleSearch_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{}`))
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAsk_Streams(t *testing.T) {
	srv, store := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"what about go?"}`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	var types []string
	var done answer.Event
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev answer.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event frame %q: %v", line, err)
		}
		types = append(types, string(ev.Type))
		if ev.Type == answer.EventDone {
			done = ev
		}
	}

	if len(types) == 0 {
		t.Fatal("no events streamed")
	}
	if types[len(types)-1] != string(answer.EventDone) {
		t.Fatalf("stream did not end with done: %v", types)
	}
	if done.Answer == nil || done.Answer.Text != "Go is great." {
		t.Errorf("done answer = %+v", done.Answer)
	}
	if len(done.Answer.FollowUps) != 1 {
		t.Errorf("followups = %v", done.Answer.FollowUps)
	}
	if len(store.turns) != 2 {
		t.Errorf("expected persisted exchange, got %d turns", len(store.turns))
	}
}

func TestHandleHistory(t *testing.T) {
	srv, store := newTestServer(t)
	store.turns = []*models.ConversationTurn{
		{ID: "t1", Role: models.RoleUser, Text: "q", CreatedAt: time.Now()},
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var resp struct {
		Turns []*models.ConversationTurn `json:"turns"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Turns) != 1 {
		t.Errorf("turns = %v", resp.Turns)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if len(store.turns) != 0 {
		t.Error("history not cleared")
	}
}
