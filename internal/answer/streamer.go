// Package answer turns a question into a streamed, cited response: it
// interprets the question, retrieves grounding items, streams the generated
// answer in batched increments, and persists the completed exchange.
package answer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/config"
	"github.com/shiokaze/tazune/internal/llm"
	"github.com/shiokaze/tazune/internal/models"
	"github.com/shiokaze/tazune/internal/storage"
)

// QuestionParser converts a question into search parameters. It never fails.
type QuestionParser interface {
	Parse(ctx context.Context, question string) *models.SearchParams
}

// Retriever returns the ranked items for a set of search parameters.
type Retriever interface {
	Search(ctx context.Context, params *models.SearchParams) ([]*models.Item, error)
}

// State is the processing stage of one question.
type State int

const (
	StateParsing State = iota
	StateSearching
	StateGenerating
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateParsing:
		return "parsing"
	case StateSearching:
		return "searching"
	case StateGenerating:
		return "generating"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return "unknown"
}

// EventType discriminates the events emitted while answering.
type EventType string

const (
	EventState EventType = "state"
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one update streamed to the caller. Chunk events carry batched
// answer text in arrival order; a Done event carries the final Answer; an
// Error event carries a user-presentable message and terminates the stream.
type Event struct {
	Type   EventType      `json:"type"`
	State  string         `json:"state,omitempty"`
	Chunk  string         `json:"chunk,omitempty"`
	Answer *models.Answer `json:"answer,omitempty"`
	Err    string         `json:"error,omitempty"`
}

// Streamer orchestrates the parse, search, and generate stages for each
// question. Questions on the same conversation are serialized so chunk
// streams never interleave.
type Streamer struct {
	interpreter QuestionParser
	pipeline    Retriever
	completer   llm.Completer
	store       storage.Store
	config      *config.RetrievalConfig
	maxTokens   int
	logger      *zap.Logger

	mu sync.Mutex // one question at a time per conversation
}

// NewStreamer creates a streamer with the given collaborators.
func NewStreamer(
	interpreter QuestionParser,
	pipeline Retriever,
	completer llm.Completer,
	store storage.Store,
	cfg *config.RetrievalConfig,
	maxTokens int,
	logger *zap.Logger,
) *Streamer {
	return &Streamer{
		interpreter: interpreter,
		pipeline:    pipeline,
		completer:   completer,
		store:       store,
		config:      cfg,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// Ask processes one question and returns a channel of events, closed when
// the question reaches Done or Error. Cancelling ctx stops the stream;
// nothing is persisted unless generation completes naturally.
func (s *Streamer) Ask(ctx context.Context, question string) <-chan Event {
	events := make(chan Event, flushQueueSize)
	go func() {
		defer close(events)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.run(ctx, question, events)
	}()
	return events
}

func (s *Streamer) run(ctx context.Context, question string, events chan<- Event) {
	// emit drops events once the caller has gone away instead of blocking.
	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	// Parsing never fails; the interpreter degrades internally.
	emit(Event{Type: EventState, State: StateParsing.String()})
	params := s.interpreter.Parse(ctx, question)

	emit(Event{Type: EventState, State: StateSearching.String()})
	items, err := s.pipeline.Search(ctx, params)
	if err != nil {
		s.fail(ctx, events, fmt.Errorf("archive search failed: %w", err))
		return
	}

	emit(Event{Type: EventState, State: StateGenerating.String()})
	systemPrompt := buildSystemPrompt(items, s.config.ContextItems)
	messages, err := s.conversationMessages(ctx, question)
	if err != nil {
		// History is an enhancement; answer without it rather than abort.
		s.logger.Warn("loading conversation history failed", zap.Error(err))
		messages = []llm.Message{{Role: models.RoleUser, Content: question}}
	}

	fl := newFlusher(func(text string) {
		select {
		case events <- Event{Type: EventChunk, Chunk: text}:
		case <-ctx.Done():
		}
	})
	full, genErr := s.completer.CompleteStreaming(ctx, messages, systemPrompt, s.maxTokens, fl.Add)
	fl.Close()
	if genErr != nil {
		// Chunks already flushed are not retracted; the stream simply ends
		// in the error state.
		s.fail(ctx, events, genErr)
		return
	}

	answerText, followUps := SplitAnswer(full)
	groundingIDs := make([]string, 0, len(items))
	for _, item := range items {
		groundingIDs = append(groundingIDs, item.ID)
	}

	if err := s.persistTurns(ctx, question, answerText, groundingIDs); err != nil {
		s.logger.Error("persisting conversation exchange failed, history unchanged", zap.Error(err))
	}

	emit(Event{Type: EventState, State: StateDone.String()})
	emit(Event{Type: EventDone, Answer: &models.Answer{
		Text:      answerText,
		Sources:   items,
		FollowUps: followUps,
	}})
}

// conversationMessages assembles prior turns (oldest first) plus the new
// question for the chat call.
func (s *Streamer) conversationMessages(ctx context.Context, question string) ([]llm.Message, error) {
	turns, err := s.store.ListTurns(ctx, s.config.HistoryLimit)
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, 0, len(turns)+1)
	// ListTurns is newest-first; the prompt wants chronological order.
	for i := len(turns) - 1; i >= 0; i-- {
		messages = append(messages, llm.Message{Role: turns[i].Role, Content: turns[i].Text})
	}
	return append(messages, llm.Message{Role: models.RoleUser, Content: question}), nil
}

// persistTurns records the exchange atomically so a storage failure never
// leaves a question in history without its answer.
func (s *Streamer) persistTurns(ctx context.Context, question, answerText string, groundingIDs []string) error {
	now := time.Now()
	userTurn := &models.ConversationTurn{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Text:      question,
		CreatedAt: now,
	}
	assistantTurn := &models.ConversationTurn{
		ID:           uuid.NewString(),
		Role:         models.RoleAssistant,
		Text:         answerText,
		GroundingIDs: groundingIDs,
		CreatedAt:    now.Add(time.Millisecond),
	}
	return s.store.AppendExchange(ctx, userTurn, assistantTurn)
}

func (s *Streamer) fail(ctx context.Context, events chan<- Event, err error) {
	s.logger.Warn("question failed", zap.Error(err))
	for _, ev := range []Event{
		{Type: EventState, State: StateError.String()},
		{Type: EventError, Err: userMessage(err)},
	} {
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// userMessage maps an error to the short, specific string shown to the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		return "No API key configured"
	case errors.Is(err, llm.ErrRateLimited):
		return "Rate limited, wait and retry"
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "The answer service timed out"
	}
	return err.Error()
}
