package interpret

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/llm"
	"github.com/shiokaze/tazune/internal/models"
)

// fakeCompleter returns a canned response or error.
type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (string, error) {
	return f.response, f.err
}

func (f *fakeCompleter) CompleteStreaming(ctx context.Context, messages []llm.Message, systemPrompt string, maxTokens int, onChunk func(string)) (string, error) {
	return f.response, f.err
}

func TestInterpreter_Parse_Structured(t *testing.T) {
	completer := &fakeCompleter{response: `{"keywords":["anime"],"date_range":{"unit":"months","amount":3},"authors":null,"topics":["anime","entertainment"]}`}
	interp := New(completer, zap.NewNop())

	params := interp.Parse(context.Background(), "anime tweets from last 3 months")
	if !reflect.DeepEqual(params.Keywords, []string{"anime"}) {
		t.Errorf("keywords = %v", params.Keywords)
	}
	if params.DateRange == nil || params.DateRange.Amount != 3 {
		t.Errorf("date range = %v", params.DateRange)
	}
	if params.Authors != nil {
		t.Errorf("authors = %v, want nil", params.Authors)
	}
	if !reflect.DeepEqual(params.Topics, []string{"anime", "entertainment"}) {
		t.Errorf("topics = %v", params.Topics)
	}
}

func TestInterpreter_Parse_CodeFenced(t *testing.T) {
	completer := &fakeCompleter{response: "```json\n{\"keywords\":[\"rust\"]}\n```"}
	interp := New(completer, zap.NewNop())

	params := interp.Parse(context.Background(), "rust posts")
	if !reflect.DeepEqual(params.Keywords, []string{"rust"}) {
		t.Errorf("keywords = %v, want [rust]", params.Keywords)
	}
}

func TestInterpreter_Parse_FallsBack(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
	}{
		{"not json", &fakeCompleter{response: "not json at all"}},
		{"wrong shape", &fakeCompleter{response: `{"keywords":"a string"}`}},
		{"empty", &fakeCompleter{response: ""}},
		{"service error", &fakeCompleter{err: errors.New("boom")}},
		{"rate limited", &fakeCompleter{err: llm.ErrRateLimited}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interp := New(tt.completer, zap.NewNop())
			params := interp.Parse(context.Background(), "anime tweets from last 3 months")
			if params == nil {
				t.Fatal("Parse() returned nil")
			}
			if params.Keywords == nil {
				t.Fatal("keywords must be non-nil")
			}
			want := []string{"anime", "tweets", "from", "last", "months"}
			if !reflect.DeepEqual(params.Keywords, want) {
				t.Errorf("fallback keywords = %v, want %v", params.Keywords, want)
			}
			if params.DateRange != nil || params.Authors != nil || params.Topics != nil {
				t.Error("fallback must leave optional fields nil")
			}
		})
	}
}

func TestFallbackParams(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{"basic", "show me golang posts", []string{"show", "golang", "posts"}},
		{"drops short tokens", "go is fun", []string{}},
		{"splits punctuation", "what's new in rust-lang?", []string{"what", "rust", "lang"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := FallbackParams(tt.question)
			if !reflect.DeepEqual(params.Keywords, tt.want) {
				t.Errorf("FallbackParams(%q).Keywords = %v, want %v", tt.question, params.Keywords, tt.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"inline fence", "```{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

var _ llm.Completer = (*fakeCompleter)(nil)

func TestSearchParamsShape(t *testing.T) {
	// The contract other components depend on: keywords never nil even when
	// decoded from JSON null.
	var p models.SearchParams
	p.Normalize()
	if p.Keywords == nil {
		t.Error("Normalize must ensure non-nil keywords")
	}
}
