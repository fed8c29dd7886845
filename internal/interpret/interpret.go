// Package interpret converts a free-text question into structured search
// parameters, using the chat service with a deterministic local fallback.
package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/llm"
	"github.com/shiokaze/tazune/internal/models"
)

const parseSystemPrompt = `You convert questions about a personal bookmark archive into search parameters.
Respond with strict JSON only, no prose, matching exactly this shape:
{"keywords": ["term", ...], "date_range": {"unit": "day|week|month|year", "amount": 3} or null, "authors": ["handle", ...] or null, "topics": ["topic", ...] or null}
Keywords are the content words worth matching literally. Authors are account handles the question names. Topics are broader subject areas. Use null for anything the question does not constrain.`

const parseMaxTokens = 256

// Interpreter asks the chat service to structure a question and falls back to
// local tokenization when the response is unusable.
type Interpreter struct {
	completer llm.Completer
	logger    *zap.Logger
}

// New creates an interpreter.
func New(completer llm.Completer, logger *zap.Logger) *Interpreter {
	return &Interpreter{completer: completer, logger: logger}
}

// Parse returns search parameters for the question. It never fails: any chat
// or JSON error degrades to the deterministic fallback. The returned params
// always have non-nil keywords.
func (i *Interpreter) Parse(ctx context.Context, question string) *models.SearchParams {
	raw, err := i.completer.Complete(ctx, question, parseSystemPrompt, parseMaxTokens)
	if err != nil {
		i.logger.Debug("query interpretation failed, using fallback", zap.Error(err))
		return FallbackParams(question)
	}

	params, err := parseStructured(raw)
	if err != nil {
		i.logger.Debug("query interpretation unparsable, using fallback",
			zap.Error(err), zap.String("raw", raw))
		return FallbackParams(question)
	}
	return params
}

// parseStructured decodes the chat response into SearchParams. Code-fence
// wrapping is stripped before parsing; anything else malformed is an error.
func parseStructured(raw string) (*models.SearchParams, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	var params models.SearchParams
	if err := json.Unmarshal([]byte(cleaned), &params); err != nil {
		return nil, fmt.Errorf("invalid parameter JSON: %w", err)
	}
	params.Normalize()
	return &params, nil
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag, returning the trimmed inner text.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line ("json", etc.).
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// FallbackParams builds params locally: alphanumeric tokens, lowercased,
// keeping those longer than 3 characters. It never fails.
func FallbackParams(question string) *models.SearchParams {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 3 {
			keywords = append(keywords, f)
		}
	}
	return &models.SearchParams{Keywords: keywords}
}
