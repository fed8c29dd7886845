package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shiokaze/tazune/internal/config"
)

// Client talks to an OpenAI-compatible chat/embeddings API. It implements
// Completer and Embedder.
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	embedCache *lru.Cache[string, []float32]
}

// NewClient creates a client from cfg. The API key is read from the
// environment variable named by cfg.APIKeyEnv; a missing key is not an error
// here, it surfaces on the first call so the rest of the app can start.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	cacheSize := cfg.EmbeddingCacheSize
	if cacheSize <= 0 {
		cacheSize = 512
	}
	embedCache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbeddingModel,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		embedCache: embedCache,
	}, nil
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Complete sends a single prompt and returns the full response text.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	reqBody := chatRequest{
		Model:     c.chatModel,
		Messages:  buildMessages(systemPrompt, []Message{{Role: "user", Content: prompt}}),
		MaxTokens: maxTokens,
	}

	resp, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chat service returned malformed response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat service returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// CompleteStreaming sends a message history with stream enabled and parses
// the SSE response, invoking onChunk for each text delta in arrival order.
// Returns the full concatenated text on natural completion; a cancelled
// context stops the stream and releases the connection.
func (c *Client) CompleteStreaming(ctx context.Context, messages []Message, systemPrompt string, maxTokens int, onChunk func(chunk string)) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	reqBody := chatRequest{
		Model:     c.chatModel,
		Messages:  buildMessages(systemPrompt, messages),
		MaxTokens: maxTokens,
		Stream:    true,
	}

	resp, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Skip malformed keep-alive or partial frames.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("chat stream interrupted: %w", err)
	}
	return full.String(), nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text. Results are memoized in an
// LRU cache keyed by the input text; transient failures (429, 5xx, network)
// are retried with exponential backoff. Retrying here keeps the pipeline
// core free of retry logic.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if cached, ok := c.embedCache.Get(text); ok {
		return cached, nil
	}

	var vector []float32
	operation := func() error {
		resp, err := c.post(ctx, "/embeddings", embedRequest{Model: c.embedModel, Input: text})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("embedding service unavailable: %s", resp.Status)
		}
		if resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("embedding request rejected: %s", resp.Status))
		}

		var out embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("embedding service returned malformed response: %w", err))
		}
		if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
			return backoff.Permanent(fmt.Errorf("embedding service returned empty vector"))
		}
		vector = out.Data[0].Embedding
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	c.embedCache.Add(text, vector)
	return vector, nil
}

// ModelTag identifies the embedding model in use.
func (c *Client) ModelTag() string {
	return c.embedModel
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat service unreachable: %w", err)
	}
	return resp, nil
}

// checkStatus maps non-success statuses to user-presentable errors and
// consumes the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("chat service rejected credentials: %s", resp.Status)
	}
	return fmt.Errorf("chat service error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
}

func buildMessages(systemPrompt string, messages []Message) []Message {
	if systemPrompt == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: "system", Content: systemPrompt})
	return append(out, messages...)
}
