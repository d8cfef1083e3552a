package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const llmMaxTokens = 2048

// LLMClient handles communication with the chat-completions provider
// used by ai-chat nodes.
type LLMClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  Logger
}

// NewLLMClient creates a new chat-completions client. baseURL is
// overridable so tests can point it at a local server.
func NewLLMClient(baseURL, apiKey, model string, timeout time.Duration, logger Logger) *LLMClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ChatRequest is a single-turn completion request
type ChatRequest struct {
	System string
	Prompt string
	Model  string // optional override of the configured model
}

// ChatResponse carries the completion text plus provider metadata
type ChatResponse struct {
	Text  string         `json:"text"`
	Model string         `json:"model"`
	Usage map[string]any `json:"usage,omitempty"`
}

type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmRequestBody struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []llmMessage `json:"messages"`
}

type llmResponseBody struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage map[string]any `json:"usage"`
}

// Complete sends a single-turn prompt and returns the completion
func (c *LLMClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := llmRequestBody{
		Model:     model,
		MaxTokens: llmMaxTokens,
		System:    req.System,
		Messages:  []llmMessage{{Role: "user", Content: req.Prompt}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("completion request rejected",
			"status", resp.StatusCode,
			"body", string(raw))
		return nil, &UpstreamError{Service: "llm", Status: resp.StatusCode, Body: string(raw)}
	}

	var parsed llmResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &ChatResponse{
		Text:  text,
		Model: parsed.Model,
		Usage: parsed.Usage,
	}, nil
}
