package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/itori-ai/aiengine/internal/port"
)

// OpenAI-style chat completion wire types, shared by every HTTP backend.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
	Stream         bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// completePort runs one port invocation through a chat-completions endpoint.
// Temperature is pinned to zero: port outputs are structured extractions, not
// creative text.
func (b *baseProvider) completePort(ctx context.Context, id port.ID, input []byte, apiKey string) ([]byte, int, string, error) {
	prompt := systemPrompt(id)
	if prompt == "" {
		return nil, 0, "", Permanent(fmt.Errorf("no prompt for port %s", id))
	}

	body, err := json.Marshal(chatRequest{
		Model: b.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: string(input)},
		},
		MaxTokens:      b.config.MaxTokens,
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, 0, "", Permanent(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, 0, "", Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, 0, "", classifyHTTPError(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, 0, "", fmt.Errorf("%w: %s",
			classifyHTTPError(nil, resp.StatusCode), strings.TrimSpace(string(errBody)))
	}

	raw, err := readLimitedBody(resp.Body, MaxResponseSize)
	if err != nil {
		return nil, 0, "", Transient(fmt.Errorf("read response: %w", err))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, 0, "", Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(cr.Choices) == 0 {
		return nil, 0, "", Permanent(fmt.Errorf("empty response from backend"))
	}

	content := stripFences(cr.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, 0, "", Permanent(fmt.Errorf("backend returned non-JSON content"))
	}
	return []byte(content), cr.Usage.TotalTokens, cr.Model, nil
}

// stripFences removes a markdown code fence around a JSON payload. Smaller
// models wrap JSON-mode output in fences despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
