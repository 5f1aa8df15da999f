// Package ai adapts an external OpenAI-compatible provider for query expansion
// and code explanation. Provider credentials arrive fully resolved with each
// request; the adapter holds no ambient provider state.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/models"
)

const defaultModel = "gpt-3.5-turbo"

// maxExpansionTerms caps how many synonyms a single expansion contributes.
const maxExpansionTerms = 5

// Client calls an OpenAI-compatible chat-completions endpoint. Expansion
// responses are cached per query+model so repeated searches skip the provider.
type Client struct {
	httpClient *http.Client
	cache      *lru.Cache[string, []string]
	logger     *zap.Logger
}

// NewClient creates an adapter with the given settings.
func NewClient(cfg *config.AIConfig, logger *zap.Logger) *Client {
	cache, _ := lru.New[string, []string](cfg.CacheSize)
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		cache:      cache,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// chatCompletion posts messages to the provider and returns the reply text.
// Several response shapes are probed because OpenAI-compatible endpoints vary.
func (c *Client) chatCompletion(ctx context.Context, provider *models.AIConfig, messages []chatMessage, temperature float64, maxTokens int) (string, error) {
	if !provider.Configured() {
		return "", fmt.Errorf("AI configuration (base URL or API key) is missing")
	}
	model := provider.Model
	if model == "" {
		model = defaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(provider.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if text, ok := extractReply(payload); ok {
		return text, nil
	}
	return "", fmt.Errorf("unrecognized provider response format: %s", truncate(string(data), 300))
}

// extractReply probes the response shapes seen across OpenAI-compatible APIs:
// choices[0].message.content, choices[0].text, then top-level content/result/data.
func extractReply(payload map[string]interface{}) (string, bool) {
	if choices, ok := payload["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if msg, ok := choice["message"].(map[string]interface{}); ok {
				if content, ok := msg["content"].(string); ok {
					return content, true
				}
			}
			if text, ok := choice["text"].(string); ok {
				return text, true
			}
		}
	}
	for _, key := range []string{"content", "result"} {
		if v, ok := payload[key].(string); ok {
			return v, true
		}
	}
	switch d := payload["data"].(type) {
	case string:
		return d, true
	case map[string]interface{}:
		if content, ok := d["content"].(string); ok {
			return content, true
		}
	}
	return "", false
}

// TestConnection sends a minimal prompt to verify the provider is reachable.
func (c *Client) TestConnection(ctx context.Context, provider *models.AIConfig) error {
	_, err := c.chatCompletion(ctx, provider,
		[]chatMessage{{Role: "user", Content: "Reply with 'OK'."}}, 0, 10)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
