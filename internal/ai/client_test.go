package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(&config.AIConfig{TimeoutSeconds: 5, CacheSize: 16}, zap.NewNop())
}

// chatServer returns an httptest server answering chat completions with the
// given reply content, counting calls.
func chatServer(t *testing.T, reply string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func provider(url string) *models.AIConfig {
	return &models.AIConfig{BaseURL: url, APIKey: "test-key", Model: "test-model"}
}

func TestExpand(t *testing.T) {
	srv := chatServer(t, `["synonym one", "synonym two"]`, nil)
	c := newTestClient(t)

	terms, err := c.Expand(context.Background(), "original", "", provider(srv.URL))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(terms) != 2 || terms[0] != "synonym one" || terms[1] != "synonym two" {
		t.Errorf("terms %+v", terms)
	}
}

func TestExpandStripsFences(t *testing.T) {
	srv := chatServer(t, "```json\n[\"fenced\"]\n```", nil)
	c := newTestClient(t)

	terms, err := c.Expand(context.Background(), "q", "", provider(srv.URL))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(terms) != 1 || terms[0] != "fenced" {
		t.Errorf("terms %+v", terms)
	}
}

func TestExpandNonArrayIsEmpty(t *testing.T) {
	srv := chatServer(t, "Sorry, I cannot help with that.", nil)
	c := newTestClient(t)

	terms, err := c.Expand(context.Background(), "q", "", provider(srv.URL))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(terms) != 0 {
		t.Errorf("terms %+v", terms)
	}
}

func TestExpandCapsTerms(t *testing.T) {
	srv := chatServer(t, `["a","b","c","d","e","f","g"]`, nil)
	c := newTestClient(t)

	terms, err := c.Expand(context.Background(), "q", "", provider(srv.URL))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(terms) != maxExpansionTerms {
		t.Errorf("got %d terms, want %d", len(terms), maxExpansionTerms)
	}
}

func TestExpandCached(t *testing.T) {
	var calls atomic.Int64
	srv := chatServer(t, `["cached"]`, &calls)
	c := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Expand(ctx, "repeat", "", provider(srv.URL)); err != nil {
			t.Fatalf("Expand #%d: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1", calls.Load())
	}
}

func TestExpandCustomPrompt(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Messages[len(req.Messages)-1].Content
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": `["x"]`}},
			},
		})
	}))
	defer srv.Close()
	c := newTestClient(t)

	if _, err := c.Expand(context.Background(), "budget", "Expand: {{query}}", provider(srv.URL)); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if gotPrompt != "Expand: budget" {
		t.Errorf("prompt %q", gotPrompt)
	}
}

func TestExpandUnconfigured(t *testing.T) {
	c := newTestClient(t)
	if _, err := c.Expand(context.Background(), "q", "", &models.AIConfig{}); err == nil {
		t.Error("expected error for missing provider config")
	}
}

func TestExpandProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(t)

	if _, err := c.Expand(context.Background(), "q", "", provider(srv.URL)); err == nil {
		t.Error("expected error for provider failure")
	}
}

func TestExplain(t *testing.T) {
	srv := chatServer(t, "This code prints a greeting.", nil)
	c := newTestClient(t)

	got, err := c.Explain(context.Background(), `print("hi")`, "python", provider(srv.URL))
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if got != "This code prints a greeting." {
		t.Errorf("got %q", got)
	}
}

func TestTestConnection(t *testing.T) {
	srv := chatServer(t, "OK", nil)
	c := newTestClient(t)

	if err := c.TestConnection(context.Background(), provider(srv.URL)); err != nil {
		t.Errorf("TestConnection: %v", err)
	}
	if err := c.TestConnection(context.Background(), provider("http://127.0.0.1:1")); err == nil {
		t.Error("expected error for unreachable provider")
	}
}

func TestExtractReplyShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
	}{
		{"chat choice", map[string]interface{}{
			"choices": []interface{}{map[string]interface{}{
				"message": map[string]interface{}{"content": "a"},
			}},
		}, "a"},
		{"completion choice", map[string]interface{}{
			"choices": []interface{}{map[string]interface{}{"text": "b"}},
		}, "b"},
		{"top-level content", map[string]interface{}{"content": "c"}, "c"},
		{"top-level result", map[string]interface{}{"result": "d"}, "d"},
		{"data string", map[string]interface{}{"data": "e"}, "e"},
		{"data object", map[string]interface{}{
			"data": map[string]interface{}{"content": "f"},
		}, "f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractReply(tt.payload)
			if !ok || got != tt.want {
				t.Errorf("got %q ok=%v, want %q", got, ok, tt.want)
			}
		})
	}

	if _, ok := extractReply(map[string]interface{}{"other": 1}); ok {
		t.Error("unknown shape should not parse")
	}
}
