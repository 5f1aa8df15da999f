package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/models"
)

// defaultExpandPrompt asks the provider for domain-aware synonyms of the query.
// A custom prompt may override it; "{{query}}" is replaced with the raw query.
const defaultExpandPrompt = `You are a document search assistant. Generate 3-5 of the most relevant expansion terms for the following search keyword, to help the user find more related documents.

Search term: {{query}}

Rules:
1. Prefer domain-specific synonyms (medical, statistical, legal, financial, ...).
2. Include common abbreviations or spelled-out forms of the term.
3. Do not generate terms that are overly broad or drift from the original meaning.
4. Do not include the original search term itself.

Return only a JSON array such as ["term1", "term2", "term3"], with no other text.`

const expandSystemPrompt = "You are a search keyword expansion assistant. Identify the domain of the user's search term and generate the most relevant synonyms and expansion terms. Return only a JSON array."

// fenceRe strips markdown code fences some providers wrap around JSON.
var fenceRe = regexp.MustCompile("^```(?:json)?\\s*|\\s*```$")

// Expand asks the provider for synonym terms for query. customPrompt, when
// non-empty, replaces the default template. A malformed or non-array response
// yields an empty expansion with no error; transport and provider errors are
// returned so the explicit /ai/expand endpoint can surface them, while search
// callers discard them and proceed unexpanded.
func (c *Client) Expand(ctx context.Context, query, customPrompt string, provider *models.AIConfig) ([]string, error) {
	cacheKey := query + "\x00" + provider.Model + "\x00" + customPrompt
	if terms, ok := c.cache.Get(cacheKey); ok {
		return terms, nil
	}

	prompt := defaultExpandPrompt
	if customPrompt != "" {
		prompt = customPrompt
	}
	prompt = strings.ReplaceAll(prompt, "{{query}}", query)

	content, err := c.chatCompletion(ctx, provider, []chatMessage{
		{Role: "system", Content: expandSystemPrompt},
		{Role: "user", Content: prompt},
	}, 0.3, 150)
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}

	terms := parseExpansionTerms(content)
	c.cache.Add(cacheKey, terms)
	if c.logger != nil {
		c.logger.Debug("query expanded", zap.String("query", query), zap.Strings("terms", terms))
	}
	return terms, nil
}

// parseExpansionTerms extracts a JSON array of terms from the provider reply.
// Anything unparseable is treated as "no expansion available".
func parseExpansionTerms(content string) []string {
	content = strings.TrimSpace(content)
	content = fenceRe.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)

	var raw []interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil
	}
	terms := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		terms = append(terms, s)
		if len(terms) == maxExpansionTerms {
			break
		}
	}
	return terms
}

// Explain sends a code snippet to the provider for an explanation. Unlike
// expansion, failures here are surfaced to the caller.
func (c *Client) Explain(ctx context.Context, snippet, contextHint string, provider *models.AIConfig) (string, error) {
	prompt := fmt.Sprintf("Briefly explain what the following %s code does:\n\n```\n%s\n```", contextHint, snippet)
	reply, err := c.chatCompletion(ctx, provider, []chatMessage{
		{Role: "system", Content: "You are a helpful coding assistant. Explain the code clearly and concisely."},
		{Role: "user", Content: prompt},
	}, 0.3, 500)
	if err != nil {
		return "", fmt.Errorf("explain code: %w", err)
	}
	return reply, nil
}
