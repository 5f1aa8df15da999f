package models

// Precision levels controlling match fuzziness.
const (
	PrecisionLow    = "low"
	PrecisionMedium = "medium"
	PrecisionHigh   = "high"
)

// AIConfig is a fully-resolved AI provider configuration supplied per request.
// The engine never reads ambient provider state.
type AIConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

// Configured reports whether the config carries enough to reach a provider.
func (c *AIConfig) Configured() bool {
	return c != nil && c.BaseURL != "" && c.APIKey != ""
}

// SearchQuery is a search request. Paths, when non-empty, restricts results to
// files under those prefixes. Expansion is attempted only when Expand is true
// and AI carries a usable provider config.
type SearchQuery struct {
	Query     string    `json:"query"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
	Precision string    `json:"precision,omitempty"`
	Paths     []string  `json:"paths,omitempty"`
	Expand    bool      `json:"expand,omitempty"`
	AI        *AIConfig `json:"ai,omitempty"`
}

// Normalize clamps limit/offset and defaults precision. An empty query is not
// an error here; the engine returns an empty result set for it.
func (q *SearchQuery) Normalize(defaultLimit, maxLimit int) {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	switch q.Precision {
	case PrecisionLow, PrecisionMedium, PrecisionHigh:
	default:
		q.Precision = PrecisionMedium
	}
}
