// Package modelconfig holds the small, static model metadata table: the
// context-window size per model family and the /v1/models payload shape.
package modelconfig

import "strings"

// ContextWindow returns the context window size for a model name. All
// known families currently share the same window; unknown names get the
// same default, since the upstream's own ContextUsage event is the
// authority, not this table.
func ContextWindow(model string) int {
	return 200000
}

// Model is one entry of the /v1/models listing.
type Model struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Created     int64  `json:"created"`
	OwnedBy     string `json:"owned_by"`
	DisplayName string `json:"display_name"`
	ModelType   string `json:"model_type"`
	MaxTokens   int    `json:"max_tokens"`
}

// Listing returns the fixed three-entry model list the gateway advertises.
func Listing() []Model {
	return []Model{
		{ID: "claude-sonnet-4-5-20250929", Object: "model", Created: 1740000000, OwnedBy: "anthropic", DisplayName: "Claude Sonnet 4.5", ModelType: "text", MaxTokens: 32000},
		{ID: "claude-opus-4-5-20250929", Object: "model", Created: 1740000000, OwnedBy: "anthropic", DisplayName: "Claude Opus 4.5", ModelType: "text", MaxTokens: 32000},
		{ID: "claude-haiku-4-5-20250929", Object: "model", Created: 1740000000, OwnedBy: "anthropic", DisplayName: "Claude Haiku 4.5", ModelType: "text", MaxTokens: 32000},
	}
}

// UpstreamModel maps a client-supplied model name to the upstream model
// string. Matching is a case-insensitive substring search, mirroring the
// source converter's precedence: sonnet and opus both collapse onto the
// same upstream target (the upstream rejects Opus on free credentials, so
// requests are downgraded and a specialization prompt is injected instead).
func UpstreamModel(model string) (string, bool) {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "sonnet"), strings.Contains(lower, "opus"):
		return "claude-sonnet-4.5", true
	case strings.Contains(lower, "haiku"):
		return "claude-haiku-4.5", true
	default:
		return "", false
	}
}

// IsOpus reports whether the client-supplied model name names the Opus
// family, used to decide whether to inject the specialization prompt.
func IsOpus(model string) bool {
	return strings.Contains(strings.ToLower(model), "opus")
}
