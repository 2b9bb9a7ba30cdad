// Package anthropic implements the Anthropic-facing half of the gateway:
// translating Messages API requests into upstream conversation state
// (RequestTranslator) and translating the upstream event stream back into
// Anthropic SSE (StreamTranslator) or a single JSON body
// (NonStreamAggregator).
package anthropic

import "encoding/json"

// ContentBlock is one entry of a message's content array.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"` // string or []ContentBlock-like {text}

	// thinking
	Thinking string `json:"thinking,omitempty"`
}

// ImageSource carries an inline base64 image.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// MessageContent is either a plain string or an array of ContentBlock;
// UnmarshalJSON normalizes both into Blocks.
type MessageContent struct {
	Blocks []ContentBlock
}

func (mc *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		mc.Blocks = []ContentBlock{{Type: "text", Text: s}}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	mc.Blocks = blocks
	return nil
}

func (mc MessageContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(mc.Blocks)
}

// Message is one entry of the request's messages array.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// SystemBlock is one entry of an array-form system prompt.
type SystemBlock struct {
	Text string `json:"text"`
}

// Tool is a client-declared tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ThinkingConfig enables extended-thinking mode.
type ThinkingConfig struct {
	Type         string `json:"type"` // "enabled" | "disabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Metadata carries client-supplied request metadata.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Request is an Anthropic Messages API request.
type Request struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Stream    bool            `json:"stream"`
	System    json.RawMessage `json:"system,omitempty"` // string or []SystemBlock
	Messages  []Message       `json:"messages"`
	Tools     []Tool          `json:"tools,omitempty"`
	Thinking  *ThinkingConfig `json:"thinking,omitempty"`
	Metadata  *Metadata       `json:"metadata,omitempty"`
}

// SystemText extracts and joins the system prompt regardless of whether it
// was sent as a string or an array of blocks.
func (r *Request) SystemText() string {
	if len(r.System) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.System, &s); err == nil {
		return s
	}
	var blocks []SystemBlock
	if err := json.Unmarshal(r.System, &blocks); err == nil {
		out := ""
		for i, b := range blocks {
			if i > 0 {
				out += "\n"
			}
			out += b.Text
		}
		return out
	}
	return ""
}

// Usage is the token-usage shape in both streaming and non-streaming
// responses.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a non-streaming Messages API response body.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// CountTokensRequest is the body of /v1/messages/count_tokens.
type CountTokensRequest struct {
	Model    string          `json:"model"`
	System   json.RawMessage `json:"system,omitempty"`
	Messages []Message       `json:"messages"`
	Tools    []Tool          `json:"tools,omitempty"`
}
