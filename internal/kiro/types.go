// Package kiro implements the upstream wire protocol: the binary framed
// event stream (EventFrameDecoder, UpstreamEventModel) and the HTTP client
// that dispatches translated requests with credential failover
// (UpstreamClient).
package kiro

// Image is an inline base64-encoded image, media type already validated.
type Image struct {
	Format string // jpeg | png | gif | webp
	Data   string // base64
}

// ToolUse is a completed tool invocation as carried in history.
type ToolUse struct {
	ID    string
	Name  string
	Input string // raw JSON
}

// ToolResult is a completed tool result as carried in history or the
// current message.
type ToolResult struct {
	ToolUseID string
	Content   string
}

// UserTurn is one user turn's content in the upstream shape.
type UserTurn struct {
	Text        string
	Images      []Image
	ToolResults []ToolResult
}

// AssistantTurn is one assistant turn's content in the upstream shape.
type AssistantTurn struct {
	Text     string
	ToolUses []ToolUse
}

// HistoryPair is one strictly-alternating (user, assistant) turn.
type HistoryPair struct {
	User      UserTurn
	Assistant AssistantTurn
}

// ToolSpec is a tool catalog entry.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// CurrentMessage is the active turn plus the tool catalog the upstream
// must see to accept any tool_use/tool_result references.
type CurrentMessage struct {
	User  UserTurn
	Tools []ToolSpec
}

// ConversationState is the full upstream request body (sans profile_arn,
// which UpstreamClient attaches from the dispatching credential).
type ConversationState struct {
	ConversationID       string
	AgentContinuationID  string
	AgentTaskType        string
	ChatTriggerType      string
	Model                string
	History              []HistoryPair
	Current              CurrentMessage
	ThinkingEnabled       bool
}

// wireHistoryEntry and wireConversationState define the JSON shape posted
// to the upstream. Kept unexported: callers work with ConversationState,
// this is purely a marshaling concern.
type wireContentBlock struct {
	Text        string          `json:"text,omitempty"`
	Images      []wireImage     `json:"images,omitempty"`
	ToolResults []wireToolResult `json:"toolResults,omitempty"`
	ToolUses    []wireToolUse   `json:"toolUses,omitempty"`
}

type wireImage struct {
	Format string `json:"format"`
	Bytes  string `json:"bytes"`
}

type wireToolResult struct {
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
}

type wireToolUse struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
	Input     string `json:"input"`
}

type wireToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type wireUserMessage struct {
	Content wireContentBlock `json:"content"`
}

type wireAssistantMessage struct {
	Content wireContentBlock `json:"content"`
}

type wireHistoryEntry struct {
	UserInputMessage      wireUserMessage      `json:"userInputMessage"`
	AssistantResponseMessage wireAssistantMessage `json:"assistantResponseMessage"`
}

type wireUserInputMessageContext struct {
	ToolResults []wireToolResult `json:"toolResults,omitempty"`
	Tools       []wireToolSpec   `json:"tools,omitempty"`
}

type wireUserInputMessage struct {
	Content string                      `json:"content"`
	Images  []wireImage                 `json:"images,omitempty"`
	Context wireUserInputMessageContext `json:"userInputMessageContext"`
	Origin  string                      `json:"origin"`
	ModelID string                      `json:"modelId"`
}

type wireConversationState struct {
	ConversationID      string             `json:"conversationId"`
	AgentContinuationID string             `json:"agentContinuationId"`
	AgentTaskType       string             `json:"agentTaskType"`
	ChatTriggerType     string             `json:"chatTriggerType"`
	History             []wireHistoryEntry `json:"history"`
	CurrentMessage      struct {
		UserInputMessage wireUserInputMessage `json:"userInputMessage"`
	} `json:"currentMessage"`
}

// Request is the top-level upstream POST body.
type Request struct {
	ConversationState wireConversationState `json:"conversationState"`
	ProfileARN         string                `json:"profileArn,omitempty"`
}

// ToWireRequest converts a ConversationState plus a dispatching profile ARN
// into the exact JSON shape the upstream expects.
func ToWireRequest(cs ConversationState, profileARN string) Request {
	history := make([]wireHistoryEntry, 0, len(cs.History))
	for _, pair := range cs.History {
		history = append(history, wireHistoryEntry{
			UserInputMessage: wireUserMessage{
				Content: wireContentBlock{
					Text:        pair.User.Text,
					Images:      toWireImages(pair.User.Images),
					ToolResults: toWireToolResults(pair.User.ToolResults),
				},
			},
			AssistantResponseMessage: wireAssistantMessage{
				Content: wireContentBlock{
					Text:     pair.Assistant.Text,
					ToolUses: toWireToolUses(pair.Assistant.ToolUses),
				},
			},
		})
	}

	tools := make([]wireToolSpec, 0, len(cs.Current.Tools))
	for _, t := range cs.Current.Tools {
		tools = append(tools, wireToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	wire := wireConversationState{
		ConversationID:      cs.ConversationID,
		AgentContinuationID: cs.AgentContinuationID,
		AgentTaskType:       cs.AgentTaskType,
		ChatTriggerType:     cs.ChatTriggerType,
		History:             history,
	}
	wire.CurrentMessage.UserInputMessage = wireUserInputMessage{
		Content: cs.Current.User.Text,
		Images:  toWireImages(cs.Current.User.Images),
		Context: wireUserInputMessageContext{
			ToolResults: toWireToolResults(cs.Current.User.ToolResults),
			Tools:       tools,
		},
		Origin:  "AI_EDITOR",
		ModelID: cs.Model,
	}

	return Request{ConversationState: wire, ProfileARN: profileARN}
}

func toWireImages(images []Image) []wireImage {
	if len(images) == 0 {
		return nil
	}
	out := make([]wireImage, len(images))
	for i, img := range images {
		out[i] = wireImage{Format: img.Format, Bytes: img.Data}
	}
	return out
}

func toWireToolResults(results []ToolResult) []wireToolResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]wireToolResult, len(results))
	for i, r := range results {
		out[i] = wireToolResult{ToolUseID: r.ToolUseID, Content: r.Content}
	}
	return out
}

func toWireToolUses(uses []ToolUse) []wireToolUse {
	if len(uses) == 0 {
		return nil
	}
	out := make([]wireToolUse, len(uses))
	for i, u := range uses {
		out[i] = wireToolUse{ToolUseID: u.ID, Name: u.Name, Input: u.Input}
	}
	return out
}
