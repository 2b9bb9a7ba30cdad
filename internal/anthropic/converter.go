package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kirogate/kirogate/internal/gatewayerr"
	"github.com/kirogate/kirogate/internal/gatewaylog"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/modelconfig"
)

const (
	maxToolDescriptionRunes = 10000
	placeholderDescription  = "Tool used in conversation history"

	opusSpecializationPrompt = "You are operating in a specialized mode tuned for precise, " +
		"code-focused assistance. Favor concrete, verifiable actions over exploratory discussion."

	thinkingModeMarkerFormat = "<thinking_mode>enabled</thinking_mode>\n<max_thinking_length>%d</max_thinking_length>\n"

	defaultThinkingBudget = 16000
)

// Translate converts an Anthropic Messages API request into upstream
// conversation state.
func Translate(req *Request) (kiro.ConversationState, error) {
	upstreamModel, ok := modelconfig.UpstreamModel(req.Model)
	if !ok {
		return kiro.ConversationState{}, gatewayerr.NewInvalidRequest("unsupported model %q", req.Model)
	}

	if len(req.Messages) == 0 {
		return kiro.ConversationState{}, gatewayerr.NewInvalidRequest("messages must not be empty")
	}

	conversationID := extractOrGenerateSessionID(req)
	continuationID := uuid.NewString()

	tools := convertTools(req.Tools)

	thinkingEnabled := req.Thinking != nil && req.Thinking.Type == "enabled"
	isOpus := modelconfig.IsOpus(req.Model)

	history, current, err := buildHistoryAndCurrent(req, isOpus, thinkingEnabled)
	if err != nil {
		return kiro.ConversationState{}, err
	}

	current.ToolResults = validateToolPairing(history, current.ToolResults)
	tools = injectPlaceholderTools(history, tools)

	return kiro.ConversationState{
		ConversationID:      conversationID,
		AgentContinuationID: continuationID,
		AgentTaskType:       "vibe",
		ChatTriggerType:     "MANUAL",
		Model:               upstreamModel,
		History:             history,
		Current: kiro.CurrentMessage{
			User:  current,
			Tools: tools,
		},
		ThinkingEnabled: thinkingEnabled,
	}, nil
}

// extractOrGenerateSessionID reads metadata.user_id for an embedded
// "session_<36-char UUID>"; otherwise a fresh UUID is minted.
func extractOrGenerateSessionID(req *Request) string {
	if req.Metadata != nil {
		if id, ok := extractSessionID(req.Metadata.UserID); ok {
			return id
		}
	}
	return uuid.NewString()
}

const sessionMarker = "session_"

// extractSessionID scans s for "session_" followed by a 36-character UUID
// shape (exactly four dashes), validating the shape strictly.
func extractSessionID(s string) (string, bool) {
	idx := strings.Index(s, sessionMarker)
	if idx == -1 {
		return "", false
	}
	rest := s[idx+len(sessionMarker):]
	if len(rest) < 36 {
		return "", false
	}
	candidate := rest[:36]
	if !looksLikeUUID(candidate) {
		return "", false
	}
	return candidate, true
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	dashes := 0
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
			dashes++
		default:
			if !isHexDigit(r) {
				return false
			}
		}
	}
	return dashes == 4
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// convertTools translates the client tool catalog as-is, truncating
// descriptions at a code-point-safe 10,000-rune boundary.
func convertTools(tools []Tool) []kiro.ToolSpec {
	out := make([]kiro.ToolSpec, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.InputSchema) > 0 {
			_ = json.Unmarshal(t.InputSchema, &schema)
		}
		if schema == nil {
			schema = permissiveSchema()
		}
		out = append(out, kiro.ToolSpec{
			Name:        t.Name,
			Description: truncateRunes(t.Description, maxToolDescriptionRunes),
			InputSchema: schema,
		})
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func permissiveSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// buildHistoryAndCurrent builds a strict-alternation history with
// system/Opus/thinking-prefix injection, consecutive-user merging, and
// trailing-orphan synthesis.
func buildHistoryAndCurrent(req *Request, isOpus, thinkingEnabled bool) ([]kiro.HistoryPair, kiro.UserTurn, error) {
	var history []kiro.HistoryPair

	systemText := req.SystemText()
	if isOpus {
		if systemText != "" {
			systemText = opusSpecializationPrompt + "\n\n" + systemText
		} else {
			systemText = opusSpecializationPrompt
		}
	}
	if thinkingEnabled && !hasThinkingTags(systemText) {
		marker := fmt.Sprintf(thinkingModeMarkerFormat, thinkingBudget(req))
		systemText = marker + systemText
	}
	if systemText != "" {
		history = append(history, kiro.HistoryPair{
			User:      kiro.UserTurn{Text: systemText},
			Assistant: kiro.AssistantTurn{Text: "I will follow these instructions."},
		})
	}

	// All messages except the last participate in history; the last one
	// becomes (or seeds) the current message.
	body := req.Messages[:len(req.Messages)-1]
	last := req.Messages[len(req.Messages)-1]

	var pendingUser *kiro.UserTurn
	for _, m := range body {
		switch m.Role {
		case "user":
			turn := extractUserTurn(m)
			if pendingUser == nil {
				u := turn
				pendingUser = &u
			} else {
				pendingUser.Text = strings.TrimRight(pendingUser.Text+"\n"+turn.Text, "\n")
				pendingUser.Images = append(pendingUser.Images, turn.Images...)
				pendingUser.ToolResults = append(pendingUser.ToolResults, turn.ToolResults...)
			}
		case "assistant":
			if pendingUser == nil {
				// Orphaned assistant turn (assistant-first conversation, or
				// two consecutive assistant messages): no user turn to pair
				// it with, so it's dropped rather than paired with a
				// synthesized empty user turn.
				continue
			}
			history = append(history, kiro.HistoryPair{User: *pendingUser, Assistant: extractAssistantTurn(m)})
			pendingUser = nil
		}
	}
	if pendingUser != nil {
		// Trailing orphan user run: synthesize an "OK" assistant.
		history = append(history, kiro.HistoryPair{User: *pendingUser, Assistant: kiro.AssistantTurn{Text: "OK"}})
	}

	if last.Role == "assistant" {
		// Trailing assistant message: include it in history, then the
		// current message has no natural counterpart — synthesize an
		// empty user turn rather than rejecting the request.
		history = append(history, kiro.HistoryPair{User: kiro.UserTurn{}, Assistant: extractAssistantTurn(last)})
		return history, kiro.UserTurn{}, nil
	}

	return history, extractUserTurn(last), nil
}

func thinkingBudget(req *Request) int {
	if req.Thinking != nil && req.Thinking.BudgetTokens > 0 {
		return req.Thinking.BudgetTokens
	}
	return defaultThinkingBudget
}

func hasThinkingTags(s string) bool {
	return strings.Contains(s, "<thinking_mode>") || strings.Contains(s, "<max_thinking_length>")
}

// extractUserTurn processes a user message's content blocks: text blocks
// joined by newline, images, and tool_results.
func extractUserTurn(m Message) kiro.UserTurn {
	var turn kiro.UserTurn
	var textParts []string

	for _, b := range m.Content.Blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "image":
			if b.Source != nil {
				if format, ok := imageFormat(b.Source.MediaType); ok {
					turn.Images = append(turn.Images, kiro.Image{Format: format, Data: b.Source.Data})
				}
			}
		case "tool_result":
			turn.ToolResults = append(turn.ToolResults, kiro.ToolResult{
				ToolUseID: b.ToolUseID,
				Content:   extractToolResultContent(b.Content),
			})
		}
	}
	turn.Text = strings.Join(textParts, "\n")
	return turn
}

// extractAssistantTurn combines thinking/text blocks and falls back to
// "There is a tool use." when a message carries only tool_use blocks.
func extractAssistantTurn(m Message) kiro.AssistantTurn {
	var turn kiro.AssistantTurn
	var textParts []string
	var thinkingParts []string

	for _, b := range m.Content.Blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "thinking":
			thinkingParts = append(thinkingParts, b.Thinking)
		case "tool_use":
			input := "{}"
			if len(b.Input) > 0 {
				input = string(b.Input)
			}
			turn.ToolUses = append(turn.ToolUses, kiro.ToolUse{ID: b.ID, Name: b.Name, Input: input})
		}
	}

	text := strings.Join(textParts, "\n")
	thinking := strings.Join(thinkingParts, "\n")

	switch {
	case thinking != "" && text != "":
		turn.Text = fmt.Sprintf("<thinking>%s</thinking>\n\n%s", thinking, text)
	case thinking != "":
		turn.Text = fmt.Sprintf("<thinking>%s</thinking>", thinking)
	case text == "" && len(turn.ToolUses) > 0:
		turn.Text = "There is a tool use."
	default:
		turn.Text = text
	}
	return turn
}

func imageFormat(mediaType string) (string, bool) {
	switch mediaType {
	case "image/jpeg":
		return "jpeg", true
	case "image/png":
		return "png", true
	case "image/gif":
		return "gif", true
	case "image/webp":
		return "webp", true
	default:
		return "", false
	}
}

func extractToolResultContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	case []any:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
					continue
				}
			}
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// validateToolPairing keeps current tool_results that answer a
// history-unpaired tool_use, drops duplicates and orphans with a warning,
// and warns (without failing) about any tool_use left unpaired.
func validateToolPairing(history []kiro.HistoryPair, current []kiro.ToolResult) []kiro.ToolResult {
	allToolUseIDs := map[string]bool{}
	pairedInHistory := map[string]bool{}

	for _, pair := range history {
		for _, tu := range pair.Assistant.ToolUses {
			allToolUseIDs[tu.ID] = true
		}
	}
	for _, pair := range history {
		for _, tr := range pair.User.ToolResults {
			pairedInHistory[tr.ToolUseID] = true
		}
	}

	unpaired := map[string]bool{}
	for id := range allToolUseIDs {
		if !pairedInHistory[id] {
			unpaired[id] = true
		}
	}

	kept := make([]kiro.ToolResult, 0, len(current))
	for _, tr := range current {
		switch {
		case unpaired[tr.ToolUseID]:
			kept = append(kept, tr)
			delete(unpaired, tr.ToolUseID)
		case pairedInHistory[tr.ToolUseID]:
			gatewaylog.Warn("dropping duplicate tool_result", "tool_use_id", tr.ToolUseID)
		default:
			gatewaylog.Warn("dropping orphan tool_result", "tool_use_id", tr.ToolUseID)
		}
	}

	for id := range unpaired {
		gatewaylog.Warn("tool_use left unanswered", "tool_use_id", id)
	}

	return kept
}

// injectPlaceholderTools gives a minimal permissive schema to every tool
// name referenced by history's assistant tool_uses that the catalog
// doesn't already declare (case-insensitive).
func injectPlaceholderTools(history []kiro.HistoryPair, tools []kiro.ToolSpec) []kiro.ToolSpec {
	declared := map[string]bool{}
	for _, t := range tools {
		declared[strings.ToLower(t.Name)] = true
	}

	seen := map[string]bool{}
	for _, pair := range history {
		for _, tu := range pair.Assistant.ToolUses {
			key := strings.ToLower(tu.Name)
			if declared[key] || seen[key] {
				continue
			}
			seen[key] = true
			tools = append(tools, kiro.ToolSpec{
				Name:        tu.Name,
				Description: placeholderDescription,
				InputSchema: permissiveSchema(),
			})
		}
	}
	return tools
}
