package anthropic

import (
	"encoding/json"

	"github.com/kirogate/kirogate/internal/gatewaylog"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/modelconfig"
	"github.com/kirogate/kirogate/internal/tokencount"
)

// blockKind names which content block, if any, is currently open.
type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockToolUse
)

// toolAccumulator tracks one in-flight tool_use's reassembled JSON input.
type toolAccumulator struct {
	index int
	id    string
	name  string
	buf   string
}

// finalizeInput parses the accumulated JSON buffer, falling back to an
// empty object (with a warning) on parse failure.
func (t *toolAccumulator) finalizeInput() json.RawMessage {
	if t.buf == "" {
		return json.RawMessage("{}")
	}
	var probe any
	if err := json.Unmarshal([]byte(t.buf), &probe); err != nil {
		gatewaylog.Warn("tool_use input failed to parse as JSON, using empty object", "tool_use_id", t.id, "err", err)
		return json.RawMessage("{}")
	}
	return json.RawMessage(t.buf)
}

// finalStopReason implements the default/override rules shared by the
// streaming and non-streaming paths: default end_turn, tool_use if any
// tool call was emitted and nothing more specific applies, and
// ContentLengthExceededException forces max_tokens.
func finalStopReason(current string, hadToolUse bool, contentLengthExceeded bool) string {
	if contentLengthExceeded {
		return "max_tokens"
	}
	if current != "" && current != "end_turn" {
		return current
	}
	if hadToolUse {
		return "tool_use"
	}
	return "end_turn"
}

// reconcileInputTokens recomputes the input_tokens estimate from the
// upstream's self-reported context percentage when available, falling back
// to the local heuristic estimate otherwise.
func reconcileInputTokens(model string, percentage float64, havePercentage bool, fallback int) int {
	if !havePercentage {
		return fallback
	}
	window := modelconfig.ContextWindow(model)
	return int(percentage * float64(window) / 100)
}

// EstimateInputTokens computes the pre-dispatch estimate from the
// translated conversation state, used both for the pre-dispatch context
// guard and as the fallback input_tokens before ContextUsage arrives.
func EstimateInputTokens(cs kiro.ConversationState) int {
	var msgs []tokencount.Message
	for _, pair := range cs.History {
		msgs = append(msgs, tokencount.Message{Text: pair.User.Text}, tokencount.Message{Text: pair.Assistant.Text})
	}
	msgs = append(msgs, tokencount.Message{Text: cs.Current.User.Text})
	return tokencount.EstimateRequest("", msgs, len(cs.Current.Tools))
}
