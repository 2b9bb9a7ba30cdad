package anthropic

import (
	"strings"

	"github.com/google/uuid"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/tokencount"
)

// NonStreamAggregator consumes the same upstream Event sequence as
// StreamTranslator but accumulates a single Anthropic response body
// instead of emitting SSE.
type NonStreamAggregator struct {
	model   string
	fallbackInputTokens int

	textParts    []string
	toolOrder    []string
	tools        map[string]*toolAccumulator
	nextIndex    int
	hasToolUse   bool
	stopReason   string
	contentLenExceeded bool

	contextPercentage float64
	havePercentage    bool
}

// NewNonStreamAggregator creates an aggregator for a response to model,
// seeding the pre-ContextUsage input-token fallback.
func NewNonStreamAggregator(model string, fallbackInputTokens int) *NonStreamAggregator {
	return &NonStreamAggregator{
		model:               model,
		fallbackInputTokens: fallbackInputTokens,
		tools:               make(map[string]*toolAccumulator),
		stopReason:          "end_turn",
	}
}

// HandleEvent folds one upstream Event into the aggregator's state.
func (a *NonStreamAggregator) HandleEvent(ev kiro.Event) {
	switch ev.Kind {
	case kiro.EventAssistantResponse:
		a.textParts = append(a.textParts, ev.Content)
	case kiro.EventToolUse:
		acc, ok := a.tools[ev.ToolUseID]
		if !ok {
			acc = &toolAccumulator{index: a.nextIndex, id: ev.ToolUseID, name: ev.ToolName}
			a.nextIndex++
			a.tools[ev.ToolUseID] = acc
			a.toolOrder = append(a.toolOrder, ev.ToolUseID)
			a.hasToolUse = true
		}
		acc.buf += ev.ToolInput
		if ev.ToolStop {
			// Parsed lazily in Finalize via finalizeInput.
		}
	case kiro.EventContextUsage:
		a.contextPercentage = ev.Percentage
		a.havePercentage = true
	case kiro.EventException:
		if ev.ExceptionType == kiro.ContentLengthExceeded {
			a.contentLenExceeded = true
		}
	}
}

// Finalize builds the completed Anthropic response.
func (a *NonStreamAggregator) Finalize() Response {
	var content []ContentBlock

	text := strings.Join(a.textParts, "")
	if text != "" {
		content = append(content, ContentBlock{Type: "text", Text: text})
	}
	for _, id := range a.toolOrder {
		acc := a.tools[id]
		content = append(content, ContentBlock{
			Type:  "tool_use",
			ID:    acc.id,
			Name:  acc.name,
			Input: acc.finalizeInput(),
		})
	}

	stopReason := finalStopReason(a.stopReason, a.hasToolUse, a.contentLenExceeded)
	inputTokens := reconcileInputTokens(a.model, a.contextPercentage, a.havePercentage, a.fallbackInputTokens)
	outputTokens := tokencount.EstimateOutput(text, len(a.toolOrder))

	return Response{
		ID:         "msg_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:       "message",
		Role:       "assistant",
		Content:    content,
		Model:      a.model,
		StopReason: stopReason,
		Usage: Usage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		},
	}
}
