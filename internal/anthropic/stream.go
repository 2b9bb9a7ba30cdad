package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirogate/kirogate/internal/gatewaylog"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/tokencount"
	"github.com/kirogate/kirogate/pkg/sse"
)

const pingInterval = 25 * time.Second

// StreamTranslator consumes upstream Events and emits Anthropic SSE
// frames, maintaining per-block state (open content block, tool_use JSON
// buffers) across the life of one response.
type StreamTranslator struct {
	w         *sse.EventWriter
	model     string
	messageID string

	openBlock blockKind
	openIndex int
	nextIndex int

	tools      map[string]*toolAccumulator
	toolOrder  []string

	accumulatedText    string
	outputTokens       int
	hasToolUse         bool
	stopReason         string
	contentLenExceeded bool

	contextPercentage float64
	havePercentage    bool

	fallbackInputTokens int

	// pingIntervalOverrideForTest lets tests shrink the heartbeat period
	// instead of waiting on the real 25s interval. Zero means "use the
	// default".
	pingIntervalOverrideForTest time.Duration
}

// NewStreamTranslator builds a translator writing SSE frames to w.
func NewStreamTranslator(w *sse.EventWriter, model string, fallbackInputTokens int) *StreamTranslator {
	return &StreamTranslator{
		w:                   w,
		model:               model,
		messageID:           "msg_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		tools:               make(map[string]*toolAccumulator),
		stopReason:          "end_turn",
		fallbackInputTokens: fallbackInputTokens,
	}
}

type messageStartPayload struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Role         string   `json:"role"`
	Model        string   `json:"model"`
	Content      []any    `json:"content"`
	StopReason   any      `json:"stop_reason"`
	StopSequence any      `json:"stop_sequence"`
	Usage        Usage    `json:"usage"`
}

// EmitMessageStart writes the fixed initial event: no content block is
// opened yet, and usage.output_tokens starts at 1, matching Anthropic's
// own message_start shape.
func (s *StreamTranslator) EmitMessageStart() error {
	return s.w.MessageStart(messageStartPayload{
		ID:      s.messageID,
		Type:    "message",
		Role:    "assistant",
		Model:   s.model,
		Content: []any{},
		Usage:   Usage{InputTokens: s.fallbackInputTokens, OutputTokens: 1},
	})
}

// HandleEvent folds one upstream Event into state and writes the
// corresponding SSE frame(s).
func (s *StreamTranslator) HandleEvent(ev kiro.Event) error {
	switch ev.Kind {
	case kiro.EventAssistantResponse:
		return s.handleAssistantResponse(ev)
	case kiro.EventToolUse:
		return s.handleToolUse(ev)
	case kiro.EventContextUsage:
		s.contextPercentage = ev.Percentage
		s.havePercentage = true
		return nil
	case kiro.EventException:
		if ev.ExceptionType == kiro.ContentLengthExceeded {
			s.contentLenExceeded = true
			return nil
		}
		return s.emitError(ev.ExceptionType, ev.ExceptionMessage)
	default:
		return nil
	}
}

func (s *StreamTranslator) handleAssistantResponse(ev kiro.Event) error {
	if s.openBlock != blockText {
		if err := s.closeOpenBlock(); err != nil {
			return err
		}
		idx := s.nextIndex
		s.nextIndex++
		s.openBlock = blockText
		s.openIndex = idx
		if err := s.w.ContentBlockStart(map[string]any{
			"index":         idx,
			"content_block": map[string]any{"type": "text", "text": ""},
		}); err != nil {
			return err
		}
	}
	s.accumulatedText += ev.Content
	return s.w.ContentBlockDelta(map[string]any{
		"index": s.openIndex,
		"delta": map[string]any{"type": "text_delta", "text": ev.Content},
	})
}

func (s *StreamTranslator) handleToolUse(ev kiro.Event) error {
	acc, known := s.tools[ev.ToolUseID]
	if !known {
		if s.openBlock == blockText {
			if err := s.closeOpenBlock(); err != nil {
				return err
			}
		}
		idx := s.nextIndex
		s.nextIndex++
		acc = &toolAccumulator{index: idx, id: ev.ToolUseID, name: ev.ToolName}
		s.tools[ev.ToolUseID] = acc
		s.toolOrder = append(s.toolOrder, ev.ToolUseID)
		s.hasToolUse = true
		s.openBlock = blockToolUse
		s.openIndex = idx
		if err := s.w.ContentBlockStart(map[string]any{
			"index": idx,
			"content_block": map[string]any{
				"type":  "tool_use",
				"id":    ev.ToolUseID,
				"name":  ev.ToolName,
				"input": map[string]any{},
			},
		}); err != nil {
			return err
		}
	}

	acc.buf += ev.ToolInput
	if err := s.w.ContentBlockDelta(map[string]any{
		"index": acc.index,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": ev.ToolInput},
	}); err != nil {
		return err
	}

	if ev.ToolStop {
		acc.finalizeInput() // validates and warns on parse failure; value unused for streaming.
		if err := s.w.ContentBlockStop(map[string]any{"index": acc.index}); err != nil {
			return err
		}
		s.openBlock = blockNone
	}
	return nil
}

func (s *StreamTranslator) closeOpenBlock() error {
	if s.openBlock == blockNone {
		return nil
	}
	idx := s.openIndex
	s.openBlock = blockNone
	return s.w.ContentBlockStop(map[string]any{"index": idx})
}

func (s *StreamTranslator) emitError(errType, message string) error {
	return s.w.Error(map[string]any{
		"type":    "error",
		"error": map[string]any{
			"type":    errType,
			"message": message,
		},
	})
}

// Finalize closes any open block and writes message_delta + message_stop.
func (s *StreamTranslator) Finalize() error {
	if err := s.closeOpenBlock(); err != nil {
		return err
	}

	stopReason := finalStopReason(s.stopReason, s.hasToolUse, s.contentLenExceeded)
	inputTokens := reconcileInputTokens(s.model, s.contextPercentage, s.havePercentage, s.fallbackInputTokens)
	s.outputTokens = tokencount.EstimateOutput(s.accumulatedText, len(s.toolOrder))

	if err := s.w.MessageDelta(map[string]any{
		"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": Usage{InputTokens: inputTokens, OutputTokens: s.outputTokens},
	}); err != nil {
		return err
	}
	return s.w.MessageStop(map[string]any{"type": "message_stop"})
}

// Ping writes a heartbeat frame.
func (s *StreamTranslator) Ping() error {
	return s.w.Ping()
}

// Run drives the translator's event loop: it races each upstream event
// against the heartbeat ticker, and guarantees release is called exactly
// once regardless of exit path (normal completion, upstream error, or
// context cancellation).
func Run(ctx context.Context, s *StreamTranslator, events <-chan kiro.Event, errs <-chan error, release func()) error {
	defer release()

	if err := s.EmitMessageStart(); err != nil {
		return fmt.Errorf("emit message_start: %w", err)
	}

	interval := pingInterval
	if s.pingIntervalOverrideForTest > 0 {
		interval = s.pingIntervalOverrideForTest
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-errs:
			if ok && err != nil {
				gatewaylog.Warn("upstream stream error", "err", err)
			}
			return s.Finalize()

		case ev, ok := <-events:
			if !ok {
				return s.Finalize()
			}
			if ev.Kind == kiro.EventTerminal {
				return s.Finalize()
			}
			if err := s.HandleEvent(ev); err != nil {
				return err
			}

		case <-ticker.C:
			if err := s.Ping(); err != nil {
				return err
			}
		}
	}
}
