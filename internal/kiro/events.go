package kiro

import "encoding/json"

// EventKind discriminates the Event union.
type EventKind int

const (
	EventAssistantResponse EventKind = iota
	EventToolUse
	EventContextUsage
	EventException
	EventMessageMetadata
	EventTerminal
)

// Event is one decoded upstream event. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind EventKind

	// EventAssistantResponse
	Content string

	// EventToolUse
	ToolUseID string
	ToolName  string
	ToolInput string // raw JSON fragment
	ToolStop  bool

	// EventContextUsage
	Percentage float64

	// EventException
	ExceptionType    string
	ExceptionMessage string
}

// these mirror the upstream's per-event JSON payload shapes, keyed by a
// discriminator header the frame's Headers block carries. Payload fields
// are a superset across event types; unused fields are simply absent.
type eventPayload struct {
	EventType  string  `json:"event_type"`
	Content    string  `json:"content"`
	ToolUseID  string  `json:"toolUseId"`
	Name       string  `json:"name"`
	Input      string  `json:"input"`
	Stop       bool    `json:"stop"`
	Percentage float64 `json:"percentage"`
	Type       string  `json:"type"`
	Message    string  `json:"message"`
}

// ParseEvent decodes a frame's JSON payload into a tagged Event, using the
// header-borne discriminator string headerEventType (the upstream sets an
// ":event-type" header per frame).
func ParseEvent(headerEventType string, payload []byte) (Event, error) {
	var p eventPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, err
		}
	}

	switch headerEventType {
	case "assistantResponseEvent":
		return Event{Kind: EventAssistantResponse, Content: p.Content}, nil
	case "toolUseEvent":
		return Event{Kind: EventToolUse, ToolUseID: p.ToolUseID, ToolName: p.Name, ToolInput: p.Input, ToolStop: p.Stop}, nil
	case "contextUsageEvent", "invocationMetricsEvent":
		return Event{Kind: EventContextUsage, Percentage: p.Percentage}, nil
	case "exception", "error":
		return Event{Kind: EventException, ExceptionType: p.Type, ExceptionMessage: p.Message}, nil
	case "messageMetadataEvent":
		return Event{Kind: EventMessageMetadata}, nil
	case "terminal", "":
		return Event{Kind: EventTerminal}, nil
	default:
		// Unknown event types are treated as metadata: ignorable, not fatal.
		return Event{Kind: EventMessageMetadata}, nil
	}
}

// ContentLengthExceeded is the exception type that maps to stop_reason
// "max_tokens" rather than a hard error.
const ContentLengthExceeded = "ContentLengthExceededException"

const headerStringValueType = 7

// ExtractEventType scans a frame's raw headers block for the ":event-type"
// entry and returns its string value. Each header record is
// name_len(1) + name + value_type(1) + value_len(2, big-endian) + value;
// only the string value type is meaningful here, since that's the only
// type the upstream uses for this header.
func ExtractEventType(headers []byte) string {
	i := 0
	for i < len(headers) {
		if i+1 > len(headers) {
			break
		}
		nameLen := int(headers[i])
		i++
		if i+nameLen > len(headers) {
			break
		}
		name := string(headers[i : i+nameLen])
		i += nameLen

		if i >= len(headers) {
			break
		}
		valueType := headers[i]
		i++

		if valueType != headerStringValueType {
			break
		}
		if i+2 > len(headers) {
			break
		}
		valueLen := int(headers[i])<<8 | int(headers[i+1])
		i += 2
		if i+valueLen > len(headers) {
			break
		}
		value := string(headers[i : i+valueLen])
		i += valueLen

		if name == ":event-type" {
			return value
		}
	}
	return ""
}
