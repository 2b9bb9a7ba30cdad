// Package sse writes Server-Sent Events frames to an io.Writer.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Event is a single Server-Sent Event.
type Event struct {
	Name string
	Data string
}

// Writer writes raw SSE frames to the underlying writer.
type Writer struct {
	w io.Writer
}

// NewWriter creates a Writer around w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes one SSE frame: "event: <name>\ndata: <data>\n\n".
func (w *Writer) WriteEvent(ev Event) error {
	var buf bytes.Buffer
	if ev.Name != "" {
		buf.WriteString(fmt.Sprintf("event: %s\n", ev.Name))
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		buf.WriteString(fmt.Sprintf("data: %s\n", line))
	}
	buf.WriteString("\n")
	_, err := w.w.Write(buf.Bytes())
	return err
}

// EventWriter knows the Anthropic Messages streaming vocabulary and
// marshals each payload before handing it to the underlying Writer.
type EventWriter struct {
	raw *Writer
}

// NewEventWriter wraps w with Anthropic event-name awareness.
func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{raw: NewWriter(w)}
}

func (e *EventWriter) write(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	return e.raw.WriteEvent(Event{Name: name, Data: string(data)})
}

func (e *EventWriter) MessageStart(payload any) error        { return e.write("message_start", payload) }
func (e *EventWriter) ContentBlockStart(payload any) error    { return e.write("content_block_start", payload) }
func (e *EventWriter) ContentBlockDelta(payload any) error    { return e.write("content_block_delta", payload) }
func (e *EventWriter) ContentBlockStop(payload any) error     { return e.write("content_block_stop", payload) }
func (e *EventWriter) MessageDelta(payload any) error         { return e.write("message_delta", payload) }
func (e *EventWriter) MessageStop(payload any) error          { return e.write("message_stop", payload) }
func (e *EventWriter) Error(payload any) error                { return e.write("error", payload) }

// Ping writes the fixed 25-second keep-alive frame.
func (e *EventWriter) Ping() error {
	return e.raw.WriteEvent(Event{Name: "ping", Data: `{"type": "ping"}`})
}
