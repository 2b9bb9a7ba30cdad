package gatewayhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/kirogate/kirogate/internal/anthropic"
	"github.com/kirogate/kirogate/internal/credentials"
	"github.com/kirogate/kirogate/internal/gatewayerr"
	"github.com/kirogate/kirogate/internal/gatewaylog"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/internal/modelconfig"
	"github.com/kirogate/kirogate/pkg/sse"
	"github.com/kirogate/kirogate/pkg/telemetry"
)

const (
	bodyWarnBytes1 = 1 << 20         // 1 MB
	bodyWarnBytes2 = 1536 * 1 << 10  // 1.5 MB
	bodyDiagBytes  = 2 << 20         // 2 MB

	// nonStreamDeadline bounds a non-streaming request end-to-end. Streaming
	// requests get no such deadline: the client controls a stream's lifetime.
	nonStreamDeadline = 5 * time.Minute
)

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   modelconfig.Listing(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "gatewayhttp.messages")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		err = gatewayerr.NewInvalidRequest("failed to read request body: %v", err)
		telemetry.RecordErrorOnSpan(span, err)
		writeError(w, err)
		return
	}
	logBodySizeDiagnostics(body)

	var req anthropic.Request
	if err := json.Unmarshal(body, &req); err != nil {
		werr := gatewayerr.NewInvalidRequest("malformed JSON body: %v", err)
		telemetry.RecordErrorOnSpan(span, werr)
		writeError(w, werr)
		return
	}

	cs, err := anthropic.Translate(&req)
	if err != nil {
		telemetry.RecordErrorOnSpan(span, err)
		writeError(w, err)
		return
	}

	fallbackInputTokens := anthropic.EstimateInputTokens(cs)
	if fallbackInputTokens+req.MaxTokens > modelconfig.ContextWindow(cs.Model) {
		err := gatewayerr.NewInvalidRequest(
			"input_tokens (%d) + max_tokens (%d) exceeds the model's context window",
			fallbackInputTokens, req.MaxTokens)
		telemetry.RecordErrorOnSpan(span, err)
		writeError(w, err)
		return
	}

	// Streaming responses run for as long as the client keeps the
	// connection open; only the non-streaming path gets a bounded deadline.
	if !req.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nonStreamDeadline)
		defer cancel()
	}

	resp, guard, err := s.client.Dispatch(ctx, cs)
	if err != nil {
		telemetry.RecordErrorOnSpan(span, err)
		writeError(w, err)
		return
	}
	defer resp.Body.Close()

	if req.Stream {
		s.streamMessages(w, ctx, resp.Body, guard, req.Model, fallbackInputTokens)
		return
	}
	s.aggregateMessages(ctx, w, resp.Body, guard, req.Model, fallbackInputTokens)
}

func (s *Server) streamMessages(w http.ResponseWriter, ctx context.Context, upstream io.ReadCloser, guard *credentials.Guard, model string, fallbackInputTokens int) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	fw := &flushWriter{w: w, flusher: flusher}
	ew := sse.NewEventWriter(fw)
	translator := anthropic.NewStreamTranslator(ew, model, fallbackInputTokens)

	events := make(chan kiro.Event)
	errs := make(chan error, 1)
	go pumpFrames(upstream, events, errs)

	if err := anthropic.Run(ctx, translator, events, errs, guard.Release); err != nil {
		gatewaylog.Warn("stream terminated with error", "err", err)
	}
}

func (s *Server) aggregateMessages(ctx context.Context, w http.ResponseWriter, upstream io.ReadCloser, guard *credentials.Guard, model string, fallbackInputTokens int) {
	defer guard.Release()

	agg := anthropic.NewNonStreamAggregator(model, fallbackInputTokens)
	events := make(chan kiro.Event)
	errs := make(chan error, 1)
	go pumpFrames(upstream, events, errs)

	for {
		select {
		case <-ctx.Done():
			gatewaylog.Warn("non-stream request deadline exceeded", "err", ctx.Err())
			writeJSON(w, http.StatusOK, agg.Finalize())
			return
		case ev, ok := <-events:
			if !ok {
				writeJSON(w, http.StatusOK, agg.Finalize())
				return
			}
			if ev.Kind == kiro.EventTerminal {
				writeJSON(w, http.StatusOK, agg.Finalize())
				return
			}
			agg.HandleEvent(ev)
		case err := <-errs:
			if err != nil {
				gatewaylog.Warn("upstream stream error", "err", err)
			}
			writeJSON(w, http.StatusOK, agg.Finalize())
			return
		}
	}
}

// pumpFrames reads upstream's framed byte stream, decodes it, and forwards
// parsed Events on events; it closes events when the body is exhausted and
// sends at most one terminal error on errs.
func pumpFrames(body io.ReadCloser, events chan<- kiro.Event, errs chan<- error) {
	defer close(events)
	decoder := kiro.NewFrameDecoder()
	buf := make([]byte, 32*1024)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			frames, frameErrs := decoder.Feed(buf[:n])
			for _, fe := range frameErrs {
				if fe == kiro.ErrBufferOverflow {
					errs <- fe
					return
				}
				gatewaylog.Warn("malformed upstream frame", "err", fe)
			}
			for _, f := range frames {
				ev, perr := kiro.ParseEvent(kiro.ExtractEventType(f.Headers), f.Payload)
				if perr != nil {
					gatewaylog.Warn("failed to parse upstream event", "err", perr)
					continue
				}
				events <- ev
			}
		}
		if err != nil {
			if err != io.EOF {
				errs <- err
			}
			return
		}
	}
}

func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	var req anthropic.CountTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.NewInvalidRequest("malformed JSON body: %v", err))
		return
	}

	asReq := &anthropic.Request{
		Model:    req.Model,
		System:   req.System,
		Messages: req.Messages,
		Tools:    req.Tools,
	}
	cs, err := anthropic.Translate(asReq)
	if err != nil {
		writeError(w, err)
		return
	}

	tokens := anthropic.EstimateInputTokens(cs)
	if tokens < 1 {
		tokens = 1
	}
	writeJSON(w, http.StatusOK, map[string]int{"input_tokens": tokens})
}

type messageSize struct {
	index int
	bytes int
}

// logBodySizeDiagnostics warns at 1 MB and 1.5 MB, and at 2 MB logs the
// five largest top-level messages by serialized size. Diagnostic only:
// the request still proceeds, since the upstream is the rejection authority.
func logBodySizeDiagnostics(body []byte) {
	n := len(body)
	switch {
	case n >= bodyDiagBytes:
		var probe struct {
			Messages []json.RawMessage `json:"messages"`
		}
		var sizes []messageSize
		if err := json.Unmarshal(body, &probe); err == nil {
			for i, m := range probe.Messages {
				sizes = append(sizes, messageSize{index: i, bytes: len(m)})
			}
			sort.Slice(sizes, func(i, j int) bool { return sizes[i].bytes > sizes[j].bytes })
			if len(sizes) > 5 {
				sizes = sizes[:5]
			}
		}
		gatewaylog.Warn("request body exceeds 2MB diagnostic threshold", "bytes", n, "largest_messages", sizes)
	case n >= bodyWarnBytes2:
		gatewaylog.Warn("request body exceeds 1.5MB", "bytes", n)
	case n >= bodyWarnBytes1:
		gatewaylog.Warn("request body exceeds 1MB", "bytes", n)
	}
}
