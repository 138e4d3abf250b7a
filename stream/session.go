// Package stream implements the Streaming Manager (C9, spec.md §4.9): the
// SSE session state machine that drains a provider's token stream onto an
// http.ResponseWriter with heartbeats and a hard duration cap.
//
// Grounded directly on api/handlers/chat.go's HandleStream — the SSE
// headers, http.Flusher requirement, and per-chunk "data: "+json+"\n\n"
// framing are kept verbatim in shape. The heartbeat timer and duration
// cap are new, driven from the same goroutine that drains the provider
// channel via a three-way select, mirroring the select-based
// cancellation idiom already used for circuit-breaker calls.
package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/llmclient"
)

// HeartbeatInterval is the wall-clock gap that triggers a heartbeat event
// when no content chunk has been emitted (spec.md §4.9). Variable rather
// than const so tests can shrink it instead of waiting out real time.
var HeartbeatInterval = 5 * time.Second

// DurationCap is the hard per-session limit (spec.md §4.9).
var DurationCap = 60 * time.Second

// State is the Stream Session state machine (spec.md §4.9:
// "opening → streaming → {completed, errored, timed_out}").
type State string

const (
	StateOpening   State = "opening"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateErrored   State = "errored"
	StateTimedOut  State = "timed_out"
)

// Event is one SSE record (spec.md §4.9: "each a single JSON record with
// type and trace_id").
type Event struct {
	Type      string `json:"type"`
	TraceID   string `json:"trace_id"`

	// content_chunk fields.
	Delta      string   `json:"delta,omitempty"`
	Citations  []string `json:"citation_markers,omitempty"`

	// heartbeat fields.
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`
	State     State `json:"state,omitempty"`

	// complete fields.
	CitationsCount int    `json:"citations_count,omitempty"`
	PromptTokens   int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int  `json:"completion_tokens,omitempty"`
	ProviderID     string `json:"provider_id,omitempty"`
	ModelID        string `json:"model_id,omitempty"`

	// error fields.
	ErrorKind string `json:"error_kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Sink writes one framed SSE event and flushes it. Implementations must
// be safe to call only from the session's single draining goroutine —
// Session never calls Sink concurrently.
type Sink interface {
	Send(Event) error
}

// httpSink is the Sink used by the Gateway's real HTTP handler.
type httpSink struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewHTTPSink adapts an http.ResponseWriter into a Sink, writing the SSE
// headers api/handlers/chat.go's HandleStream uses. Returns an error if
// the writer does not support flushing.
func NewHTTPSink(w http.ResponseWriter) (Sink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoFlusher
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &httpSink{w: w, f: f}, nil
}

func (s *httpSink) Send(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

var errNoFlusher = sinkError("stream: response writer does not support flushing")

type sinkError string

func (e sinkError) Error() string { return string(e) }

// Session drives one SSE stream from opening to a terminal state.
type Session struct {
	traceID string
	sink    Sink
	logger  *zap.Logger
}

// New creates a Session bound to sink, emitting events tagged with
// traceID.
func New(traceID string, sink Sink, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{traceID: traceID, sink: sink, logger: logger.With(zap.String("component", "streaming_manager"), zap.String("trace_id", traceID))}
}

// Summary describes how a Run ended, for the Gateway's access log.
type Summary struct {
	FinalState State
	Citations  int
	Err        error
}

// Run drains chunks until the channel closes, the caller's context is
// canceled, or DurationCap elapses — whichever comes first — emitting
// heartbeat events on any HeartbeatInterval gap with no content chunk.
// meta supplies the fields the terminal complete event carries.
func (s *Session) Run(chunks <-chan llmclient.Chunk, cancel func(), meta CompleteMeta) Summary {
	start := time.Now()
	deadline := time.NewTimer(DurationCap)
	defer deadline.Stop()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	citations := 0
	state := StateOpening
	s.transition(state)
	state = StateStreaming
	s.transition(state)

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				s.sendComplete(meta, citations)
				return Summary{FinalState: StateCompleted, Citations: citations}
			}
			heartbeat.Reset(HeartbeatInterval)

			if chunk.Err != nil {
				cancel()
				s.sendError("upstream_error", true)
				return Summary{FinalState: StateErrored, Citations: citations, Err: chunk.Err}
			}

			citations += countCitationMarkers(chunk.Delta)
			if err := s.sink.Send(Event{Type: "content_chunk", TraceID: s.traceID, Delta: chunk.Delta}); err != nil {
				cancel()
				return Summary{FinalState: StateErrored, Citations: citations, Err: err}
			}

			if chunk.FinishReason != "" {
				s.sendComplete(meta, citations)
				return Summary{FinalState: StateCompleted, Citations: citations}
			}

		case <-heartbeat.C:
			elapsed := time.Since(start).Milliseconds()
			if err := s.sink.Send(Event{Type: "heartbeat", TraceID: s.traceID, ElapsedMS: elapsed, State: StateStreaming}); err != nil {
				cancel()
				return Summary{FinalState: StateErrored, Citations: citations, Err: err}
			}

		case <-deadline.C:
			cancel()
			s.sink.Send(Event{Type: "error", TraceID: s.traceID, ErrorKind: "timed_out", Retryable: true})
			return Summary{FinalState: StateTimedOut, Citations: citations}
		}
	}
}

// CompleteMeta carries the fields the terminal complete event reports
// (spec.md §4.9).
type CompleteMeta struct {
	ProviderID       string
	ModelID          string
	PromptTokens     int
	CompletionTokens int
}

func (s *Session) sendComplete(meta CompleteMeta, citations int) {
	s.sink.Send(Event{
		Type:             "complete",
		TraceID:          s.traceID,
		CitationsCount:   citations,
		PromptTokens:     meta.PromptTokens,
		CompletionTokens: meta.CompletionTokens,
		ProviderID:       meta.ProviderID,
		ModelID:          meta.ModelID,
	})
	s.transition(StateCompleted)
}

func (s *Session) sendError(kind string, retryable bool) {
	s.sink.Send(Event{Type: "error", TraceID: s.traceID, ErrorKind: kind, Retryable: retryable})
	s.transition(StateErrored)
}

func (s *Session) transition(state State) {
	s.logger.Debug("session state transition", zap.String("state", string(state)))
}

// countCitationMarkers counts partial citation markers of the form
// "[n]" a content chunk may carry (spec.md §4.9: "may carry partial
// citation markers").
func countCitationMarkers(delta string) int {
	count := 0
	for i := 0; i < len(delta); i++ {
		if delta[i] == '[' {
			for j := i + 1; j < len(delta) && j < i+4; j++ {
				if delta[j] == ']' {
					count++
					break
				}
				if delta[j] < '0' || delta[j] > '9' {
					break
				}
			}
		}
	}
	return count
}
