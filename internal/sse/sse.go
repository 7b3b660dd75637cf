// Package sse renders types.Event values onto a gin ResponseWriter as
// Server-Sent Events, matching spec.md §6.2's wire protocol. The
// flush-per-event idiom is grounded on the teacher's streaming handlers,
// which write directly to http.Flusher rather than buffering a response.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/weknora-chat/ragstream/internal/types"
)

// Writer renders Events onto an http.ResponseWriter as SSE frames.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// New wraps w, setting the headers spec.md §6.2 requires. Panics if w does
// not implement http.Flusher, which would indicate a misconfigured server
// (e.g. response buffering middleware ahead of this handler).
func New(w http.ResponseWriter) *Writer {
	flusher, ok := w.(http.Flusher)
	if !ok {
		panic("sse: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: flusher}
}

// wireEvent is the JSON payload shape for each event kind, spec.md §6.2.
// Field names follow §6.2's table literally: `uuid` for message identifiers,
// `message`/`kind` for the error payload.
type wireEvent struct {
	Content     string              `json:"content,omitempty"`
	SessionID   string              `json:"session_id,omitempty"`
	SessionName string              `json:"session_name,omitempty"`
	UUID        string              `json:"uuid,omitempty"`
	Documents   []types.DocumentRef `json:"documents,omitempty"`
	Message     string              `json:"message,omitempty"`
	Kind        string              `json:"kind,omitempty"`
	DisplayType string              `json:"display_type,omitempty"`
}

// Write renders one event as `event: <kind>\ndata: <json>\n\n` and flushes
// immediately. json.Marshal already escapes embedded newlines inside string
// fields (spec.md §6.2 "a single data: line per event"), so no additional
// line-folding is required.
func (s *Writer) Write(ev types.Event) error {
	payload := wireEvent{
		Content:     ev.Content,
		SessionID:   ev.SessionID,
		SessionName: ev.SessionName,
		UUID:        ev.MessageUUID,
		Documents:   ev.Documents,
		Message:     ev.ErrorMessage,
		Kind:        ev.ErrorKind,
		DisplayType: ev.DisplayType,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Kind, buf); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteComment writes an SSE comment line, used as a keep-alive heartbeat
// against idle-timeout proxies (spec.md §6.2 "Design Notes").
func (s *Writer) WriteComment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
