package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// sseWriter wraps an http.ResponseWriter with SSE event writing and client
// disconnect detection, kept in spirit from the teacher's sse.go (same
// headers, same Send/Flush shape) but carrying spec.md §6's outbound
// progress envelope instead of the teacher's thought/plan/done events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
}

// newSSEWriter prepares SSE headers and returns a writer, or nil if
// streaming is not supported by the underlying ResponseWriter.
func newSSEWriter(w http.ResponseWriter, r *http.Request) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &sseWriter{w: w, flusher: flusher, ctx: r.Context()}
}

// Send writes one SSE event. Returns false if the client has disconnected.
func (s *sseWriter) Send(event string, data interface{}) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		log.Printf("[SSE] JSON marshal error: %v", err)
		return false
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, string(jsonBytes)); err != nil {
		log.Printf("[SSE] write error (client disconnected?): %v", err)
		return false
	}
	s.flusher.Flush()
	return true
}

// Done reports whether the client's request context has been cancelled.
func (s *sseWriter) Done() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}
