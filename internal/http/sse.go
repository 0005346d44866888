package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gastos/internal/events"
	applog "gastos/internal/log"
)

const sseBuffer = 32

// handleEvents streams the caller's store events as server-sent events. A
// client that falls behind by more than sseBuffer events loses the oldest
// ones rather than blocking publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalServerError("streaming unsupported").Write(w)
		return
	}
	if s.deps.Bus == nil {
		ErrorResponse(http.StatusServiceUnavailable, "event stream unavailable").Write(w)
		return
	}

	user := sessionUser(r)
	ch := make(chan events.Event, sseBuffer)
	unsubscribe := s.deps.Bus.SubscribeAll(func(e events.Event) {
		if events.UserOf(e) != user.ID {
			return
		}
		select {
		case ch <- e:
		default:
			applog.FromContext(r.Context()).Debug("Dropping event for slow SSE client", "event", e.Name())
		}
	})
	defer unsubscribe()

	if s.deps.Metrics != nil {
		s.deps.Metrics.SSEClients.Inc()
		defer s.deps.Metrics.SSEClients.Dec()
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(s.deps.SSEKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e := <-ch:
			data, err := json.Marshal(e)
			if err != nil {
				applog.FromContext(r.Context()).Error("Failed to encode event", "event", e.Name(), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name(), data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
