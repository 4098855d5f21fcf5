package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/flowcraft/internal/streaming"
)

// keepAliveInterval is how often idle SSE streams receive a comment line.
const keepAliveInterval = 15 * time.Second

func (s *Server) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	filter := streaming.EventFilter{FlowchartID: r.URL.Query().Get("flowchart_id")}
	if types := r.URL.Query().Get("types"); types != "" {
		filter.EventTypes = strings.Split(types, ",")
	}
	s.serveSSE(w, r, filter)
}

func (s *Server) handleSSESimulation(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if _, err := s.deps.Sessions.Get(sid); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	s.serveSSE(w, r, streaming.EventFilter{SessionID: sid})
}

func (s *Server) handleSSEFlowchart(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{FlowchartID: r.PathValue("id")})
}

func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, unsub, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventType, data)
			flusher.Flush()
		}
	}
}
