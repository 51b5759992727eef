package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"docbrain/internal/chat"
)

// sseEvent is one line of the chat stream. Type is "sources", "token",
// "done", or "error".
type sseEvent struct {
	Type    string        `json:"type"`
	Token   string        `json:"token,omitempty"`
	Sources []chat.Source `json:"sources,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev sseEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleChatStream answers over server-sent events. Sources are sent first,
// then tokens as the provider produces them, then a terminal done event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	req, err := s.decodeChatRequest(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_, err = s.chatSvc.AskStream(r.Context(), req,
		func(sources []chat.Source) error {
			return writeSSE(w, flusher, sseEvent{Type: "sources", Sources: sources})
		},
		func(token string) error {
			return writeSSE(w, flusher, sseEvent{Type: "token", Token: token})
		})
	if err != nil {
		_ = writeSSE(w, flusher, sseEvent{Type: "error", Error: toAPIError(http.StatusBadGateway, err).Message})
		return
	}
	_ = writeSSE(w, flusher, sseEvent{Type: "done"})
}
