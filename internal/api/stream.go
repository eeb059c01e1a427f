package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleNotificationStream pushes new notifications to the client as
// server-sent events until it disconnects. An optional user_id query
// parameter narrows the stream to one recipient.
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		writeError(w, 503, "notification stream is not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, 500, "streaming unsupported")
		return
	}
	userID := r.URL.Query().Get("user_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(200)
	// Opening comment tells the client its subscription is live.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ch := s.notifications.Subscribe()
	defer s.notifications.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case n, open := <-ch:
			if !open {
				return
			}
			if userID != "" && n.UserID != userID {
				continue
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
