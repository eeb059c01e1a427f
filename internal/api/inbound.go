package api

import (
	"encoding/json"
	"net/http"

	"openrecords/pkg/triage"
)

// handleInboundEmail receives a message from the mail provider and routes
// it through triage: matched mail lands on its request's log with a
// response task, unmatched mail files an orphan unless the sender's domain
// is blacklisted.
func (s *Server) handleInboundEmail(w http.ResponseWriter, r *http.Request) {
	var in triage.InboundEmail
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if in.From == "" {
		writeError(w, 400, "from is required")
		return
	}
	c, t, err := s.triage.ReceiveEmail(r.Context(), in)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if c == nil {
		// Blacklisted sender; the message was dropped.
		writeJSON(w, 200, map[string]any{"dropped": true})
		return
	}
	writeJSON(w, 201, map[string]any{
		"communication": c,
		"task":          t,
	})
}

// handleInboundDelivery receives bounce/open/confirm callbacks from the
// delivery providers.
func (s *Server) handleInboundDelivery(w http.ResponseWriter, r *http.Request) {
	var n triage.DeliveryNotice
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if n.Kind == "" || (n.Email == "" && n.Fax == "") {
		writeError(w, 400, "kind and an email or fax address are required")
		return
	}
	if err := s.triage.RecordDelivery(r.Context(), n); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	writeJSON(w, 200, map[string]any{"recorded": n.Kind})
}
