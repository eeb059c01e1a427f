package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"openrecords/pkg/task"
	"openrecords/pkg/triage"
)

func (s *Server) handleRequestList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryInt(r, "limit", 50)
	requests, err := s.foias.List(r.Context(), status, limit)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, requests)
}

// handleRequestCreate files a new request against one agency. The whole
// sequence runs in one transaction; an interrupted filing leaves no
// composer, request or consumed quota behind.
func (s *Server) handleRequestCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID            string `json:"user_id"`
		AgencyID          string `json:"agency_id"`
		Title             string `json:"title"`
		RequestedDocs     string `json:"requested_docs"`
		EditedBoilerplate bool   `json:"edited_boilerplate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.UserID == "" || req.AgencyID == "" || req.Title == "" || req.RequestedDocs == "" {
		writeError(w, 400, "user_id, agency_id, title and requested_docs are required")
		return
	}

	fr, err := s.triage.FileRequest(r.Context(), triage.FileRequestInput{
		UserID:            req.UserID,
		AgencyID:          req.AgencyID,
		Title:             req.Title,
		RequestedDocs:     req.RequestedDocs,
		EditedBoilerplate: req.EditedBoilerplate,
	})
	if err != nil {
		if errors.Is(err, triage.ErrNoQuota) {
			writeError(w, 402, err.Error())
			return
		}
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 201, fr)
}

// handleRequestStatus records a status the requester set themselves and
// files a status-change task for staff review.
func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.Status == "" || req.Actor == "" {
		writeError(w, 400, "status and actor are required")
		return
	}
	t, err := s.triage.ChangeStatus(r.Context(), r.PathValue("id"), req.Status, req.Actor)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	writeJSON(w, 201, t)
}

func (s *Server) handleRequestGet(w http.ResponseWriter, r *http.Request) {
	req, err := s.foias.GetRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, 404, err.Error())
		return
	}
	writeJSON(w, 200, req)
}

func (s *Server) handleRequestComms(w http.ResponseWriter, r *http.Request) {
	cs, err := s.comms.ByFOIA(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, cs)
}

// handleRequestFlag files a flagged task against the request.
func (s *Server) handleRequestFlag(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		UserID string `json:"user_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, 400, "text is required")
		return
	}
	if _, err := s.foias.GetRequest(r.Context(), id); err != nil {
		writeError(w, 404, err.Error())
		return
	}
	t, err := s.tasks.Create(r.Context(), &task.Task{
		Type:   task.TypeFlagged,
		FOIAID: id,
		UserID: req.UserID,
		Note:   req.Text,
	})
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 201, t)
}

func (s *Server) handleAgencyList(w http.ResponseWriter, r *http.Request) {
	agencies, err := s.agencies.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, agencies)
}

func (s *Server) handleAgencyGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.agencies.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, 404, err.Error())
		return
	}
	writeJSON(w, 200, a)
}

// handleBlacklist records a domain and resolves its open orphans, same as
// rejecting one of them with the blacklist flag.
func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.Domain == "" {
		writeError(w, 400, "domain is required")
		return
	}

	ctx := r.Context()
	bl, err := s.comms.Blacklist(ctx, req.Domain)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	orphans, err := s.tasks.OpenOrphansByDomain(ctx, req.Domain)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	for _, o := range orphans {
		if _, err := s.tasks.Resolve(ctx, o.ID, req.Actor, nil); err != nil {
			writeError(w, 500, err.Error())
			return
		}
	}
	writeJSON(w, 200, map[string]any{
		"blacklisted": bl.Domain,
		"resolved":    len(orphans),
	})
}
