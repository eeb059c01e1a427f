package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"openrecords/pkg/task"
	"openrecords/pkg/triage"
)

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	f := task.Filter{
		Type:         task.Type(r.URL.Query().Get("type")),
		ShowDeferred: r.URL.Query().Get("deferred") == "true",
		Limit:        queryInt(r, "limit", 50),
	}
	if v := r.URL.Query().Get("resolved"); v != "" {
		resolved := v == "true"
		f.Resolved = &resolved
	}
	tasks, err := s.tasks.List(r.Context(), f)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.tasks.OpenCountsByType(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, counts)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, 404, err.Error())
		return
	}
	writeJSON(w, 200, t)
}

// resolveRequest is the typed action payload. Action selects which variant
// operation runs; the other fields feed that operation.
type resolveRequest struct {
	Action      string         `json:"action"` // resolve, move, reject, spam, approve, set_status, submit, reply, update_contact, update_text, record_check
	Actor       string         `json:"actor"`
	FormData    map[string]any `json:"form_data,omitempty"`
	FOIAIDs     []string       `json:"foia_ids,omitempty"`
	Blacklist   bool           `json:"blacklist,omitempty"`
	Replacement string         `json:"replacement_agency_id,omitempty"`
	Status      string         `json:"status,omitempty"`
	AgencyIDs   []string       `json:"agency_ids,omitempty"`
	Text        string         `json:"text,omitempty"`
	ContactKind string         `json:"contact_kind,omitempty"`
	ContactID   string         `json:"contact_id,omitempty"`
	UpdateInfo  bool           `json:"update_info,omitempty"`
	CheckNumber int            `json:"check_number,omitempty"`
	AmountCents int            `json:"amount_cents,omitempty"`
}

func (s *Server) handleTaskResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.Actor == "" {
		writeError(w, 400, "actor is required")
		return
	}

	ctx := r.Context()
	var err error
	switch req.Action {
	case "", "resolve":
		_, err = s.triage.Resolve(ctx, id, req.Actor, req.FormData)
	case "move":
		_, err = s.triage.MoveOrphan(ctx, id, req.FOIAIDs, req.Actor)
	case "reject":
		err = s.rejectByType(ctx, id, req)
	case "spam":
		err = s.triage.SpamAgency(ctx, id, req.Actor)
	case "approve":
		err = s.triage.ApproveAgency(ctx, id, req.Actor)
	case "set_status":
		_, err = s.triage.SetStatus(ctx, id, req.Status, req.Actor)
	case "submit":
		err = s.triage.SubmitMulti(ctx, id, req.AgencyIDs, req.Actor)
	case "reply":
		err = s.triage.ReplyFlagged(ctx, id, req.Actor, req.Text)
	case "update_contact":
		err = s.triage.UpdateContact(ctx, id, req.ContactKind, req.ContactID, req.FOIAIDs, req.UpdateInfo)
	case "update_text":
		err = s.triage.UpdateText(ctx, id, req.Text)
	case "record_check":
		_, err = s.triage.RecordCheck(ctx, id, req.CheckNumber, req.AmountCents, req.Actor)
	case "resolve_stale":
		_, err = s.triage.ResolveStale(ctx, id, req.Actor)
	default:
		writeError(w, 400, "unknown action "+req.Action)
		return
	}

	switch {
	case errors.Is(err, task.ErrAlreadyResolved):
		writeError(w, 409, err.Error())
	case errors.Is(err, triage.ErrNoFlaggedObject):
		writeError(w, 422, err.Error())
	case err != nil:
		writeError(w, 500, err.Error())
	default:
		t, getErr := s.tasks.Get(ctx, id)
		if getErr != nil {
			writeError(w, 500, getErr.Error())
			return
		}
		writeJSON(w, 200, t)
	}
}

// rejectByType dispatches "reject" to the right variant action.
func (s *Server) rejectByType(ctx context.Context, id string, req resolveRequest) error {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	switch t.Type {
	case task.TypeOrphan:
		_, err = s.triage.RejectOrphan(ctx, id, req.Actor, req.Blacklist)
	case task.TypeNewAgency:
		err = s.triage.RejectAgency(ctx, id, req.Actor, req.Replacement)
	case task.TypeMultiRequest:
		err = s.triage.RejectMulti(ctx, id, req.Actor)
	default:
		_, err = s.triage.Resolve(ctx, id, req.Actor, req.FormData)
	}
	return err
}

func (s *Server) handleTaskDefer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Until string `json:"until"` // YYYY-MM-DD
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	until, err := time.Parse("2006-01-02", req.Until)
	if err != nil {
		writeError(w, 400, "until must be YYYY-MM-DD")
		return
	}
	t, err := s.triage.Defer(r.Context(), id, until)
	if errors.Is(err, task.ErrAlreadyResolved) {
		writeError(w, 409, err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskAssign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	t, err := s.tasks.Assign(r.Context(), id, req.UserID)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskReview(w http.ResponseWriter, r *http.Request) {
	groups, err := s.triage.ReviewData(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, groups)
}
