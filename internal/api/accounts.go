package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"openrecords/pkg/account"
)

// signupQuota is how many requests a fresh account starts with.
const signupQuota = 4

// handleRegister creates an account from a name and email. The welcome
// email goes out through the job queue.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName   string `json:"full_name"`
		Email      string `json:"email"`
		Newsletter bool   `json:"newsletter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.FullName == "" || req.Email == "" {
		writeError(w, 400, "full_name and email are required")
		return
	}
	user, err := account.MiniRegister(r.Context(), s.users, s.jobs, req.FullName, req.Email, signupQuota)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if req.Newsletter && s.mailingList != nil {
		if err := s.mailingList.Subscribe(r.Context(), req.Email); err != nil &&
			!errors.Is(err, account.ErrMemberExists) {
			// Registration already succeeded; the subscription is best effort.
			writeJSON(w, 201, map[string]any{"user": user, "newsletter_error": err.Error()})
			return
		}
	}
	writeJSON(w, 201, user)
}

// handleBuyRequests charges the payment token and credits quota to the
// account. A declined card is the caller's problem, not ours.
func (s *Server) handleBuyRequests(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		Count int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.Token == "" || req.Count < 1 {
		writeError(w, 400, "token and a positive count are required")
		return
	}
	user, err := account.BuyRequests(r.Context(), s.users, s.charger, r.PathValue("id"), req.Token, req.Count)
	if err != nil {
		if errors.Is(err, account.ErrCardDeclined) {
			writeError(w, 402, err.Error())
			return
		}
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, user)
}

// handleNewsletter subscribes an address to the mailing list. An address
// already on the list is fine.
func (s *Server) handleNewsletter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, 400, "email is required")
		return
	}
	if s.mailingList == nil {
		writeError(w, 503, "mailing list is not configured")
		return
	}
	err := s.mailingList.Subscribe(r.Context(), req.Email)
	switch {
	case err == nil:
		writeJSON(w, 200, map[string]any{"subscribed": req.Email})
	case errors.Is(err, account.ErrMemberExists):
		writeJSON(w, 200, map[string]any{"subscribed": req.Email, "already_member": true})
	default:
		writeError(w, 502, err.Error())
	}
}
