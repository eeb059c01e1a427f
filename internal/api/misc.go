package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"openrecords/pkg/account"
	"openrecords/pkg/crowdfund"
)

func (s *Server) handleCrowdfundGet(w http.ResponseWriter, r *http.Request) {
	cf, err := s.crowdfunds.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, 404, err.Error())
		return
	}
	writeJSON(w, 200, cf)
}

func (s *Server) handleCrowdfundContribute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		UserID      string `json:"user_id"`
		Token       string `json:"token"`
		AmountCents int    `json:"amount_cents"`
		Anonymous   bool   `json:"anonymous"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}

	cf, err := s.crowdfunds.Contribute(r.Context(), id, req.UserID, req.Token, req.AmountCents, req.Anonymous)
	switch {
	case errors.Is(err, account.ErrCardDeclined):
		writeError(w, 402, err.Error())
	case errors.Is(err, crowdfund.ErrClosed):
		writeError(w, 409, err.Error())
	case err != nil:
		writeError(w, 500, err.Error())
	default:
		writeJSON(w, 200, cf)
	}
}

func (s *Server) handleArticleList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("drafts") == "true" {
		drafts, err := s.articles.Drafts(r.Context())
		if err != nil {
			writeError(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, drafts)
		return
	}
	articles, err := s.articles.Published(r.Context(), time.Now(), queryInt(r, "limit", 25))
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, articles)
}

func (s *Server) handleArticleGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.articles.BySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, 404, err.Error())
		return
	}
	writeJSON(w, 200, a)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	openTasks, _ := s.tasks.OpenCountsByType(ctx)
	var pendingJobs, notifications int
	if s.jobs != nil {
		pendingJobs, _ = s.jobs.PendingCount(ctx)
	}
	if s.notifications != nil {
		notifications, _ = s.notifications.Count(ctx)
	}

	total := 0
	for _, n := range openTasks {
		total += n
	}
	writeJSON(w, 200, map[string]any{
		"open_tasks":    total,
		"open_by_type":  openTasks,
		"pending_jobs":  pendingJobs,
		"notifications": notifications,
	})
}
