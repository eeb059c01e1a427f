package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/agency"
	"openrecords/pkg/comms"
	"openrecords/pkg/crowdfund"
	"openrecords/pkg/foia"
	"openrecords/pkg/jobs"
	"openrecords/pkg/news"
	"openrecords/pkg/task"
	"openrecords/pkg/triage"
)

// Deps wires the API server to the rest of the system.
type Deps struct {
	Tasks         task.Store
	FOIAs         foia.Store
	Agencies      agency.Store
	Comms         comms.Store
	Users         account.Store
	Articles      news.Store
	Notifications *activity.Bus
	Crowdfunds    *crowdfund.Service
	Triage        *triage.Service
	Jobs          jobs.Store
	Charger       account.Charger
	MailingList   account.MailingList
}

// Server is the HTTP API server.
type Server struct {
	tasks         task.Store
	foias         foia.Store
	agencies      agency.Store
	comms         comms.Store
	users         account.Store
	articles      news.Store
	notifications *activity.Bus
	crowdfunds    *crowdfund.Service
	triage        *triage.Service
	jobs          jobs.Store
	charger       account.Charger
	mailingList   account.MailingList
	mux           *http.ServeMux
}

// New creates a new Server.
func New(d Deps) *Server {
	s := &Server{
		tasks:         d.Tasks,
		foias:         d.FOIAs,
		agencies:      d.Agencies,
		comms:         d.Comms,
		users:         d.Users,
		articles:      d.Articles,
		notifications: d.Notifications,
		crowdfunds:    d.Crowdfunds,
		triage:        d.Triage,
		jobs:          d.Jobs,
		charger:       d.Charger,
		mailingList:   d.MailingList,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Tasks and triage
	s.mux.HandleFunc("GET /api/tasks", s.handleTaskList)
	s.mux.HandleFunc("GET /api/tasks/counts", s.handleTaskCounts)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskGet)
	s.mux.HandleFunc("POST /api/tasks/{id}/resolve", s.handleTaskResolve)
	s.mux.HandleFunc("POST /api/tasks/{id}/defer", s.handleTaskDefer)
	s.mux.HandleFunc("POST /api/tasks/{id}/assign", s.handleTaskAssign)
	s.mux.HandleFunc("GET /api/tasks/{id}/review", s.handleTaskReview)

	// Inbound events
	s.mux.HandleFunc("POST /api/inbound/email", s.handleInboundEmail)
	s.mux.HandleFunc("POST /api/inbound/delivery", s.handleInboundDelivery)

	// Requests
	s.mux.HandleFunc("GET /api/requests", s.handleRequestList)
	s.mux.HandleFunc("POST /api/requests", s.handleRequestCreate)
	s.mux.HandleFunc("GET /api/requests/{id}", s.handleRequestGet)
	s.mux.HandleFunc("GET /api/requests/{id}/communications", s.handleRequestComms)
	s.mux.HandleFunc("POST /api/requests/{id}/flag", s.handleRequestFlag)
	s.mux.HandleFunc("POST /api/requests/{id}/status", s.handleRequestStatus)

	// Agencies
	s.mux.HandleFunc("GET /api/agencies", s.handleAgencyList)
	s.mux.HandleFunc("GET /api/agencies/{id}", s.handleAgencyGet)

	// Blacklist
	s.mux.HandleFunc("POST /api/blacklist", s.handleBlacklist)

	// Accounts
	s.mux.HandleFunc("POST /api/accounts", s.handleRegister)
	s.mux.HandleFunc("POST /api/accounts/{id}/buy-requests", s.handleBuyRequests)
	s.mux.HandleFunc("POST /api/newsletter", s.handleNewsletter)

	// Crowdfunds
	s.mux.HandleFunc("GET /api/crowdfunds/{id}", s.handleCrowdfundGet)
	s.mux.HandleFunc("POST /api/crowdfunds/{id}/contribute", s.handleCrowdfundContribute)

	// News
	s.mux.HandleFunc("GET /api/articles", s.handleArticleList)
	s.mux.HandleFunc("GET /api/articles/{slug}", s.handleArticleGet)

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/notifications/stream", s.handleNotificationStream)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
