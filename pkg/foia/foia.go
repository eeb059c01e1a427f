// Package foia holds the request aggregate: a request owns a sequence of
// communications and carries an overall status; a composer is the draft that
// bundles one or more target agencies before submission.
package foia

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Request statuses.
const (
	StatusStarted    = "started"
	StatusSubmitted  = "submitted"
	StatusAck        = "ack"
	StatusProcessed  = "processed"
	StatusAppealing  = "appealing"
	StatusFix        = "fix"
	StatusPayment    = "payment"
	StatusRejected   = "rejected"
	StatusNoDocs     = "no_docs"
	StatusDone       = "done"
	StatusPartial    = "partial"
	StatusAbandoned  = "abandoned"
)

// Statuses is the full closed set, in display order.
var Statuses = []string{
	StatusStarted, StatusSubmitted, StatusAck, StatusProcessed,
	StatusAppealing, StatusFix, StatusPayment, StatusRejected,
	StatusNoDocs, StatusDone, StatusPartial, StatusAbandoned,
}

// OpenStatuses are the statuses where the agency still owes a response.
var OpenStatuses = []string{
	StatusAck, StatusProcessed, StatusAppealing, StatusFix, StatusPayment,
}

// ValidStatus reports whether s is a known request status.
func ValidStatus(s string) bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// statusVerbs phrases each status for the notification stream. Digests
// classify notifications by substring match on these phrases.
var statusVerbs = map[string]string{
	StatusAck:       "was acknowledged",
	StatusProcessed: "is being processed",
	StatusAppealing: "is in appeal",
	StatusFix:       "requires fix",
	StatusPayment:   "requires payment",
	StatusRejected:  "was rejected",
	StatusNoDocs:    "has no responsive documents",
	StatusDone:      "was completed",
	StatusPartial:   "was partially completed",
	StatusAbandoned: "was abandoned",
}

// StatusVerb returns the notification phrase for a status, or "" for
// statuses that produce no notification.
func StatusVerb(status string) string {
	return statusVerbs[status]
}

// Composer statuses.
const (
	ComposerStarted   = "started"
	ComposerSubmitted = "submitted"
	ComposerFiled     = "filed"
)

// Request is one filed records request against one agency.
type Request struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Slug       string     `json:"slug"`
	Status     string     `json:"status"`
	UserID     string     `json:"user_id"`
	ComposerID string     `json:"composer_id"`
	AgencyID   string     `json:"agency_id"`
	EmailID    string     `json:"email_id,omitempty"`
	FaxID      string     `json:"fax_id,omitempty"`
	AddressID  string     `json:"address_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Followup   *time.Time `json:"followup,omitempty"`
}

// ReviewRequest is a request joined with its contact values and the age of
// the most recent agency response, for the review-agency screen.
type ReviewRequest struct {
	Request
	Email              string `json:"email,omitempty"`
	EmailStatus        string `json:"email_status,omitempty"`
	Fax                string `json:"fax,omitempty"`
	FaxStatus          string `json:"fax_status,omitempty"`
	LatestResponseDays *int   `json:"latest_response_days,omitempty"`
}

// ContactUpdate rewires a request's contact columns. A nil field leaves the
// column alone; a pointer to "" clears it.
type ContactUpdate struct {
	Email   *string
	Fax     *string
	Address *string
}

// Clear is a pointer to the empty string, for ContactUpdate fields.
func Clear() *string {
	s := ""
	return &s
}

// Set returns a pointer to id, for ContactUpdate fields.
func Set(id string) *string {
	return &id
}

// Composer is a draft bundling target agencies. NumRequests is the quota the
// draft has consumed.
type Composer struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Title             string    `json:"title"`
	RequestedDocs     string    `json:"requested_docs"`
	Status            string    `json:"status"`
	EditedBoilerplate bool      `json:"edited_boilerplate"`
	NumRequests       int       `json:"num_requests"`
	CreatedAt         time.Time `json:"created_at"`
}

// Note is a staff annotation on a request.
type Note struct {
	ID       string    `json:"id"`
	FOIAID   string    `json:"foia_id"`
	Author   string    `json:"author"`
	Text     string    `json:"text"`
	Datetime time.Time `json:"datetime"`
}

// Store is the contract for request and composer persistence.
type Store interface {
	CreateRequest(ctx context.Context, r *Request) (*Request, error)
	GetRequest(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, status string, limit int) ([]Request, error)
	SetRequestStatus(ctx context.Context, id, status string) error
	// SetFollowup sets the next follow-up date; nil clears it.
	SetFollowup(ctx context.Context, id string, at *time.Time) error
	SetAgency(ctx context.Context, id, agencyID string) error
	SetContact(ctx context.Context, id string, u ContactUpdate) error
	ByAgency(ctx context.Context, agencyID string) ([]Request, error)
	// OpenByAgency returns the agency's open requests with joined contact
	// values, ordered by email status then email, for review grouping.
	OpenByAgency(ctx context.Context, agencyID string) ([]ReviewRequest, error)
	DeleteRequest(ctx context.Context, id string) error
	DeleteByAgency(ctx context.Context, agencyID string) (int, error)
	AddNote(ctx context.Context, n *Note) (*Note, error)

	CreateComposer(ctx context.Context, c *Composer, agencyIDs []string) (*Composer, error)
	GetComposer(ctx context.Context, id string) (*Composer, error)
	SetComposerStatus(ctx context.Context, id, status string) error
	ComposerAgencies(ctx context.Context, composerID string) ([]string, error)
	RemoveComposerAgency(ctx context.Context, composerID, agencyID string) error
	RequestsByComposer(ctx context.Context, composerID string) ([]Request, error)
	// ReturnRequests gives n quota units back to the composer's owner and
	// decrements the composer's consumed count.
	ReturnRequests(ctx context.Context, composerID string, n int) error

	EnsureTables(ctx context.Context) error
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify builds a URL-friendly slug from a title.
func Slugify(title string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}
