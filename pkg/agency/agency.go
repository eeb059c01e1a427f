// Package agency holds government agencies, their jurisdictions, and their
// contact assignments. An agency's "primary" email or fax is where new
// requests go by default; triage actions rewrite these assignments when an
// address goes bad.
package agency

import (
	"context"
	"time"
)

// Agency statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Agency is a government body that receives requests.
type Agency struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	JurisdictionID string    `json:"jurisdiction_id"`
	Status         string    `json:"status"`
	Stale          bool      `json:"stale"`
	PayableTo      string    `json:"payable_to,omitempty"`
	RequiresProxy  bool      `json:"requires_proxy"`
	CreatedAt      time.Time `json:"created_at"`
}

// Jurisdiction carries the legal context an agency answers to: the public
// records law's name and its response deadline.
type Jurisdiction struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Legal   string `json:"legal"`    // e.g. "Freedom of Information Act"
	Abbrev  string `json:"abbrev"`   // e.g. "FOIA"
	Days    int    `json:"days"`     // response deadline; 0 = unspecified
	DayType string `json:"day_type"` // "business" or "calendar"
}

// Store is the contract for agency persistence.
type Store interface {
	Create(ctx context.Context, a *Agency) (*Agency, error)
	Get(ctx context.Context, id string) (*Agency, error)
	List(ctx context.Context, status string) ([]Agency, error)
	SetStatus(ctx context.Context, id, status string) error
	SetStale(ctx context.Context, id string, stale bool) error

	// Primary contact management. Setting a new primary clears conflicting
	// primaries first, so an agency never carries two defaults per channel.
	ClearPrimaryEmails(ctx context.Context, agencyID string) error
	ClearPrimaryFaxes(ctx context.Context, agencyID string) error
	SetPrimaryEmail(ctx context.Context, agencyID, emailID string) error
	SetPrimaryFax(ctx context.Context, agencyID, phoneID string) error
	// PrimaryEmail returns the agency's default destination email ID, or ""
	// when it has none.
	PrimaryEmail(ctx context.Context, agencyID string) (string, error)
	// MailingAddress returns the agency's first mailing address ID, or ""
	// when it has none.
	MailingAddress(ctx context.Context, agencyID string) (string, error)

	CreateJurisdiction(ctx context.Context, j *Jurisdiction) (*Jurisdiction, error)
	GetJurisdiction(ctx context.Context, id string) (*Jurisdiction, error)

	EnsureTables(ctx context.Context) error
}
