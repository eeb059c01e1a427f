// Package task is the staff triage queue. Every task is one row in a single
// table, tagged with its variant type; the base state machine is
// open → resolved (terminal) with an orthogonal defer date that hides open
// tasks from the default queue view. Tasks are never deleted: the queue
// doubles as the append-only audit trail of staff actions.
package task

import (
	"context"
	"errors"
	"time"
)

// Type tags a task variant. The set is closed; retired types remain so
// historical rows stay listable.
type Type string

const (
	TypeOrphan       Type = "orphan"
	TypeSnailMail    Type = "snail_mail"
	TypeReviewAgency Type = "review_agency"
	TypeFlagged      Type = "flagged"
	TypeNewAgency    Type = "new_agency"
	TypeResponse     Type = "response"
	TypeStatusChange Type = "status_change"
	TypeCrowdfund    Type = "crowdfund"
	TypeMultiRequest Type = "multirequest"
	TypePortal       Type = "portal"

	// Retired types. Kept for historical rows; new code never creates them,
	// except stale-agency resolution which still clears the agency flag.
	TypeStaleAgency   Type = "stale_agency"
	TypeFailedFax     Type = "failed_fax"
	TypeRejectedEmail Type = "rejected_email"
	TypeGeneric       Type = "generic"
)

// Orphan reasons.
const (
	ReasonBadSender       = "bs"
	ReasonIncomingBlocked = "ib"
	ReasonInvalidAddress  = "ia"
)

// Snail-mail and portal categories (single-letter, matching historical data).
const (
	CategoryAppeal   = "a"
	CategoryNew      = "n"
	CategoryUpdate   = "u"
	CategoryFollowup = "f"
	CategoryPayment  = "p"
	CategoryIncoming = "i" // portal only
)

// ErrAlreadyResolved is returned when resolving or deferring a task that is
// no longer open. Re-resolving is a caller error, not a silent no-op.
var ErrAlreadyResolved = errors.New("task is already resolved")

// Task is one triage work item. Only the fields matching the variant type
// are populated; the rest stay zero.
type Task struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	CreatedAt     time.Time      `json:"created_at"`
	Resolved      bool           `json:"resolved"`
	ResolvedBy    string         `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	DeferredUntil *time.Time     `json:"deferred_until,omitempty"`
	Assigned      string         `json:"assigned,omitempty"`
	FormData      map[string]any `json:"form_data,omitempty"`

	// Variant references. Each variant sets exactly one primary ref.
	CommunicationID string `json:"communication_id,omitempty"`
	FOIAID          string `json:"foia_id,omitempty"`
	AgencyID        string `json:"agency_id,omitempty"`
	JurisdictionID  string `json:"jurisdiction_id,omitempty"`
	ComposerID      string `json:"composer_id,omitempty"`
	CrowdfundID     string `json:"crowdfund_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`

	// Variant fields.
	Reason            string `json:"reason,omitempty"`             // orphan
	Category          string `json:"category,omitempty"`           // snail-mail, portal, flagged
	Address           string `json:"address,omitempty"`            // orphan sender
	PredictedStatus   string `json:"predicted_status,omitempty"`   // response
	StatusProbability int    `json:"status_probability,omitempty"` // response
	CreatedFromOrphan bool   `json:"created_from_orphan,omitempty"`
	OldStatus         string `json:"old_status,omitempty"` // status-change
	Note              string `json:"note,omitempty"`       // flagged text, generic body
}

// Filter selects tasks for queue views.
type Filter struct {
	Type     Type
	Resolved *bool
	// ShowDeferred includes open tasks whose defer date is still in the
	// future. The default queue view hides them.
	ShowDeferred bool
	Limit        int
}

// Store is the contract for task persistence.
type Store interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	// Resolve transitions open → resolved, recording actor, timestamp and
	// optional form payload. Returns ErrAlreadyResolved if the task is not
	// open.
	Resolve(ctx context.Context, id, actor string, formData map[string]any) (*Task, error)
	// Defer hides an open task from the default queue until the given date.
	// Returns ErrAlreadyResolved if the task is not open.
	Defer(ctx context.Context, id string, until time.Time) (*Task, error)
	Assign(ctx context.Context, id, userID string) (*Task, error)
	List(ctx context.Context, f Filter) ([]Task, error)
	// OpenOrphansByDomain returns open orphan tasks whose sender address
	// belongs to the domain.
	OpenOrphansByDomain(ctx context.Context, domain string) ([]Task, error)
	OpenCountsByType(ctx context.Context) (map[Type]int, error)
	EnsureTable(ctx context.Context) error
}
