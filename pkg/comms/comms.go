// Package comms is the communication log and the address directory. Every
// inbound and outbound message is a Communication row tagged with its delivery
// channel; email addresses and fax numbers carry a health status derived from
// their most recent delivery events.
package comms

import (
	"context"
	"strings"
	"time"
)

// Delivery channels.
const (
	ChannelEmail  = "email"
	ChannelFax    = "fax"
	ChannelMail   = "mail"
	ChannelWeb    = "web"
	ChannelPortal = "portal"
)

// Address health statuses. Status follows the most recent delivery event:
// an error marks the address bad, an open or confirmation marks it good.
const (
	AddrUnconfirmed = "unconfirmed"
	AddrGood        = "good"
	AddrError       = "error"
)

// Delivery event kinds.
const (
	EventError   = "error"
	EventOpen    = "open"
	EventConfirm = "confirm"
)

// EmailAddress is a normalized email record shared across requests.
type EmailAddress struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

// Domain returns the part after the @, lowercased.
func (e *EmailAddress) Domain() string {
	return Domain(e.Email)
}

// Domain extracts the domain of an email address, lowercased. Returns ""
// when the input has no @.
func Domain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}

// PhoneNumber is a normalized phone or fax record.
type PhoneNumber struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Type   string `json:"type"` // "fax" or "phone"
	Status string `json:"status"`
}

// Address is a mailing address.
type Address struct {
	ID      string `json:"id"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// Communication is one message on a request's log. Immutable once delivered
// except for staff corrections (body edit, status override).
type Communication struct {
	ID          string    `json:"id"`
	FOIAID      string    `json:"foia_id"`
	Channel     string    `json:"channel"`
	Response    bool      `json:"response"` // true = inbound from the agency
	Datetime    time.Time `json:"datetime"`
	From        string    `json:"from"`
	To          string    `json:"to,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Body        string    `json:"body"`
	Status      string    `json:"status,omitempty"`
	Delivered   string    `json:"delivered,omitempty"` // channel it actually went out on
	FromEmailID string    `json:"from_email_id,omitempty"`
}

// DeliveryEvent is one error/open/confirm observation against an address.
type DeliveryEvent struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	EmailID         string    `json:"email_id,omitempty"`
	PhoneID         string    `json:"phone_id,omitempty"`
	CommunicationID string    `json:"communication_id,omitempty"`
	Datetime        time.Time `json:"datetime"`
	Detail          string    `json:"detail,omitempty"`
}

// AddressStats aggregates an address's delivery history for review screens.
type AddressStats struct {
	Status       string          `json:"status"`
	TotalErrors  int             `json:"total_errors"`
	LastError    *time.Time      `json:"last_error,omitempty"`
	LastConfirm  *time.Time      `json:"last_confirm,omitempty"`
	LastOpen     *time.Time      `json:"last_open,omitempty"` // email only
	RecentErrors []DeliveryEvent `json:"recent_errors,omitempty"`
}

// BlacklistDomain suppresses orphan triage for a sender domain.
type BlacklistDomain struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
}

// Store is the contract for communication and address persistence.
type Store interface {
	CreateCommunication(ctx context.Context, c *Communication) (*Communication, error)
	GetCommunication(ctx context.Context, id string) (*Communication, error)
	ByFOIA(ctx context.Context, foiaID string) ([]Communication, error)
	// Move reassigns the communication to the first target request and clones
	// it onto the rest. Results are ordered like foiaIDs.
	Move(ctx context.Context, commID string, foiaIDs []string) ([]Communication, error)
	SetStatus(ctx context.Context, id, status string) error
	SetBody(ctx context.Context, id, body string) error
	CountBetween(ctx context.Context, start, end time.Time, response bool) (int, error)
	CountDelivered(ctx context.Context, start, end time.Time, channel string) (int, error)

	// EnsureEmail finds or creates the normalized record for an address.
	EnsureEmail(ctx context.Context, email string) (*EmailAddress, error)
	GetEmail(ctx context.Context, id string) (*EmailAddress, error)
	EnsurePhone(ctx context.Context, number, phoneType string) (*PhoneNumber, error)
	GetPhone(ctx context.Context, id string) (*PhoneNumber, error)

	// RecordEvent appends a delivery event and rolls the address status
	// forward: error events mark it bad, open/confirm events mark it good.
	RecordEvent(ctx context.Context, e *DeliveryEvent) (*DeliveryEvent, error)
	EmailStats(ctx context.Context, ids []string) (map[string]AddressStats, error)
	PhoneStats(ctx context.Context, ids []string) (map[string]AddressStats, error)

	// Blacklist records a domain, idempotently.
	Blacklist(ctx context.Context, domain string) (*BlacklistDomain, error)
	IsBlacklisted(ctx context.Context, domain string) (bool, error)

	EnsureTables(ctx context.Context) error
}
