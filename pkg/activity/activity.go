// Package activity is the append-only notification stream. Every noteworthy
// change lands here as a row addressed to one user; digests aggregate the
// unread rows and the Bus fans new rows out to in-process subscribers.
package activity

import (
	"context"
	"time"
)

// Object types notifications refer to.
const (
	ObjectRequest   = "request"
	ObjectCrowdfund = "crowdfund"
	ObjectAgency    = "agency"
	ObjectTask      = "task"
)

// Notification is one activity-stream entry addressed to a user.
type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"` // recipient
	Actor      string    `json:"actor"`   // who did it
	Verb       string    `json:"verb"`    // e.g. "completed", "requires payment"
	ObjectType string    `json:"object_type"`
	ObjectID   string    `json:"object_id"`
	// OwnerID is the owner of the object the notification is about, used to
	// split digests into "mine" and "following".
	OwnerID  string    `json:"owner_id,omitempty"`
	Datetime time.Time `json:"datetime"`
	Read     bool      `json:"read"`
}

// Store is the contract for notification persistence.
type Store interface {
	Append(ctx context.Context, n *Notification) (*Notification, error)
	UnreadSince(ctx context.Context, userID string, since time.Time) ([]Notification, error)
	MarkRead(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	EnsureTable(ctx context.Context) error
}
