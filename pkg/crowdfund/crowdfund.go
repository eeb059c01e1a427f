// Package crowdfund handles raising money toward a request's fees.
// Contributions charge through the payment provider before any row is
// written, so a declined card leaves no trace. Finishing a crowdfund
// files a task so staff can disposition the raised funds.
package crowdfund

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/foia"
	"openrecords/pkg/task"
)

// ErrClosed is returned when contributing to a crowdfund that has ended.
var ErrClosed = errors.New("crowdfund is closed")

// Crowdfund raises money toward a single request's fees.
type Crowdfund struct {
	ID          string     `json:"id"`
	FOIAID      string     `json:"foia_id"`
	Name        string     `json:"name"`
	GoalCents   int        `json:"goal_cents"`
	RaisedCents int        `json:"raised_cents"`
	Closed      bool       `json:"closed"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Remaining is the amount still needed, never negative.
func (c *Crowdfund) Remaining() int {
	if c.RaisedCents >= c.GoalCents {
		return 0
	}
	return c.GoalCents - c.RaisedCents
}

// Expired reports whether the deadline has passed.
func (c *Crowdfund) Expired(now time.Time) bool {
	return c.Deadline != nil && now.After(*c.Deadline)
}

// Payment is one contribution. Anonymous payments keep the user id for
// accounting but are not shown publicly.
type Payment struct {
	ID          string    `json:"id"`
	CrowdfundID string    `json:"crowdfund_id"`
	UserID      string    `json:"user_id,omitempty"`
	AmountCents int       `json:"amount_cents"`
	Anonymous   bool      `json:"anonymous"`
	Datetime    time.Time `json:"datetime"`
}

// Store persists crowdfunds and their payments.
type Store interface {
	Create(ctx context.Context, c *Crowdfund) (*Crowdfund, error)
	Get(ctx context.Context, id string) (*Crowdfund, error)
	// AddPayment records a payment and bumps the raised total atomically.
	AddPayment(ctx context.Context, p *Payment) (*Crowdfund, error)
	// Close marks the crowdfund finished. Closing twice is a no-op.
	Close(ctx context.Context, id string) (*Crowdfund, error)
	Payments(ctx context.Context, crowdfundID string) ([]Payment, error)
	// Open lists all crowdfunds still accepting contributions.
	Open(ctx context.Context) ([]Crowdfund, error)
	// OpenPastDeadline lists open crowdfunds whose deadline is before now.
	OpenPastDeadline(ctx context.Context, now time.Time) ([]Crowdfund, error)
	EnsureTables(ctx context.Context) error
}

// RequestGetter looks up the request a crowdfund raises money for.
type RequestGetter interface {
	GetRequest(ctx context.Context, id string) (*foia.Request, error)
}

// Service wires payments and task filing around the store. Requests and
// Notifications feed the owner's activity stream when a crowdfund finishes;
// either being nil disables that.
type Service struct {
	Store         Store
	Charger       account.Charger
	Tasks         task.Store
	Requests      RequestGetter
	Notifications activity.Store
}

// Contribute charges the token and records the payment. The charge runs
// first; a decline or provider failure leaves the crowdfund untouched.
func (s *Service) Contribute(ctx context.Context, crowdfundID, userID, token string, amountCents int, anonymous bool) (*Crowdfund, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("contribute: amount must be positive")
	}
	cf, err := s.Store.Get(ctx, crowdfundID)
	if err != nil {
		return nil, err
	}
	if cf.Closed {
		return nil, ErrClosed
	}
	desc := fmt.Sprintf("contribution to %s", cf.Name)
	if err := s.Charger.Charge(ctx, token, amountCents, desc); err != nil {
		return nil, err
	}
	cf, err = s.Store.AddPayment(ctx, &Payment{
		CrowdfundID: crowdfundID,
		UserID:      userID,
		AmountCents: amountCents,
		Anonymous:   anonymous,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment after charge: %w", err)
	}
	log.Printf("crowdfund: %s raised %d of %d", cf.ID, cf.RaisedCents, cf.GoalCents)
	if cf.RaisedCents >= cf.GoalCents {
		return s.finish(ctx, cf)
	}
	return cf, nil
}

// CloseExpired finishes every open crowdfund past its deadline and files
// a task for each. Returns the number closed.
func (s *Service) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.Store.OpenPastDeadline(ctx, now)
	if err != nil {
		return 0, err
	}
	for i := range expired {
		if _, err := s.finish(ctx, &expired[i]); err != nil {
			return i, err
		}
	}
	return len(expired), nil
}

func (s *Service) finish(ctx context.Context, cf *Crowdfund) (*Crowdfund, error) {
	cf, err := s.Store.Close(ctx, cf.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Tasks.Create(ctx, &task.Task{
		Type:        task.TypeCrowdfund,
		CrowdfundID: cf.ID,
		FOIAID:      cf.FOIAID,
	}); err != nil {
		return nil, fmt.Errorf("file crowdfund task: %w", err)
	}
	s.notifyOwner(ctx, cf)
	return cf, nil
}

// notifyOwner tells the request's owner their crowdfund completed. Stream
// failures are logged, not fatal; the crowdfund is already closed.
func (s *Service) notifyOwner(ctx context.Context, cf *Crowdfund) {
	if s.Requests == nil || s.Notifications == nil || cf.FOIAID == "" {
		return
	}
	r, err := s.Requests.GetRequest(ctx, cf.FOIAID)
	if err != nil {
		log.Printf("crowdfund: owner of %s: %v", cf.FOIAID, err)
		return
	}
	if _, err := s.Notifications.Append(ctx, &activity.Notification{
		UserID:     r.UserID,
		Verb:       fmt.Sprintf("crowdfund %q completed", cf.Name),
		ObjectType: activity.ObjectCrowdfund,
		ObjectID:   cf.ID,
		OwnerID:    r.UserID,
		Datetime:   time.Now(),
	}); err != nil {
		log.Printf("crowdfund: notify %s: %v", r.UserID, err)
	}
}
