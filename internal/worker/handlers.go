package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/agency"
	"openrecords/pkg/comms"
	"openrecords/pkg/crowdfund"
	"openrecords/pkg/digest"
	"openrecords/pkg/foia"
	"openrecords/pkg/jobs"
	"openrecords/pkg/mailer"
	"openrecords/pkg/task"
)

// followupAfter is how long a submitted request waits before the automatic
// follow-up goes out.
const followupAfter = 30 * 24 * time.Hour

// Deps wires the job handlers to the rest of the system.
type Deps struct {
	Users      account.Store
	FOIAs      foia.Store
	Agencies   agency.Store
	Comms      comms.Store
	Tasks      task.Store
	Jobs       jobs.Scheduler
	Activity   *digest.ActivityDigest
	Staff      *digest.StaffDigest
	Stats      digest.StatsStore
	Crowdfunds *crowdfund.Service
	Sender     mailer.Sender
	From       string
	// Notifications receives owner-facing activity entries. Nil disables
	// the stream.
	Notifications activity.Store
}

// RegisterAll binds every job name to its handler.
func (d Deps) RegisterAll(w *Worker) {
	w.Register("mail.welcome", d.welcomeEmail)
	w.Register("foia.submit", d.submitRequest)
	w.Register("composer.submit", d.submitComposer)
	w.Register("foia.followup", d.followup)
	w.Register("digest.activity", d.activityDigests)
	w.Register("digest.staff", d.staffDigests)
	w.Register("stats.snapshot", d.statsSnapshot)
	w.Register("crowdfund.close", d.closeCrowdfunds)
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing %q argument", key)
	}
	return v, nil
}

func (d Deps) welcomeEmail(ctx context.Context, args map[string]any) error {
	userID, err := argString(args, "user_id")
	if err != nil {
		return err
	}
	user, err := d.Users.Get(ctx, userID)
	if err != nil {
		return err
	}
	return d.Sender.Send(ctx, mailer.Email{
		Subject: "Welcome to OpenRecords",
		From:    d.From,
		To:      []string{user.Email},
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour account %s is ready. File your first public "+
				"records request whenever you like.\n\nThe OpenRecords Team\n",
			user.FullName, user.Username),
	})
}

// submitRequest sends a request's first communication out on its best
// channel. No electronic contact means a snail-mail task for staff.
func (d Deps) submitRequest(ctx context.Context, args map[string]any) error {
	foiaID, err := argString(args, "foia_id")
	if err != nil {
		return err
	}
	return d.submit(ctx, foiaID)
}

func (d Deps) submit(ctx context.Context, foiaID string) error {
	r, err := d.FOIAs.GetRequest(ctx, foiaID)
	if err != nil {
		return err
	}
	cs, err := d.Comms.ByFOIA(ctx, foiaID)
	if err != nil {
		return err
	}
	if len(cs) == 0 {
		return fmt.Errorf("request %s has no communication to send", foiaID)
	}

	switch {
	case r.EmailID != "":
		email, err := d.Comms.GetEmail(ctx, r.EmailID)
		if err != nil {
			return err
		}
		if err := d.Sender.Send(ctx, mailer.Email{
			Subject: r.Title,
			From:    d.From,
			To:      []string{email.Email},
			Body:    cs[0].Body,
		}); err != nil {
			return err
		}
		if err := d.Comms.SetStatus(ctx, cs[0].ID, "sent"); err != nil {
			return err
		}
	default:
		// Fax delivery and printing both go through staff.
		category := task.CategoryNew
		if _, err := d.Tasks.Create(ctx, &task.Task{
			Type:            task.TypeSnailMail,
			Category:        category,
			CommunicationID: cs[0].ID,
			FOIAID:          r.ID,
		}); err != nil {
			return err
		}
	}

	if err := d.FOIAs.SetRequestStatus(ctx, foiaID, foia.StatusAck); err != nil {
		return err
	}
	if d.Notifications != nil {
		if _, err := d.Notifications.Append(ctx, &activity.Notification{
			UserID:     r.UserID,
			Verb:       fmt.Sprintf("%q %s", r.Title, foia.StatusVerb(foia.StatusAck)),
			ObjectType: activity.ObjectRequest,
			ObjectID:   r.ID,
			OwnerID:    r.UserID,
			Datetime:   time.Now(),
		}); err != nil {
			log.Printf("worker: notify %s: %v", r.UserID, err)
		}
	}
	next := time.Now().Add(followupAfter)
	if err := d.FOIAs.SetFollowup(ctx, foiaID, &next); err != nil {
		return err
	}
	_, err = d.Jobs.Schedule(ctx, "foia.followup", map[string]any{"foia_id": foiaID}, next)
	return err
}

func (d Deps) submitComposer(ctx context.Context, args map[string]any) error {
	composerID, err := argString(args, "composer_id")
	if err != nil {
		return err
	}
	requests, err := d.FOIAs.RequestsByComposer(ctx, composerID)
	if err != nil {
		return err
	}
	for _, r := range requests {
		if err := d.submit(ctx, r.ID); err != nil {
			return fmt.Errorf("submit request %s: %w", r.ID, err)
		}
	}
	return d.FOIAs.SetComposerStatus(ctx, composerID, foia.ComposerFiled)
}

// followup nudges an agency that still owes a response. Closed requests
// drop the follow-up silently.
func (d Deps) followup(ctx context.Context, args map[string]any) error {
	foiaID, err := argString(args, "foia_id")
	if err != nil {
		return err
	}
	r, err := d.FOIAs.GetRequest(ctx, foiaID)
	if err != nil {
		return err
	}
	open := false
	for _, s := range foia.OpenStatuses {
		if r.Status == s {
			open = true
			break
		}
	}
	if !open {
		return d.FOIAs.SetFollowup(ctx, foiaID, nil)
	}

	body := fmt.Sprintf(
		"To Whom It May Concern:\n\nI wanted to follow up on the following "+
			"request, %q. You had originally indicated a response would be "+
			"forthcoming. Please let me know its current status.\n\nThank you.\n",
		r.Title)
	c, err := d.Comms.CreateCommunication(ctx, &comms.Communication{
		FOIAID:  foiaID,
		Channel: comms.ChannelEmail,
		Body:    body,
	})
	if err != nil {
		return err
	}
	if r.EmailID != "" {
		email, err := d.Comms.GetEmail(ctx, r.EmailID)
		if err != nil {
			return err
		}
		if err := d.Sender.Send(ctx, mailer.Email{
			Subject: fmt.Sprintf("Follow-up: %s", r.Title),
			From:    d.From,
			To:      []string{email.Email},
			Body:    body,
		}); err != nil {
			return err
		}
	} else {
		if _, err := d.Tasks.Create(ctx, &task.Task{
			Type:            task.TypeSnailMail,
			Category:        task.CategoryFollowup,
			CommunicationID: c.ID,
			FOIAID:          foiaID,
		}); err != nil {
			return err
		}
	}

	next := time.Now().Add(followupAfter)
	if err := d.FOIAs.SetFollowup(ctx, foiaID, &next); err != nil {
		return err
	}
	_, err = d.Jobs.Schedule(ctx, "foia.followup", map[string]any{"foia_id": foiaID}, next)
	return err
}

// activityDigests sends the digest to every active user. Users with no
// activity cost one query each and no email.
func (d Deps) activityDigests(ctx context.Context, _ map[string]any) error {
	users, err := d.Users.Active(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	sent := 0
	for _, u := range users {
		n, err := d.Activity.Send(ctx, u.ID, now)
		if err != nil {
			log.Printf("worker: activity digest for %s: %v", u.Username, err)
			continue
		}
		if n > 0 {
			sent++
		}
	}
	log.Printf("worker: sent %d activity digests to %d users", sent, len(users))
	return nil
}

func (d Deps) staffDigests(ctx context.Context, _ map[string]any) error {
	staff, err := d.Users.Staff(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, u := range staff {
		if _, err := d.Staff.Send(ctx, u.ID, now); err != nil {
			log.Printf("worker: staff digest for %s: %v", u.Username, err)
		}
	}
	return nil
}

func (d Deps) statsSnapshot(ctx context.Context, _ map[string]any) error {
	st, err := d.Stats.Snapshot(ctx, time.Now())
	if err != nil {
		return err
	}
	log.Printf("worker: statistics snapshot for %s recorded", st.Date.Format("2006-01-02"))
	return nil
}

func (d Deps) closeCrowdfunds(ctx context.Context, _ map[string]any) error {
	n, err := d.Crowdfunds.CloseExpired(ctx, time.Now())
	if n > 0 {
		log.Printf("worker: closed %d expired crowdfunds", n)
	}
	return err
}
