package digest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/mailer"
)

// Request verb classifiers. The owner of a request cares about every
// transition; followers only hear about terminal outcomes.
var mineClassifiers = []classifier{
	{"completed", "completed"},
	{"rejected", "rejected"},
	{"no_documents", "no responsive documents"},
	{"require_payment", "payment"},
	{"require_fix", "fix"},
	{"interim_response", "processed"},
	{"acknowledged", "acknowledged"},
}

var followingClassifiers = []classifier{
	{"completed", "completed"},
	{"rejected", "rejected"},
	{"no_documents", "no responsive documents"},
}

type classifier struct {
	key    string
	phrase string
}

// Classified groups notifications by classifier key. Notifications whose
// verb matches no classifier are dropped, so they never inflate the count.
type Classified map[string][]activity.Notification

func classify(ns []activity.Notification, classifiers []classifier) (Classified, int) {
	out := make(Classified)
	count := 0
	for _, c := range classifiers {
		for _, n := range ns {
			if strings.Contains(strings.ToLower(n.Verb), c.phrase) {
				out[c.key] = append(out[c.key], n)
				count++
			}
		}
	}
	return out, count
}

// Bucket splits one object type's notifications between objects the user
// owns and objects they follow.
type Bucket struct {
	Count     int
	Mine      Classified
	Following Classified
}

// Activity is the classified content of one digest.
type Activity struct {
	Count      int
	Requests   Bucket
	Crowdfunds Bucket
}

// ActivityDigest summarizes a user's unread notifications over an interval.
type ActivityDigest struct {
	Users         account.Store
	Notifications activity.Store
	Sender        mailer.Sender
	From          string
	Interval      time.Duration
}

// Build classifies the user's unread notifications since now minus the
// interval. It does not send anything.
func (d *ActivityDigest) Build(ctx context.Context, userID string, now time.Time) (*Activity, []activity.Notification, error) {
	since := now.Add(-d.Interval)
	ns, err := d.Notifications.UnreadSince(ctx, userID, since)
	if err != nil {
		return nil, nil, fmt.Errorf("digest notifications for %s: %w", userID, err)
	}

	var act Activity
	act.Requests = splitBucket(ns, activity.ObjectRequest, userID, mineClassifiers, followingClassifiers)
	act.Crowdfunds = splitBucket(ns, activity.ObjectCrowdfund, userID, nil, nil)
	act.Count = act.Requests.Count + act.Crowdfunds.Count
	return &act, ns, nil
}

// splitBucket filters notifications to one object type, splits them on
// ownership and classifies each half. Nil classifiers keep everything
// under an "all" key.
func splitBucket(ns []activity.Notification, objectType, userID string, mine, following []classifier) Bucket {
	var owned, followed []activity.Notification
	for _, n := range ns {
		if n.ObjectType != objectType {
			continue
		}
		if n.OwnerID == userID {
			owned = append(owned, n)
		} else {
			followed = append(followed, n)
		}
	}
	var b Bucket
	var mineCount, followCount int
	if mine == nil {
		b.Mine = Classified{"all": owned}
		mineCount = len(owned)
	} else {
		b.Mine, mineCount = classify(owned, mine)
	}
	if following == nil {
		b.Following = Classified{"all": followed}
		followCount = len(followed)
	} else {
		b.Following, followCount = classify(followed, following)
	}
	b.Count = mineCount + followCount
	return b
}

// Send builds and emails the digest. A digest with no activity sends
// nothing and returns 0. Included notifications are marked read so the
// next digest starts fresh.
func (d *ActivityDigest) Send(ctx context.Context, userID string, now time.Time) (int, error) {
	user, err := d.Users.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	act, ns, err := d.Build(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	if act.Count < 1 {
		return 0, nil
	}

	email := mailer.Email{
		Subject: subjectFor(act.Count),
		From:    d.From,
		To:      []string{user.Email},
		Body:    renderActivity(user, act, now),
	}
	if err := d.Sender.Send(ctx, email); err != nil {
		return 0, fmt.Errorf("send activity digest to %s: %w", user.Email, err)
	}

	ids := make([]string, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	if err := d.Notifications.MarkRead(ctx, ids); err != nil {
		log.Printf("digest: mark read for %s: %v", userID, err)
	}
	return act.Count, nil
}

func subjectFor(count int) string {
	subject := fmt.Sprintf("Activity Digest: %d Update", count)
	if count > 1 {
		subject += "s"
	}
	return subject
}

var sectionTitles = map[string]string{
	"completed":        "Completed",
	"rejected":         "Rejected",
	"no_documents":     "No Responsive Documents",
	"require_payment":  "Payment Required",
	"require_fix":      "Fix Required",
	"interim_response": "Processed",
	"acknowledged":     "Acknowledged",
	"all":              "Updates",
}

func renderActivity(user *account.User, act *Activity, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s,\n\n", Salutation(now), user.FullName)
	fmt.Fprintf(&b, "You have %d unread updates.\n", act.Count)
	renderBucket(&b, "Your requests", act.Requests.Mine, mineClassifiers)
	renderBucket(&b, "Requests you follow", act.Requests.Following, followingClassifiers)
	renderBucket(&b, "Your crowdfunds", act.Crowdfunds.Mine, nil)
	renderBucket(&b, "Crowdfunds you follow", act.Crowdfunds.Following, nil)
	fmt.Fprintf(&b, "\n%s,\nThe OpenRecords Team\n", Signoff(now))
	return b.String()
}

// renderBucket writes sections in classifier order so the email reads the
// same every day. Nil classifiers mean the single "all" section.
func renderBucket(b *strings.Builder, title string, c Classified, order []classifier) {
	keys := []string{"all"}
	if order != nil {
		keys = keys[:0]
		for _, cl := range order {
			keys = append(keys, cl.key)
		}
	}
	wroteTitle := false
	for _, key := range keys {
		ns := c[key]
		if len(ns) == 0 {
			continue
		}
		if !wroteTitle {
			fmt.Fprintf(b, "\n%s\n", title)
			wroteTitle = true
		}
		fmt.Fprintf(b, "  %s:\n", sectionTitles[key])
		for _, n := range ns {
			fmt.Fprintf(b, "    - %s %s\n", n.Actor, n.Verb)
		}
	}
}
