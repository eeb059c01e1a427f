package digest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/comms"
	"openrecords/pkg/crowdfund"
	"openrecords/pkg/mailer"
)

// --- minimal in-memory stores ---

type stubUsers struct {
	users map[string]*account.User
}

func (s *stubUsers) Create(_ context.Context, u *account.User) (*account.User, error) {
	return u, nil
}

func (s *stubUsers) Get(_ context.Context, id string) (*account.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func (s *stubUsers) ByUsername(context.Context, string) (*account.User, error) { return nil, nil }
func (s *stubUsers) ByEmail(context.Context, string) (*account.User, error)    { return nil, nil }
func (s *stubUsers) UsernameExists(context.Context, string) (bool, error)      { return false, nil }
func (s *stubUsers) AddQuota(context.Context, string, int) (*account.User, error) {
	return nil, nil
}
func (s *stubUsers) SetActive(context.Context, string, bool) error { return nil }
func (s *stubUsers) Active(context.Context) ([]account.User, error) {
	return nil, nil
}
func (s *stubUsers) Staff(context.Context) ([]account.User, error) { return nil, nil }
func (s *stubUsers) EnsureTable(context.Context) error             { return nil }

type stubNotifications struct {
	unread []activity.Notification
	marked []string
}

func (s *stubNotifications) Append(_ context.Context, n *activity.Notification) (*activity.Notification, error) {
	return n, nil
}

func (s *stubNotifications) UnreadSince(context.Context, string, time.Time) ([]activity.Notification, error) {
	return s.unread, nil
}

func (s *stubNotifications) MarkRead(_ context.Context, ids []string) error {
	s.marked = append(s.marked, ids...)
	return nil
}

func (s *stubNotifications) Count(context.Context) (int, error) { return len(s.unread), nil }
func (s *stubNotifications) EnsureTable(context.Context) error  { return nil }

// stubComms returns fixed counts: received and sent totals plus a per-channel
// delivered count that doubles for the trailing window.
type stubComms struct {
	received  int
	sent      int
	delivered map[string]int
}

func (s *stubComms) CountBetween(_ context.Context, start, end time.Time, response bool) (int, error) {
	if response {
		return s.received, nil
	}
	return s.sent, nil
}

func (s *stubComms) CountDelivered(_ context.Context, start, end time.Time, channel string) (int, error) {
	n := s.delivered[channel]
	// The trailing window is 30 days wide; report double the daily count.
	if end.Sub(start) > 48*time.Hour {
		return 2 * n, nil
	}
	return n, nil
}

func (s *stubComms) CreateCommunication(_ context.Context, c *comms.Communication) (*comms.Communication, error) {
	return c, nil
}
func (s *stubComms) GetCommunication(context.Context, string) (*comms.Communication, error) {
	return nil, nil
}
func (s *stubComms) ByFOIA(context.Context, string) ([]comms.Communication, error) {
	return nil, nil
}
func (s *stubComms) Move(context.Context, string, []string) ([]comms.Communication, error) {
	return nil, nil
}
func (s *stubComms) SetStatus(context.Context, string, string) error { return nil }
func (s *stubComms) SetBody(context.Context, string, string) error   { return nil }
func (s *stubComms) EnsureEmail(context.Context, string) (*comms.EmailAddress, error) {
	return nil, nil
}
func (s *stubComms) GetEmail(context.Context, string) (*comms.EmailAddress, error) {
	return nil, nil
}
func (s *stubComms) EnsurePhone(context.Context, string, string) (*comms.PhoneNumber, error) {
	return nil, nil
}
func (s *stubComms) GetPhone(context.Context, string) (*comms.PhoneNumber, error) {
	return nil, nil
}
func (s *stubComms) RecordEvent(_ context.Context, e *comms.DeliveryEvent) (*comms.DeliveryEvent, error) {
	return e, nil
}
func (s *stubComms) EmailStats(context.Context, []string) (map[string]comms.AddressStats, error) {
	return nil, nil
}
func (s *stubComms) PhoneStats(context.Context, []string) (map[string]comms.AddressStats, error) {
	return nil, nil
}
func (s *stubComms) Blacklist(context.Context, string) (*comms.BlacklistDomain, error) {
	return nil, nil
}
func (s *stubComms) IsBlacklisted(context.Context, string) (bool, error) { return false, nil }
func (s *stubComms) EnsureTables(context.Context) error                  { return nil }

type stubCrowdfunds struct {
	open []crowdfund.Crowdfund
}

func (s *stubCrowdfunds) Create(_ context.Context, c *crowdfund.Crowdfund) (*crowdfund.Crowdfund, error) {
	return c, nil
}
func (s *stubCrowdfunds) Get(context.Context, string) (*crowdfund.Crowdfund, error) {
	return nil, nil
}
func (s *stubCrowdfunds) AddPayment(context.Context, *crowdfund.Payment) (*crowdfund.Crowdfund, error) {
	return nil, nil
}
func (s *stubCrowdfunds) Close(context.Context, string) (*crowdfund.Crowdfund, error) {
	return nil, nil
}
func (s *stubCrowdfunds) Payments(context.Context, string) ([]crowdfund.Payment, error) {
	return nil, nil
}
func (s *stubCrowdfunds) Open(context.Context) ([]crowdfund.Crowdfund, error) {
	return s.open, nil
}
func (s *stubCrowdfunds) OpenPastDeadline(context.Context, time.Time) ([]crowdfund.Crowdfund, error) {
	return nil, nil
}
func (s *stubCrowdfunds) EnsureTables(context.Context) error { return nil }

type stubStats struct {
	byDate map[string]*Statistics
}

func (s *stubStats) Snapshot(_ context.Context, date time.Time) (*Statistics, error) {
	return nil, nil
}

func (s *stubStats) ByDate(_ context.Context, date time.Time) (*Statistics, error) {
	return s.byDate[date.Format("2006-01-02")], nil
}

func (s *stubStats) EnsureTable(context.Context) error { return nil }

type captureSender struct {
	sent []mailer.Email
}

func (c *captureSender) Send(_ context.Context, e mailer.Email) error {
	c.sent = append(c.sent, e)
	return nil
}

func note(verb, objectType, ownerID string) activity.Notification {
	return activity.Notification{
		ID: verb + "-" + ownerID, Actor: "Dept of Examples", Verb: verb,
		ObjectType: objectType, OwnerID: ownerID,
	}
}

// TestActivityDigestSuppressesEmpty verifies that a user with no matching
// unread notifications gets no email at all, not an empty one.
func TestActivityDigestSuppressesEmpty(t *testing.T) {
	sender := &captureSender{}
	d := &ActivityDigest{
		Users: &stubUsers{users: map[string]*account.User{
			"u1": {ID: "u1", Email: "u1@example.com", FullName: "User One"},
		}},
		Notifications: &stubNotifications{},
		Sender:        sender,
		From:          "digest@openrecords.example",
		Interval:      7 * 24 * time.Hour,
	}

	n, err := d.Send(context.Background(), "u1", time.Now())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(sender.sent))
	}
}

// TestActivityDigestClassifies verifies the ownership split and the verb
// classifiers: owners hear about every transition, followers only about
// terminal outcomes, and unclassifiable verbs never inflate the count.
func TestActivityDigestClassifies(t *testing.T) {
	notifications := []activity.Notification{
		note("completed your request", activity.ObjectRequest, "u1"),
		note("acknowledged your request", activity.ObjectRequest, "u1"),
		// Followed request: "acknowledged" is not a follower classifier.
		note("completed a request", activity.ObjectRequest, "other"),
		note("acknowledged a request", activity.ObjectRequest, "other"),
		// No classifier matches "commented on".
		note("commented on your request", activity.ObjectRequest, "u1"),
		// Crowdfund notifications all land under "all".
		note("contributed", activity.ObjectCrowdfund, "u1"),
	}

	d := &ActivityDigest{
		Users: &stubUsers{users: map[string]*account.User{
			"u1": {ID: "u1", Email: "u1@example.com", FullName: "User One"},
		}},
		Notifications: &stubNotifications{unread: notifications},
		Interval:      7 * 24 * time.Hour,
	}

	act, _, err := d.Build(context.Background(), "u1", time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if act.Requests.Count != 3 {
		t.Errorf("request count = %d, want 3", act.Requests.Count)
	}
	if len(act.Requests.Mine["completed"]) != 1 || len(act.Requests.Mine["acknowledged"]) != 1 {
		t.Errorf("mine = %v", act.Requests.Mine)
	}
	if len(act.Requests.Following["completed"]) != 1 {
		t.Errorf("following completed = %v", act.Requests.Following["completed"])
	}
	if len(act.Requests.Following["acknowledged"]) != 0 {
		t.Error("follower digest includes acknowledgements")
	}
	if act.Crowdfunds.Count != 1 || len(act.Crowdfunds.Mine["all"]) != 1 {
		t.Errorf("crowdfunds = %+v", act.Crowdfunds)
	}
	if act.Count != 4 {
		t.Errorf("total count = %d, want 4", act.Count)
	}
}

// TestActivityDigestSubjectAndMarkRead verifies the count-bearing subject
// line, singular and plural, and that every included notification is marked
// read after a successful send.
func TestActivityDigestSubjectAndMarkRead(t *testing.T) {
	cases := []struct {
		name    string
		unread  []activity.Notification
		subject string
	}{
		{
			"singular",
			[]activity.Notification{note("completed your request", activity.ObjectRequest, "u1")},
			"Activity Digest: 1 Update",
		},
		{
			"plural",
			[]activity.Notification{
				note("completed your request", activity.ObjectRequest, "u1"),
				note("rejected your request", activity.ObjectRequest, "u1"),
			},
			"Activity Digest: 2 Updates",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &captureSender{}
			store := &stubNotifications{unread: tc.unread}
			d := &ActivityDigest{
				Users: &stubUsers{users: map[string]*account.User{
					"u1": {ID: "u1", Email: "u1@example.com", FullName: "User One"},
				}},
				Notifications: store,
				Sender:        sender,
				From:          "digest@openrecords.example",
				Interval:      7 * 24 * time.Hour,
			}
			n, err := d.Send(context.Background(), "u1", time.Now())
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if n != len(tc.unread) {
				t.Errorf("count = %d, want %d", n, len(tc.unread))
			}
			if len(sender.sent) != 1 || sender.sent[0].Subject != tc.subject {
				t.Errorf("sent = %+v, want subject %q", sender.sent, tc.subject)
			}
			if len(store.marked) != len(tc.unread) {
				t.Errorf("marked %d notifications read, want %d", len(store.marked), len(tc.unread))
			}
		})
	}
}

// TestStaffDigestNonStaff verifies that a non-staff recipient is silently
// skipped with a zero count.
func TestStaffDigestNonStaff(t *testing.T) {
	sender := &captureSender{}
	d := &StaffDigest{
		Users: &stubUsers{users: map[string]*account.User{
			"u1": {ID: "u1", Email: "u1@example.com", IsStaff: false},
		}},
		Comms:      &stubComms{},
		Crowdfunds: &stubCrowdfunds{},
		Stats:      &stubStats{},
		Sender:     sender,
	}
	n, err := d.Send(context.Background(), "u1", time.Now())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 0 || len(sender.sent) != 0 {
		t.Errorf("n = %d, sent = %d, want both 0", n, len(sender.sent))
	}
}

// TestStaffDigestMissingSnapshot verifies that a missing snapshot drops
// only the statistics table; the rest of the digest still goes out.
func TestStaffDigestMissingSnapshot(t *testing.T) {
	sender := &captureSender{}
	d := &StaffDigest{
		Users: &stubUsers{users: map[string]*account.User{
			"staff": {ID: "staff", Email: "staff@openrecords.example", FullName: "Staff One", IsStaff: true},
		}},
		Comms:      &stubComms{sent: 10, received: 4, delivered: map[string]int{comms.ChannelEmail: 8}},
		Crowdfunds: &stubCrowdfunds{},
		Stats:      &stubStats{byDate: map[string]*Statistics{}},
		Sender:     sender,
	}
	n, err := d.Send(context.Background(), "staff", time.Now())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 1 || len(sender.sent) != 1 {
		t.Fatalf("n = %d, sent = %d, want 1 and 1", n, len(sender.sent))
	}
	body := sender.sent[0].Body
	if strings.Contains(body, "Statistics") {
		t.Error("statistics table rendered without snapshots")
	}
	if !strings.Contains(body, "Sent 10, received 4") {
		t.Errorf("communication report missing from body:\n%s", body)
	}
}

// TestCompareStats verifies the delta table and that either snapshot
// missing yields no table at all.
func TestCompareStats(t *testing.T) {
	current := &Statistics{TotalRequests: 110, UnresolvedTasks: 7}
	previous := &Statistics{TotalRequests: 100, UnresolvedTasks: 9}

	stats := CompareStats(current, previous)
	if len(stats) != 10 {
		t.Fatalf("got %d rows, want 10", len(stats))
	}
	if stats[0].Name != "Requests" || stats[0].Current != 110 || stats[0].Delta != 10 {
		t.Errorf("requests row = %+v", stats[0])
	}
	if stats[2].Name != "Unresolved Tasks" || stats[2].Delta != -2 {
		t.Errorf("tasks row = %+v", stats[2])
	}

	if CompareStats(nil, previous) != nil || CompareStats(current, nil) != nil {
		t.Error("missing snapshot should yield no table")
	}
}

// TestCommReportCosts verifies per-channel pricing: email is free, fax and
// mail are charged per delivered communication, and the trailing window is
// priced separately.
func TestCommReportCosts(t *testing.T) {
	d := &StaffDigest{
		Comms: &stubComms{delivered: map[string]int{
			comms.ChannelEmail: 50,
			comms.ChannelFax:   10,
			comms.ChannelMail:  5,
		}},
	}
	end := time.Now()
	report, err := d.BuildCommReport(context.Background(), end.AddDate(0, 0, -1), end)
	if err != nil {
		t.Fatalf("BuildCommReport: %v", err)
	}
	if report.ExpenseCents[comms.ChannelEmail] != 0 {
		t.Errorf("email expense = %d, want 0", report.ExpenseCents[comms.ChannelEmail])
	}
	if report.ExpenseCents[comms.ChannelFax] != 120 {
		t.Errorf("fax expense = %d cents, want 120", report.ExpenseCents[comms.ChannelFax])
	}
	if report.ExpenseCents[comms.ChannelMail] != 270 {
		t.Errorf("mail expense = %d cents, want 270", report.ExpenseCents[comms.ChannelMail])
	}
	// The stub doubles counts over the 30-day window.
	if report.TrailingCents[comms.ChannelMail] != 540 {
		t.Errorf("trailing mail = %d cents, want 540", report.TrailingCents[comms.ChannelMail])
	}
}

// TestSalutationSignoff verifies the hour boundaries.
func TestSalutationSignoff(t *testing.T) {
	cases := []struct {
		hour       int
		salutation string
		signoff    string
	}{
		{8, "Good morning", "Have a great day"},
		{12, "Good afternoon", "Have a great day"},
		{17, "Good afternoon", "Have a great day"},
		{18, "Good evening", "Have a great night"},
		{23, "Good evening", "Have a great night"},
	}
	for _, tc := range cases {
		now := time.Date(2026, 3, 1, tc.hour, 0, 0, 0, time.UTC)
		if got := Salutation(now); got != tc.salutation {
			t.Errorf("Salutation(%02d:00) = %q, want %q", tc.hour, got, tc.salutation)
		}
		if got := Signoff(now); got != tc.signoff {
			t.Errorf("Signoff(%02d:00) = %q, want %q", tc.hour, got, tc.signoff)
		}
	}
}
