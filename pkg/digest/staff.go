package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"openrecords/pkg/account"
	"openrecords/pkg/comms"
	"openrecords/pkg/crowdfund"
	"openrecords/pkg/mailer"
)

// Per-communication delivery cost in cents.
var costCents = map[string]int{
	comms.ChannelEmail: 0,
	comms.ChannelFax:   12,
	comms.ChannelMail:  54,
}

var costChannels = []string{comms.ChannelEmail, comms.ChannelFax, comms.ChannelMail}

// CommReport summarizes communication volume and spend over a window.
type CommReport struct {
	Sent          int
	Received      int
	DeliveredBy   map[string]int
	ExpenseCents  map[string]int
	TrailingCents map[string]int // trailing 30 days ending at the window's end
}

// StaffDigest is the daily operations email for staff: snapshot deltas,
// communication spend and open crowdfunds.
type StaffDigest struct {
	Users      account.Store
	Comms      comms.Store
	Crowdfunds crowdfund.Store
	Stats      StatsStore
	Sender     mailer.Sender
	From       string
}

// BuildCommReport counts sent and received communications in the window
// and prices the outbound ones by channel.
func (d *StaffDigest) BuildCommReport(ctx context.Context, start, end time.Time) (*CommReport, error) {
	r := CommReport{
		DeliveredBy:   make(map[string]int),
		ExpenseCents:  make(map[string]int),
		TrailingCents: make(map[string]int),
	}
	var err error
	if r.Received, err = d.Comms.CountBetween(ctx, start, end, true); err != nil {
		return nil, err
	}
	if r.Sent, err = d.Comms.CountBetween(ctx, start, end, false); err != nil {
		return nil, err
	}
	trailingStart := end.AddDate(0, 0, -30)
	for _, ch := range costChannels {
		n, err := d.Comms.CountDelivered(ctx, start, end, ch)
		if err != nil {
			return nil, err
		}
		r.DeliveredBy[ch] = n
		r.ExpenseCents[ch] = n * costCents[ch]

		trailing, err := d.Comms.CountDelivered(ctx, trailingStart, end, ch)
		if err != nil {
			return nil, err
		}
		r.TrailingCents[ch] = trailing * costCents[ch]
	}
	return &r, nil
}

// Send emails the staff digest covering the day before now. Non-staff
// recipients get nothing and a zero count. A missing snapshot suppresses
// the statistics table, not the whole email.
func (d *StaffDigest) Send(ctx context.Context, userID string, now time.Time) (int, error) {
	user, err := d.Users.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !user.IsStaff {
		return 0, nil
	}

	end := now.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -1)

	current, err := d.Stats.ByDate(ctx, end)
	if err != nil {
		return 0, err
	}
	previous, err := d.Stats.ByDate(ctx, start)
	if err != nil {
		return 0, err
	}
	stats := CompareStats(current, previous)

	report, err := d.BuildCommReport(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("staff digest comm report: %w", err)
	}
	open, err := d.Crowdfunds.Open(ctx)
	if err != nil {
		return 0, err
	}

	email := mailer.Email{
		Subject: "Daily Staff Digest",
		From:    d.From,
		To:      []string{user.Email},
		Body:    renderStaff(user, stats, report, open, now),
	}
	if err := d.Sender.Send(ctx, email); err != nil {
		return 0, fmt.Errorf("send staff digest to %s: %w", user.Email, err)
	}
	return 1, nil
}

func dollars(cents int) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func renderStaff(user *account.User, stats []Stat, report *CommReport, open []crowdfund.Crowdfund, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s,\n", Salutation(now), user.FullName)

	if len(stats) > 0 {
		b.WriteString("\nStatistics\n")
		for _, s := range stats {
			fmt.Fprintf(&b, "  %-20s %8d (%+d)\n", s.Name, s.Current, s.Delta)
		}
	}

	b.WriteString("\nCommunications\n")
	fmt.Fprintf(&b, "  Sent %d, received %d\n", report.Sent, report.Received)
	for _, ch := range costChannels {
		fmt.Fprintf(&b, "  %-6s %4d sent, %s spent, %s trailing 30 days\n",
			ch, report.DeliveredBy[ch], dollars(report.ExpenseCents[ch]), dollars(report.TrailingCents[ch]))
	}

	if len(open) > 0 {
		b.WriteString("\nOpen crowdfunds\n")
		for _, cf := range open {
			fmt.Fprintf(&b, "  %s: %s of %s raised\n", cf.Name, dollars(cf.RaisedCents), dollars(cf.GoalCents))
		}
	}

	fmt.Fprintf(&b, "\n%s,\nThe OpenRecords Team\n", Signoff(now))
	return b.String()
}
