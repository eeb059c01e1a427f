package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"openrecords/pkg/account"
	"openrecords/pkg/agency"
	"openrecords/pkg/comms"
	"openrecords/pkg/foia"
	"openrecords/pkg/task"
)

func fileFixture(t *testing.T, quota int, agencyStatus string) (*fixture, *account.User, *agency.Agency) {
	t.Helper()
	f := newFixture()
	ctx := context.Background()
	user, _ := f.users.Create(ctx, &account.User{
		Username: "requester", FullName: "Jane Doe", Quota: quota,
	})
	ag, _ := f.agencies.Create(ctx, &agency.Agency{Name: "Clerk's Office", Status: agencyStatus})
	return f, user, ag
}

// TestFileRequestApprovedAgency verifies the full filing sequence: composer,
// request with the agency's primary email, the initial communication, one
// quota unit consumed, and the submission job scheduled after commit.
func TestFileRequestApprovedAgency(t *testing.T) {
	f, user, ag := fileFixture(t, 3, agency.StatusApproved)
	ctx := context.Background()
	email, _ := f.comms.EnsureEmail(ctx, "clerk@city.gov")
	f.agencies.SetPrimaryEmail(ctx, ag.ID, email.ID)

	r, err := f.svc.FileRequest(ctx, FileRequestInput{
		UserID:        user.ID,
		AgencyID:      ag.ID,
		Title:         "Meeting Minutes",
		RequestedDocs: "all city council meeting minutes from 2025",
	})
	if err != nil {
		t.Fatalf("FileRequest: %v", err)
	}
	if r.Status != foia.StatusSubmitted || r.EmailID != email.ID || r.Slug != "meeting-minutes" {
		t.Errorf("request = %+v", r)
	}
	composer, err := f.foias.GetComposer(ctx, r.ComposerID)
	if err != nil {
		t.Fatalf("composer: %v", err)
	}
	if composer.Status != foia.ComposerFiled || composer.NumRequests != 1 {
		t.Errorf("composer = %+v", composer)
	}
	cs, _ := f.comms.ByFOIA(ctx, r.ID)
	if len(cs) != 1 || cs[0].Channel != comms.ChannelEmail {
		t.Fatalf("communications = %+v", cs)
	}
	if !strings.Contains(cs[0].Body, "all city council meeting minutes from 2025") {
		t.Errorf("body = %q", cs[0].Body)
	}
	if got, _ := f.users.Get(ctx, user.ID); got.Quota != 2 {
		t.Errorf("quota = %d, want 2", got.Quota)
	}
	if len(f.jobs.scheduled) != 1 || f.jobs.scheduled[0] != "foia.submit" {
		t.Fatalf("scheduled = %v, want [foia.submit]", f.jobs.scheduled)
	}
	if f.jobs.args[0]["foia_id"] != r.ID {
		t.Errorf("job args = %v", f.jobs.args[0])
	}
}

// TestFileRequestPendingAgency verifies that an unapproved agency holds the
// submission: a new-agency task is filed and no job is scheduled.
func TestFileRequestPendingAgency(t *testing.T) {
	f, user, ag := fileFixture(t, 1, agency.StatusPending)
	ctx := context.Background()

	if _, err := f.svc.FileRequest(ctx, FileRequestInput{
		UserID:        user.ID,
		AgencyID:      ag.ID,
		Title:         "Inspection Reports",
		RequestedDocs: "restaurant inspection reports",
	}); err != nil {
		t.Fatalf("FileRequest: %v", err)
	}
	pending := f.tasks.byType(task.TypeNewAgency)
	if len(pending) != 1 || pending[0].AgencyID != ag.ID || pending[0].UserID != user.ID {
		t.Fatalf("new-agency tasks = %+v", pending)
	}
	if len(f.jobs.scheduled) != 0 {
		t.Errorf("scheduled = %v, want none until approval", f.jobs.scheduled)
	}
}

// TestFileRequestNoQuota verifies that an exhausted user files nothing at
// all, not even a composer.
func TestFileRequestNoQuota(t *testing.T) {
	f, user, ag := fileFixture(t, 0, agency.StatusApproved)

	_, err := f.svc.FileRequest(context.Background(), FileRequestInput{
		UserID:        user.ID,
		AgencyID:      ag.ID,
		Title:         "Payroll",
		RequestedDocs: "payroll records",
	})
	if !errors.Is(err, ErrNoQuota) {
		t.Fatalf("err = %v, want ErrNoQuota", err)
	}
	if len(f.foias.composers) != 0 {
		t.Errorf("%d composers created without quota", len(f.foias.composers))
	}
}

// TestFileRequestAbortSchedulesNothing verifies the after-commit contract:
// a failure partway through the filing transaction must not let the
// submission job out.
func TestFileRequestAbortSchedulesNothing(t *testing.T) {
	f, user, ag := fileFixture(t, 1, agency.StatusApproved)
	f.foias.failCreateRequest = errors.New("insert failed")

	_, err := f.svc.FileRequest(context.Background(), FileRequestInput{
		UserID:        user.ID,
		AgencyID:      ag.ID,
		Title:         "Contracts",
		RequestedDocs: "vendor contracts",
	})
	if err == nil {
		t.Fatal("FileRequest succeeded past a failing insert")
	}
	if len(f.jobs.scheduled) != 0 {
		t.Errorf("scheduled = %v, want none after an aborted filing", f.jobs.scheduled)
	}
}

// TestChangeStatus verifies the requester-set status path: the request
// moves, and a status-change task carries the old status for staff review.
func TestChangeStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, _ := f.foias.CreateRequest(ctx, &foia.Request{Title: "Emails", Status: foia.StatusAck, UserID: "user-1"})

	if _, err := f.svc.ChangeStatus(ctx, r.ID, "bogus", "user-1"); err == nil {
		t.Fatal("unknown status accepted")
	}

	tk, err := f.svc.ChangeStatus(ctx, r.ID, foia.StatusDone, "user-1")
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if tk.Type != task.TypeStatusChange || tk.OldStatus != foia.StatusAck || tk.UserID != "user-1" {
		t.Errorf("task = %+v", tk)
	}
	if got, _ := f.foias.GetRequest(ctx, r.ID); got.Status != foia.StatusDone {
		t.Errorf("request status = %q", got.Status)
	}
}
