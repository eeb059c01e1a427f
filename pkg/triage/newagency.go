package triage

import (
	"context"
	"fmt"
	"time"

	"openrecords/pkg/agency"
	"openrecords/pkg/foia"
	"openrecords/pkg/mailer"
	"openrecords/pkg/task"
)

// ApproveAgency marks the agency approved and resubmits its pending
// requests with regenerated boilerplate.
func (s *Service) ApproveAgency(ctx context.Context, taskID, actor string) error {
	return s.UoW.Transact(ctx, func(st Stores, h Hooks) error {
		t, err := s.getNewAgencyTask(ctx, st, taskID)
		if err != nil {
			return err
		}
		if err := st.Agencies.SetStatus(ctx, t.AgencyID, agency.StatusApproved); err != nil {
			return err
		}
		if err := s.resubmitRequests(ctx, st, h, t.AgencyID, ""); err != nil {
			return err
		}
		_, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		return err
	})
}

// RejectAgency marks the agency rejected. With a replacement the pending
// requests move to it and are resubmitted; without one they are deleted,
// the submitter gets their quota back and an explanatory email.
func (s *Service) RejectAgency(ctx context.Context, taskID, actor, replacementID string) error {
	return s.UoW.Transact(ctx, func(st Stores, h Hooks) error {
		t, err := s.getNewAgencyTask(ctx, st, taskID)
		if err != nil {
			return err
		}
		if err := st.Agencies.SetStatus(ctx, t.AgencyID, agency.StatusRejected); err != nil {
			return err
		}

		if replacementID != "" {
			if err := s.resubmitRequests(ctx, st, h, t.AgencyID, replacementID); err != nil {
				return err
			}
		} else if err := s.unwindRequests(ctx, st, h, t); err != nil {
			return err
		}

		_, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		return err
	})
}

// SpamAgency rejects the agency, deactivates the submitting user and drops
// their requests without returning quota.
func (s *Service) SpamAgency(ctx context.Context, taskID, actor string) error {
	return s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		t, err := s.getNewAgencyTask(ctx, st, taskID)
		if err != nil {
			return err
		}
		if err := st.Agencies.SetStatus(ctx, t.AgencyID, agency.StatusRejected); err != nil {
			return err
		}
		if t.UserID != "" {
			if err := st.Users.SetActive(ctx, t.UserID, false); err != nil {
				return err
			}
		}
		if _, err := st.FOIAs.DeleteByAgency(ctx, t.AgencyID); err != nil {
			return err
		}
		_, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		return err
	})
}

func (s *Service) getNewAgencyTask(ctx context.Context, st Stores, taskID string) (*task.Task, error) {
	t, err := st.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Type != task.TypeNewAgency {
		return nil, fmt.Errorf("task %s is %s, not new_agency", taskID, t.Type)
	}
	return t, nil
}

// resubmitRequests regenerates each pending request's first communication
// and schedules its submission for after commit. A non-empty replacementID
// also moves the request to the replacement agency first.
func (s *Service) resubmitRequests(ctx context.Context, st Stores, h Hooks, agencyID, replacementID string) error {
	target := agencyID
	if replacementID != "" {
		target = replacementID
	}
	ag, err := st.Agencies.Get(ctx, target)
	if err != nil {
		return err
	}
	jur, err := st.Agencies.GetJurisdiction(ctx, ag.JurisdictionID)
	if err != nil {
		return err
	}

	requests, err := st.FOIAs.ByAgency(ctx, agencyID)
	if err != nil {
		return err
	}
	for _, r := range requests {
		if replacementID != "" {
			if err := st.FOIAs.SetAgency(ctx, r.ID, replacementID); err != nil {
				return err
			}
		}
		cs, err := st.Comms.ByFOIA(ctx, r.ID)
		if err != nil {
			return err
		}
		if len(cs) == 0 {
			continue
		}
		composer, err := st.FOIAs.GetComposer(ctx, r.ComposerID)
		if err != nil {
			return err
		}
		user, err := st.Users.Get(ctx, r.UserID)
		if err != nil {
			return err
		}
		// The jurisdiction may have changed with the agency, so the legal
		// boilerplate has to be rebuilt.
		body := foia.InitialCommunicationText(
			composer.RequestedDocs, user.FullName, jur, ag.Name,
			composer.EditedBoilerplate, ag.RequiresProxy)
		if err := st.Comms.SetBody(ctx, cs[0].ID, body); err != nil {
			return err
		}

		foiaID := r.ID
		h.OnCommit(func(ctx context.Context) error {
			_, err := s.Jobs.Schedule(ctx, "foia.submit",
				map[string]any{"foia_id": foiaID}, time.Now())
			return err
		})
	}
	return nil
}

// unwindRequests deletes the rejected agency's requests, returns one quota
// unit per request, resets emptied composers to drafts and queues the
// explanation email.
func (s *Service) unwindRequests(ctx context.Context, st Stores, h Hooks, t *task.Task) error {
	requests, err := st.FOIAs.ByAgency(ctx, t.AgencyID)
	if err != nil {
		return err
	}
	composers := make(map[string]bool)
	for _, r := range requests {
		if r.ComposerID != "" {
			if err := st.FOIAs.ReturnRequests(ctx, r.ComposerID, 1); err != nil {
				return err
			}
			composers[r.ComposerID] = true
		}
		if err := st.FOIAs.DeleteRequest(ctx, r.ID); err != nil {
			return err
		}
	}
	for composerID := range composers {
		if err := st.FOIAs.RemoveComposerAgency(ctx, composerID, t.AgencyID); err != nil {
			return err
		}
		remaining, err := st.FOIAs.RequestsByComposer(ctx, composerID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if err := st.FOIAs.SetComposerStatus(ctx, composerID, foia.ComposerStarted); err != nil {
				return err
			}
		}
	}

	if len(requests) == 0 || t.UserID == "" {
		return nil
	}
	user, err := st.Users.Get(ctx, t.UserID)
	if err != nil {
		return err
	}
	ag, err := st.Agencies.Get(ctx, t.AgencyID)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("We need your help with your request, %q", requests[0].Title)
	if len(requests) > 1 {
		subject += ", and others"
	}
	body := fmt.Sprintf(
		"The agency you filed with, %s, could not be approved, and your "+
			"requests to it have been returned to your account. Please pick "+
			"another agency and refile.\n", ag.Name)
	email := mailer.Email{
		Subject: subject,
		From:    s.From,
		To:      []string{user.Email},
		Body:    body,
	}
	h.OnCommit(func(ctx context.Context) error {
		return s.Sender.Send(ctx, email)
	})
	return nil
}
