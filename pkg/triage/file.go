package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"openrecords/pkg/agency"
	"openrecords/pkg/comms"
	"openrecords/pkg/foia"
	"openrecords/pkg/task"
)

// ErrNoQuota is returned when filing a request for a user with no quota
// remaining.
var ErrNoQuota = errors.New("no request quota remaining")

// FileRequestInput is everything a new single-agency request needs.
type FileRequestInput struct {
	UserID            string
	AgencyID          string
	Title             string
	RequestedDocs     string
	EditedBoilerplate bool
}

// FileRequest files a new request against one agency: one composer, one
// request row, the initial communication, and one quota unit consumed, all
// in one transaction. An approved agency gets the submission job after
// commit; a pending one gets a new-agency task and the request waits on its
// outcome.
func (s *Service) FileRequest(ctx context.Context, in FileRequestInput) (*foia.Request, error) {
	if in.UserID == "" || in.AgencyID == "" || in.Title == "" || in.RequestedDocs == "" {
		return nil, fmt.Errorf("file request: user, agency, title and requested docs are required")
	}
	var out *foia.Request
	err := s.UoW.Transact(ctx, func(st Stores, h Hooks) error {
		user, err := st.Users.Get(ctx, in.UserID)
		if err != nil {
			return err
		}
		if user.Quota < 1 {
			return ErrNoQuota
		}
		ag, err := st.Agencies.Get(ctx, in.AgencyID)
		if err != nil {
			return err
		}
		var jur *agency.Jurisdiction
		if ag.JurisdictionID != "" {
			if jur, err = st.Agencies.GetJurisdiction(ctx, ag.JurisdictionID); err != nil {
				return err
			}
		}

		composer, err := st.FOIAs.CreateComposer(ctx, &foia.Composer{
			UserID:            in.UserID,
			Title:             in.Title,
			RequestedDocs:     in.RequestedDocs,
			Status:            foia.ComposerFiled,
			EditedBoilerplate: in.EditedBoilerplate,
			NumRequests:       1,
		}, []string{in.AgencyID})
		if err != nil {
			return err
		}

		emailID, err := st.Agencies.PrimaryEmail(ctx, in.AgencyID)
		if err != nil {
			return err
		}
		out, err = st.FOIAs.CreateRequest(ctx, &foia.Request{
			Title:      in.Title,
			Slug:       foia.Slugify(in.Title),
			Status:     foia.StatusSubmitted,
			UserID:     in.UserID,
			ComposerID: composer.ID,
			AgencyID:   in.AgencyID,
			EmailID:    emailID,
		})
		if err != nil {
			return err
		}

		channel := comms.ChannelMail
		if emailID != "" {
			channel = comms.ChannelEmail
		}
		body := foia.InitialCommunicationText(
			in.RequestedDocs, user.FullName, jur, ag.Name,
			in.EditedBoilerplate, ag.RequiresProxy)
		if _, err := st.Comms.CreateCommunication(ctx, &comms.Communication{
			FOIAID:  out.ID,
			Channel: channel,
			From:    user.FullName,
			Subject: in.Title,
			Body:    body,
		}); err != nil {
			return err
		}
		if _, err := st.Users.AddQuota(ctx, in.UserID, -1); err != nil {
			return err
		}

		if ag.Status != agency.StatusApproved {
			_, err := st.Tasks.Create(ctx, &task.Task{
				Type:     task.TypeNewAgency,
				AgencyID: in.AgencyID,
				UserID:   in.UserID,
			})
			return err
		}
		foiaID := out.ID
		h.OnCommit(func(ctx context.Context) error {
			_, err := s.Jobs.Schedule(ctx, "foia.submit",
				map[string]any{"foia_id": foiaID}, time.Now())
			return err
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeStatus records a status the requester set on their own request and
// files a status-change task so staff can verify it. The old status rides
// on the task.
func (s *Service) ChangeStatus(ctx context.Context, foiaID, status, actor string) (*task.Task, error) {
	if !foia.ValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	var out *task.Task
	err := s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		r, err := st.FOIAs.GetRequest(ctx, foiaID)
		if err != nil {
			return err
		}
		if err := st.FOIAs.SetRequestStatus(ctx, foiaID, status); err != nil {
			return err
		}
		out, err = st.Tasks.Create(ctx, &task.Task{
			Type:      task.TypeStatusChange,
			FOIAID:    foiaID,
			UserID:    actor,
			OldStatus: r.Status,
		})
		return err
	})
	return out, err
}
