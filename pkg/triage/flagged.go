package triage

import (
	"context"
	"fmt"

	"openrecords/pkg/mailer"
	"openrecords/pkg/task"
)

// FlaggedObject returns what a flagged task points at, as a type and id.
// A flag with no object is a data error and surfaces as ErrNoFlaggedObject.
func FlaggedObject(t *task.Task) (string, string, error) {
	switch {
	case t.FOIAID != "":
		return "request", t.FOIAID, nil
	case t.AgencyID != "":
		return "agency", t.AgencyID, nil
	case t.JurisdictionID != "":
		return "jurisdiction", t.JurisdictionID, nil
	default:
		return "", "", ErrNoFlaggedObject
	}
}

// ReplyFlagged emails the user who raised the flag and resolves the task.
func (s *Service) ReplyFlagged(ctx context.Context, taskID, actor, text string) error {
	return s.UoW.Transact(ctx, func(st Stores, h Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Type != task.TypeFlagged {
			return fmt.Errorf("task %s is %s, not flagged", taskID, t.Type)
		}
		if _, _, err := FlaggedObject(t); err != nil {
			return err
		}
		if t.UserID == "" {
			return fmt.Errorf("flagged task %s has no user to reply to", taskID)
		}
		user, err := st.Users.Get(ctx, t.UserID)
		if err != nil {
			return err
		}

		email := mailer.Email{
			Subject: "Response to your flag",
			From:    s.From,
			To:      []string{user.Email},
			Body:    text,
		}
		h.OnCommit(func(ctx context.Context) error {
			return s.Sender.Send(ctx, email)
		})

		_, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		return err
	})
}

// ResolveStale closes a historical stale-agency task. The agency's stale
// flag clears with it, so old rows can still be worked down.
func (s *Service) ResolveStale(ctx context.Context, taskID, actor string) (*task.Task, error) {
	var out *task.Task
	err := s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Type != task.TypeStaleAgency {
			return fmt.Errorf("task %s is %s, not stale_agency", taskID, t.Type)
		}
		if err := st.Agencies.SetStale(ctx, t.AgencyID, false); err != nil {
			return err
		}
		out, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		return err
	})
	return out, err
}
