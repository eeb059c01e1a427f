package triage

import (
	"context"
	"fmt"
	"time"

	"openrecords/pkg/activity"
	"openrecords/pkg/foia"
	"openrecords/pkg/mailer"
	"openrecords/pkg/task"
)

// statusSettable are the task types whose resolution sets a request status.
var statusSettable = map[task.Type]bool{
	task.TypeResponse:  true,
	task.TypeSnailMail: true,
	task.TypePortal:    true,
}

// SetStatus resolves a response, snail-mail or portal task by recording the
// status on both the communication and its request. The request's owner
// hears about the transition on the notification stream once it commits.
func (s *Service) SetStatus(ctx context.Context, taskID, status, actor string) (*task.Task, error) {
	if !foia.ValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	var out *task.Task
	err := s.UoW.Transact(ctx, func(st Stores, h Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if !statusSettable[t.Type] {
			return fmt.Errorf("task %s is %s, cannot set a status", taskID, t.Type)
		}

		if err := st.Comms.SetStatus(ctx, t.CommunicationID, status); err != nil {
			return err
		}
		c, err := st.Comms.GetCommunication(ctx, t.CommunicationID)
		if err != nil {
			return err
		}
		r, err := st.FOIAs.GetRequest(ctx, c.FOIAID)
		if err != nil {
			return err
		}
		if err := st.FOIAs.SetRequestStatus(ctx, r.ID, status); err != nil {
			return err
		}
		if verb := foia.StatusVerb(status); verb != "" {
			s.notify(h, activity.Notification{
				UserID:     r.UserID,
				Actor:      actor,
				Verb:       fmt.Sprintf("%q %s", r.Title, verb),
				ObjectType: activity.ObjectRequest,
				ObjectID:   r.ID,
				OwnerID:    r.UserID,
				Datetime:   time.Now(),
			})
		}

		out, err = st.Tasks.Resolve(ctx, taskID, actor, map[string]any{"status": status})
		return err
	})
	return out, err
}

// UpdateText replaces the body of a snail-mail task's communication before
// it goes to the printer.
func (s *Service) UpdateText(ctx context.Context, taskID, text string) error {
	return s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Type != task.TypeSnailMail {
			return fmt.Errorf("task %s is %s, not snail_mail", taskID, t.Type)
		}
		return st.Comms.SetBody(ctx, t.CommunicationID, text)
	})
}

// RecordCheck notes on the request that a check was mailed and queues the
// accounting notice. The task stays open; mailing a check is not the end of
// the payment flow.
func (s *Service) RecordCheck(ctx context.Context, taskID string, number int, amountCents int, actor string) (*foia.Note, error) {
	var note *foia.Note
	err := s.UoW.Transact(ctx, func(st Stores, h Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Type != task.TypeSnailMail {
			return fmt.Errorf("task %s is %s, not snail_mail", taskID, t.Type)
		}
		c, err := st.Comms.GetCommunication(ctx, t.CommunicationID)
		if err != nil {
			return err
		}
		r, err := st.FOIAs.GetRequest(ctx, c.FOIAID)
		if err != nil {
			return err
		}
		ag, err := st.Agencies.Get(ctx, r.AgencyID)
		if err != nil {
			return err
		}
		signer, err := st.Users.Get(ctx, actor)
		if err != nil {
			return err
		}

		amount := fmt.Sprintf("$%d.%02d", amountCents/100, amountCents%100)
		note, err = st.FOIAs.AddNote(ctx, &foia.Note{
			FOIAID: r.ID,
			Author: actor,
			Text:   fmt.Sprintf("A check (#%d) of %s was mailed to the agency.", number, amount),
		})
		if err != nil {
			return err
		}

		payableTo := ag.PayableTo
		if payableTo == "" {
			payableTo = ag.Name
		}
		email := mailer.Email{
			Subject: fmt.Sprintf("[CHECK MAILED] Check #%d", number),
			From:    s.From,
			To:      []string{s.CheckEmail},
			Body: fmt.Sprintf(
				"Check #%d for %s, payable to %s, was mailed on %s.\nSigned by %s for request %s.\n",
				number, amount, payableTo,
				time.Now().Format("2006-01-02"), signer.FullName, r.Title),
		}
		h.OnCommit(func(ctx context.Context) error {
			return s.Sender.Send(ctx, email)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}
