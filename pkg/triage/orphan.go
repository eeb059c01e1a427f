package triage

import (
	"context"
	"fmt"
	"log"

	"openrecords/pkg/comms"
	"openrecords/pkg/foia"
	"openrecords/pkg/task"
)

// MoveOrphan attaches the orphan's communication to the given requests,
// files a response task for each placed copy, makes the sender the primary
// contact on each request, and resolves the orphan. All or nothing.
func (s *Service) MoveOrphan(ctx context.Context, taskID string, foiaIDs []string, actor string) ([]comms.Communication, error) {
	if len(foiaIDs) == 0 {
		return nil, fmt.Errorf("move orphan: no target requests")
	}
	var moved []comms.Communication
	err := s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Type != task.TypeOrphan {
			return fmt.Errorf("task %s is %s, not orphan", taskID, t.Type)
		}

		moved, err = st.Comms.Move(ctx, t.CommunicationID, foiaIDs)
		if err != nil {
			return fmt.Errorf("move communication: %w", err)
		}
		for _, c := range moved {
			if _, err := st.Tasks.Create(ctx, &task.Task{
				Type:              task.TypeResponse,
				CommunicationID:   c.ID,
				FOIAID:            c.FOIAID,
				CreatedFromOrphan: true,
			}); err != nil {
				return err
			}
			if err := makeSenderPrimary(ctx, st, &c); err != nil {
				return err
			}
		}

		_, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// makeSenderPrimary points the request's email contact at the sender of an
// inbound communication, so replies go where the agency actually writes from.
func makeSenderPrimary(ctx context.Context, st Stores, c *comms.Communication) error {
	if !c.Response || c.FromEmailID == "" {
		return nil
	}
	return st.FOIAs.SetContact(ctx, c.FOIAID, foia.ContactUpdate{
		Email: foia.Set(c.FromEmailID),
	})
}

// RejectOrphan resolves the orphan. With blacklist set it also records the
// sender's domain and resolves every other open orphan from that domain, so
// one decision clears the whole backlog from a noisy sender.
func (s *Service) RejectOrphan(ctx context.Context, taskID, actor string, blacklist bool) (*task.Task, error) {
	var out *task.Task
	err := s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Type != task.TypeOrphan {
			return fmt.Errorf("task %s is %s, not orphan", taskID, t.Type)
		}

		out, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		if err != nil {
			return err
		}
		if !blacklist {
			return nil
		}

		domain := comms.Domain(t.Address)
		if domain == "" {
			return nil
		}
		if _, err := st.Comms.Blacklist(ctx, domain); err != nil {
			return err
		}
		siblings, err := st.Tasks.OpenOrphansByDomain(ctx, domain)
		if err != nil {
			return err
		}
		for _, sib := range siblings {
			if _, err := st.Tasks.Resolve(ctx, sib.ID, actor, nil); err != nil {
				return err
			}
		}
		if len(siblings) > 0 {
			log.Printf("triage: blacklisted %s, resolved %d matching orphans", domain, len(siblings))
		}
		return nil
	})
	return out, err
}
