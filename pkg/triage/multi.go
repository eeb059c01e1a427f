package triage

import (
	"context"
	"fmt"
	"time"

	"openrecords/pkg/foia"
	"openrecords/pkg/task"
)

// SubmitMulti approves a multi-agency composer, keeping only the listed
// agencies. Requests aimed at dropped agencies are deleted and their quota
// returned; the surviving composer is submitted after commit.
func (s *Service) SubmitMulti(ctx context.Context, taskID string, keepAgencyIDs []string, actor string) error {
	keep := make(map[string]bool, len(keepAgencyIDs))
	for _, id := range keepAgencyIDs {
		keep[id] = true
	}
	return s.UoW.Transact(ctx, func(st Stores, h Hooks) error {
		t, err := s.getMultiTask(ctx, st, taskID)
		if err != nil {
			return err
		}

		agencyIDs, err := st.FOIAs.ComposerAgencies(ctx, t.ComposerID)
		if err != nil {
			return err
		}
		requests, err := st.FOIAs.RequestsByComposer(ctx, t.ComposerID)
		if err != nil {
			return err
		}

		// One quota unit comes back per removed agency, whether or not a
		// request row was ever created for it.
		returned := 0
		for _, agencyID := range agencyIDs {
			if keep[agencyID] {
				continue
			}
			if err := st.FOIAs.RemoveComposerAgency(ctx, t.ComposerID, agencyID); err != nil {
				return err
			}
			for _, r := range requests {
				if r.AgencyID != agencyID {
					continue
				}
				if err := st.FOIAs.DeleteRequest(ctx, r.ID); err != nil {
					return err
				}
			}
			returned++
		}
		if returned > 0 {
			if err := st.FOIAs.ReturnRequests(ctx, t.ComposerID, returned); err != nil {
				return err
			}
		}

		composerID := t.ComposerID
		h.OnCommit(func(ctx context.Context) error {
			_, err := s.Jobs.Schedule(ctx, "composer.submit",
				map[string]any{"composer_id": composerID}, time.Now())
			return err
		})

		_, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		return err
	})
}

// RejectMulti returns every request the composer consumed and puts it back
// in the draft state.
func (s *Service) RejectMulti(ctx context.Context, taskID, actor string) error {
	return s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		t, err := s.getMultiTask(ctx, st, taskID)
		if err != nil {
			return err
		}
		composer, err := st.FOIAs.GetComposer(ctx, t.ComposerID)
		if err != nil {
			return err
		}
		if composer.NumRequests > 0 {
			if err := st.FOIAs.ReturnRequests(ctx, t.ComposerID, composer.NumRequests); err != nil {
				return err
			}
		}
		if err := st.FOIAs.SetComposerStatus(ctx, t.ComposerID, foia.ComposerStarted); err != nil {
			return err
		}
		_, err = st.Tasks.Resolve(ctx, taskID, actor, nil)
		return err
	})
}

func (s *Service) getMultiTask(ctx context.Context, st Stores, taskID string) (*task.Task, error) {
	t, err := st.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Type != task.TypeMultiRequest {
		return nil, fmt.Errorf("task %s is %s, not multirequest", taskID, t.Type)
	}
	return t, nil
}
