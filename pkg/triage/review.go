package triage

import (
	"context"
	"fmt"

	"openrecords/pkg/comms"
	"openrecords/pkg/foia"
	"openrecords/pkg/task"
)

// Contact kinds for review-agency resolution.
const (
	ContactEmail = "email"
	ContactFax   = "fax"
	ContactSnail = "snail"
)

// ReviewGroup is one address on the review screen with the open requests
// still pointed at it and its delivery history.
type ReviewGroup struct {
	Kind      string              `json:"kind"` // email, fax or snail
	AddressID string              `json:"address_id,omitempty"`
	Address   string              `json:"address"`
	Error     bool                `json:"error"`
	Stats     comms.AddressStats  `json:"stats"`
	Requests  []foia.ReviewRequest `json:"requests"`
}

// ReviewData groups an agency's open requests by the address they go out
// through: email groups first, then fax, then one bucket for requests with
// no electronic contact at all.
func (s *Service) ReviewData(ctx context.Context, taskID string) ([]ReviewGroup, error) {
	var groups []ReviewGroup
	err := s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Type != task.TypeReviewAgency {
			return fmt.Errorf("task %s is %s, not review_agency", taskID, t.Type)
		}

		open, err := st.FOIAs.OpenByAgency(ctx, t.AgencyID)
		if err != nil {
			return err
		}

		emailGroups := groupBy(open, func(r foia.ReviewRequest) (string, string) {
			return r.EmailID, r.Email
		})
		faxGroups := groupBy(open, func(r foia.ReviewRequest) (string, string) {
			return r.FaxID, r.Fax
		})

		emailStats, err := st.Comms.EmailStats(ctx, groupIDs(emailGroups))
		if err != nil {
			return err
		}
		faxStats, err := st.Comms.PhoneStats(ctx, groupIDs(faxGroups))
		if err != nil {
			return err
		}

		for _, g := range emailGroups {
			stats := emailStats[g.AddressID]
			groups = append(groups, ReviewGroup{
				Kind:      ContactEmail,
				AddressID: g.AddressID,
				Address:   g.Address,
				Error:     stats.Status == comms.AddrError,
				Stats:     stats,
				Requests:  g.Requests,
			})
		}
		for _, g := range faxGroups {
			stats := faxStats[g.AddressID]
			groups = append(groups, ReviewGroup{
				Kind:      ContactFax,
				AddressID: g.AddressID,
				Address:   g.Address,
				Error:     stats.Status == comms.AddrError,
				Stats:     stats,
				Requests:  g.Requests,
			})
		}

		var snail []foia.ReviewRequest
		for _, r := range open {
			if r.EmailID == "" && r.FaxID == "" {
				snail = append(snail, r)
			}
		}
		if len(snail) > 0 {
			groups = append(groups, ReviewGroup{
				Kind:     ContactSnail,
				Address:  "Snail Mail",
				Requests: snail,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

type addressGroup struct {
	AddressID string
	Address   string
	Requests  []foia.ReviewRequest
}

// groupBy buckets requests by a contact column, preserving first-seen order
// and skipping requests where the column is empty.
func groupBy(rs []foia.ReviewRequest, key func(foia.ReviewRequest) (string, string)) []addressGroup {
	index := make(map[string]int)
	var out []addressGroup
	for _, r := range rs {
		id, addr := key(r)
		if id == "" {
			continue
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, addressGroup{AddressID: id, Address: addr})
		}
		out[i].Requests = append(out[i].Requests, r)
	}
	return out
}

func groupIDs(gs []addressGroup) []string {
	ids := make([]string, len(gs))
	for i, g := range gs {
		ids[i] = g.AddressID
	}
	return ids
}

// UpdateContact rewires where the listed requests go out. With updateAgency
// set, the new contact also becomes the agency's primary for future
// requests. Snail mail falls back to the agency's mailing address and clears
// both electronic contacts.
func (s *Service) UpdateContact(ctx context.Context, taskID, kind, contactID string, foiaIDs []string, updateAgency bool) error {
	return s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		t, err := st.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Type != task.TypeReviewAgency {
			return fmt.Errorf("task %s is %s, not review_agency", taskID, t.Type)
		}

		if updateAgency {
			if err := st.Agencies.ClearPrimaryEmails(ctx, t.AgencyID); err != nil {
				return err
			}
			if kind == ContactFax || kind == ContactSnail {
				if err := st.Agencies.ClearPrimaryFaxes(ctx, t.AgencyID); err != nil {
					return err
				}
			}
			switch kind {
			case ContactEmail:
				if err := st.Agencies.SetPrimaryEmail(ctx, t.AgencyID, contactID); err != nil {
					return err
				}
			case ContactFax:
				if err := st.Agencies.SetPrimaryFax(ctx, t.AgencyID, contactID); err != nil {
					return err
				}
			}
		}

		switch kind {
		case ContactEmail:
			return s.pointAtEmail(ctx, st, contactID, foiaIDs)
		case ContactFax:
			return updateAll(ctx, st, foiaIDs, foia.ContactUpdate{
				Email: foia.Clear(),
				Fax:   foia.Set(contactID),
			})
		case ContactSnail:
			addrID, err := st.Agencies.MailingAddress(ctx, t.AgencyID)
			if err != nil {
				return err
			}
			return updateAll(ctx, st, foiaIDs, foia.ContactUpdate{
				Email:   foia.Clear(),
				Fax:     foia.Clear(),
				Address: foia.Set(addrID),
			})
		default:
			return fmt.Errorf("unknown contact kind %q", kind)
		}
	})
}

// pointAtEmail sets the email on each request and drops any fax that is not
// known good, so a broken fax never shadows a working email.
func (s *Service) pointAtEmail(ctx context.Context, st Stores, emailID string, foiaIDs []string) error {
	for _, id := range foiaIDs {
		u := foia.ContactUpdate{Email: foia.Set(emailID)}
		r, err := st.FOIAs.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.FaxID != "" {
			fax, err := st.Comms.GetPhone(ctx, r.FaxID)
			if err != nil {
				return err
			}
			if fax.Status != comms.AddrGood {
				u.Fax = foia.Clear()
			}
		}
		if err := st.FOIAs.SetContact(ctx, id, u); err != nil {
			return err
		}
	}
	return nil
}

func updateAll(ctx context.Context, st Stores, foiaIDs []string, u foia.ContactUpdate) error {
	for _, id := range foiaIDs {
		if err := st.FOIAs.SetContact(ctx, id, u); err != nil {
			return err
		}
	}
	return nil
}
