package triage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"openrecords/pkg/comms"
	"openrecords/pkg/foia"
	"openrecords/pkg/task"
)

// InboundEmail is one message arriving from the outside: an agency reply,
// a portal notification, or stray mail. The recipient's local part carries
// the request id the message was addressed to.
type InboundEmail struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// Channel defaults to email; portal replies arrive tagged portal.
	Channel string `json:"channel,omitempty"`
}

// ReceiveEmail records an inbound message on the communication log. A
// message matching a request files a response task (portal task for portal
// replies) and confirms the sender's address; one matching nothing files an
// orphan task, unless the sender's domain is blacklisted, in which case the
// message is dropped with only a log line. Returns the created
// communication and task, either of which may be nil for dropped mail.
func (s *Service) ReceiveEmail(ctx context.Context, in InboundEmail) (*comms.Communication, *task.Task, error) {
	if in.From == "" {
		return nil, nil, fmt.Errorf("receive email: no sender")
	}
	channel := in.Channel
	if channel == "" {
		channel = comms.ChannelEmail
	}

	var (
		c *comms.Communication
		t *task.Task
	)
	err := s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		var r *foia.Request
		if id, _, ok := strings.Cut(in.To, "@"); ok && id != "" {
			r, _ = st.FOIAs.GetRequest(ctx, id)
		}
		if r == nil {
			var err error
			c, t, err = s.receiveOrphan(ctx, st, in, channel)
			return err
		}

		sender, err := st.Comms.EnsureEmail(ctx, in.From)
		if err != nil {
			return err
		}
		c, err = st.Comms.CreateCommunication(ctx, &comms.Communication{
			FOIAID:      r.ID,
			Channel:     channel,
			Response:    true,
			From:        in.From,
			To:          in.To,
			Subject:     in.Subject,
			Body:        in.Body,
			FromEmailID: sender.ID,
		})
		if err != nil {
			return err
		}
		// Hearing from an address confirms it works.
		if _, err := st.Comms.RecordEvent(ctx, &comms.DeliveryEvent{
			Kind:            comms.EventConfirm,
			EmailID:         sender.ID,
			CommunicationID: c.ID,
		}); err != nil {
			return err
		}

		next := &task.Task{
			Type:            task.TypeResponse,
			CommunicationID: c.ID,
			FOIAID:          r.ID,
		}
		if channel == comms.ChannelPortal {
			next = &task.Task{
				Type:            task.TypePortal,
				Category:        task.CategoryIncoming,
				CommunicationID: c.ID,
				FOIAID:          r.ID,
			}
		}
		t, err = st.Tasks.Create(ctx, next)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return c, t, nil
}

// receiveOrphan handles mail that matches no request. A blacklisted sender
// domain suppresses the whole thing; otherwise the message lands on the log
// without a request and an orphan task points staff at it.
func (s *Service) receiveOrphan(ctx context.Context, st Stores, in InboundEmail, channel string) (*comms.Communication, *task.Task, error) {
	blocked, err := st.Comms.IsBlacklisted(ctx, comms.Domain(in.From))
	if err != nil {
		return nil, nil, err
	}
	if blocked {
		log.Printf("triage: dropped mail from blacklisted sender %s", in.From)
		return nil, nil, nil
	}

	sender, err := st.Comms.EnsureEmail(ctx, in.From)
	if err != nil {
		return nil, nil, err
	}
	c, err := st.Comms.CreateCommunication(ctx, &comms.Communication{
		Channel:     channel,
		Response:    true,
		From:        in.From,
		To:          in.To,
		Subject:     in.Subject,
		Body:        in.Body,
		FromEmailID: sender.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	t, err := st.Tasks.Create(ctx, &task.Task{
		Type:            task.TypeOrphan,
		Reason:          task.ReasonInvalidAddress,
		Address:         in.From,
		CommunicationID: c.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, t, nil
}

// DeliveryNotice is a provider callback about an outbound message: a
// bounce or fax failure, an open, or a delivery confirmation.
type DeliveryNotice struct {
	Kind            string `json:"kind"` // error, open or confirm
	Email           string `json:"email,omitempty"`
	Fax             string `json:"fax,omitempty"`
	CommunicationID string `json:"communication_id,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

// errorReviewEvents is how many delivery errors an address accrues before
// its agency goes up for review.
const errorReviewEvents = 3

// RecordDelivery records a delivery event against the address it names,
// rolling the address status forward. An error that brings the address to
// the review threshold files a review task for the agency behind it, unless
// one is already open.
func (s *Service) RecordDelivery(ctx context.Context, n DeliveryNotice) error {
	switch n.Kind {
	case comms.EventError, comms.EventOpen, comms.EventConfirm:
	default:
		return fmt.Errorf("record delivery: unknown event kind %q", n.Kind)
	}
	return s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		ev := &comms.DeliveryEvent{
			Kind:            n.Kind,
			CommunicationID: n.CommunicationID,
			Detail:          n.Detail,
		}
		var stats func(context.Context, []string) (map[string]comms.AddressStats, error)
		switch {
		case n.Email != "":
			e, err := st.Comms.EnsureEmail(ctx, n.Email)
			if err != nil {
				return err
			}
			ev.EmailID = e.ID
			stats = st.Comms.EmailStats
		case n.Fax != "":
			p, err := st.Comms.EnsurePhone(ctx, n.Fax, "fax")
			if err != nil {
				return err
			}
			ev.PhoneID = p.ID
			stats = st.Comms.PhoneStats
		default:
			return fmt.Errorf("record delivery: no address")
		}
		if _, err := st.Comms.RecordEvent(ctx, ev); err != nil {
			return err
		}
		if n.Kind != comms.EventError || n.CommunicationID == "" {
			return nil
		}
		return s.reviewOnErrors(ctx, st, ev, stats)
	})
}

// reviewOnErrors files a review task for the agency behind an address whose
// error count has reached the threshold. An already-open review task for
// the agency absorbs further errors.
func (s *Service) reviewOnErrors(ctx context.Context, st Stores, ev *comms.DeliveryEvent,
	stats func(context.Context, []string) (map[string]comms.AddressStats, error)) error {
	addrID := ev.EmailID
	if addrID == "" {
		addrID = ev.PhoneID
	}
	m, err := stats(ctx, []string{addrID})
	if err != nil {
		return err
	}
	if m[addrID].TotalErrors < errorReviewEvents {
		return nil
	}

	c, err := st.Comms.GetCommunication(ctx, ev.CommunicationID)
	if err != nil {
		return err
	}
	if c.FOIAID == "" {
		return nil
	}
	r, err := st.FOIAs.GetRequest(ctx, c.FOIAID)
	if err != nil {
		return err
	}

	open := false
	existing, err := st.Tasks.List(ctx, task.Filter{Type: task.TypeReviewAgency, Resolved: &open})
	if err != nil {
		return err
	}
	for _, t := range existing {
		if t.AgencyID == r.AgencyID {
			return nil
		}
	}
	_, err = st.Tasks.Create(ctx, &task.Task{
		Type:     task.TypeReviewAgency,
		AgencyID: r.AgencyID,
	})
	return err
}
