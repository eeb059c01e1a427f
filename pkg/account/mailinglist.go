package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrMemberExists signals that the address is already subscribed. Callers
// treat it as informational, not a failure.
var ErrMemberExists = errors.New("email is already a member of this list")

// MailingList adds addresses to a newsletter list.
type MailingList interface {
	Subscribe(ctx context.Context, email string) error
}

// HTTPMailingList subscribes addresses through a MailChimp-style REST API:
// POST {root}/lists/{list}/members/ with an apikey Authorization header.
type HTTPMailingList struct {
	Root   string
	APIKey string
	ListID string
	Client *http.Client
}

type memberReq struct {
	EmailAddress string `json:"email_address"`
	Status       string `json:"status"`
}

type memberErr struct {
	Title string `json:"title"`
}

// Subscribe implements MailingList. A 400 "Member Exists" response maps to
// ErrMemberExists.
func (m *HTTPMailingList) Subscribe(ctx context.Context, email string) error {
	body, err := json.Marshal(memberReq{EmailAddress: email, Status: "pending"})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/lists/%s/members/", m.Root, m.ListID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "apikey "+m.APIKey)

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", email, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusBadRequest {
		var e memberErr
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Title == "Member Exists" {
			return ErrMemberExists
		}
	}
	return fmt.Errorf("subscribe %s: status %d", email, resp.StatusCode)
}
