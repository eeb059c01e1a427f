package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrCardDeclined is returned when the payment provider refuses the charge.
// It is user error, not system error.
var ErrCardDeclined = errors.New("payment declined")

// Charger charges a payment token. Amounts are in cents.
type Charger interface {
	Charge(ctx context.Context, token string, amountCents int, description string) error
}

// HTTPCharger charges through a Stripe-style form-encoded API.
type HTTPCharger struct {
	URL    string
	APIKey string
	Client *http.Client
}

type chargeResp struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Charge implements Charger.
func (c *HTTPCharger) Charge(ctx context.Context, token string, amountCents int, description string) error {
	form := url.Values{
		"source":      {token},
		"amount":      {strconv.Itoa(amountCents)},
		"currency":    {"usd"},
		"description": {description},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.APIKey, "")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("charge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body chargeResp
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error.Type == "card_error" {
		return fmt.Errorf("%w: %s", ErrCardDeclined, body.Error.Message)
	}
	return fmt.Errorf("charge: status %d: %s", resp.StatusCode, body.Error.Message)
}

// PriceCents is the purchase price for n requests, with a bulk discount at 20.
func PriceCents(n int) int {
	per := 500
	if n >= 20 {
		per = 400
	}
	return n * per
}

// BuyRequests charges the payment token and credits quota to the recipient.
// A decline surfaces as ErrCardDeclined with nothing credited.
func BuyRequests(ctx context.Context, store Store, charger Charger, recipientID, token string, n int) (*User, error) {
	if n <= 0 {
		return nil, fmt.Errorf("buy requests: count must be positive")
	}
	price := PriceCents(n)
	desc := fmt.Sprintf("%d requests", n)
	if err := charger.Charge(ctx, token, price, desc); err != nil {
		if errors.Is(err, ErrCardDeclined) {
			log.Printf("account: payment declined for %s: %v", recipientID, err)
		}
		return nil, err
	}
	user, err := store.AddQuota(ctx, recipientID, n)
	if err != nil {
		return nil, fmt.Errorf("credit quota after charge: %w", err)
	}
	return user, nil
}
