package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"openrecords/pkg/activity"
)

type nullNotifications struct{}

func (nullNotifications) Append(_ context.Context, n *activity.Notification) (*activity.Notification, error) {
	return n, nil
}

func (nullNotifications) UnreadSince(context.Context, string, time.Time) ([]activity.Notification, error) {
	return nil, nil
}
func (nullNotifications) MarkRead(context.Context, []string) error { return nil }
func (nullNotifications) Count(context.Context) (int, error)       { return 0, nil }
func (nullNotifications) EnsureTable(context.Context) error        { return nil }

// TestNotificationStream verifies the event stream end to end: the opening
// comment confirms the subscription before any append, and an appended
// notification arrives as a data event.
func TestNotificationStream(t *testing.T) {
	bus := activity.NewBus(nullNotifications{})
	srv := httptest.NewServer(New(Deps{Notifications: bus}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read opening: %v", err)
	}
	if !strings.HasPrefix(line, ": connected") {
		t.Fatalf("opening line = %q", line)
	}

	if _, err := bus.Append(context.Background(), &activity.Notification{
		UserID: "u1",
		Verb:   "completed",
	}); err != nil {
		t.Fatal(err)
	}

	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var got activity.Notification
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if got.Verb != "completed" || got.UserID != "u1" {
			t.Errorf("event = %+v", got)
		}
		return
	}
}
