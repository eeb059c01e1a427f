package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed notification store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTable creates the notifications table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			actor       TEXT NOT NULL DEFAULT '',
			verb        TEXT NOT NULL,
			object_type TEXT NOT NULL,
			object_id   TEXT NOT NULL DEFAULT '',
			owner_id    TEXT NOT NULL DEFAULT '',
			datetime    TIMESTAMPTZ NOT NULL,
			read        BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(user_id, read, datetime)`)
	return err
}

// Append inserts a notification.
func (s *PgStore) Append(ctx context.Context, n *Notification) (*Notification, error) {
	n.ID = uuid.Must(uuid.NewV7()).String()
	if n.Datetime.IsZero() {
		n.Datetime = time.Now().Truncate(time.Microsecond)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, actor, verb, object_type, object_id, owner_id, datetime, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`,
		n.ID, n.UserID, n.Actor, n.Verb, n.ObjectType, n.ObjectID, n.OwnerID, n.Datetime)
	if err != nil {
		return nil, fmt.Errorf("append notification: %w", err)
	}
	return n, nil
}

// UnreadSince returns the user's unread notifications newer than since,
// oldest first.
func (s *PgStore) UnreadSince(ctx context.Context, userID string, since time.Time) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, actor, verb, object_type, object_id, owner_id, datetime, read
		FROM notifications
		WHERE user_id = $1 AND NOT read AND datetime >= $2
		ORDER BY datetime`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("unread for %s: %w", userID, err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Actor, &n.Verb, &n.ObjectType, &n.ObjectID, &n.OwnerID, &n.Datetime, &n.Read); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks notifications read.
func (s *PgStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = ANY($1)`, ids)
	return err
}

// Count returns the total notification count.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n)
	return n, err
}
