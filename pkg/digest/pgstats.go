package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"openrecords/internal/db"
)

// PgStatsStore measures snapshots with one query across the live tables.
// It is the only store that reads tables owned by other packages; keeping
// the cross-cutting SQL here means the domain stores stay narrow.
type PgStatsStore struct {
	db db.Querier
}

// NewPgStatsStore creates a PgStatsStore.
func NewPgStatsStore(q db.Querier) *PgStatsStore {
	return &PgStatsStore{db: q}
}

// EnsureTable creates the statistics table if it doesn't exist.
func (s *PgStatsStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS statistics (
			id                 TEXT PRIMARY KEY,
			date               DATE NOT NULL UNIQUE,
			total_requests     INTEGER NOT NULL,
			requests_submitted INTEGER NOT NULL,
			unresolved_tasks   INTEGER NOT NULL,
			unresolved_orphans INTEGER NOT NULL,
			total_comms        INTEGER NOT NULL,
			total_users        INTEGER NOT NULL,
			pro_users          INTEGER NOT NULL,
			total_agencies     INTEGER NOT NULL,
			stale_agencies     INTEGER NOT NULL,
			new_agencies       INTEGER NOT NULL
		)`)
	return err
}

// Snapshot measures the database and upserts the row for the given date.
func (s *PgStatsStore) Snapshot(ctx context.Context, date time.Time) (*Statistics, error) {
	st := Statistics{Date: date.UTC().Truncate(24 * time.Hour)}
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM foia_requests),
			(SELECT COUNT(*) FROM foia_requests WHERE status = 'submitted'),
			(SELECT COUNT(*) FROM tasks WHERE NOT resolved),
			(SELECT COUNT(*) FROM tasks WHERE NOT resolved AND type = 'orphan'),
			(SELECT COUNT(*) FROM communications),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE quota > 0),
			(SELECT COUNT(*) FROM agencies),
			(SELECT COUNT(*) FROM agencies WHERE stale),
			(SELECT COUNT(*) FROM agencies WHERE status = 'pending')`).Scan(
		&st.TotalRequests, &st.RequestsSubmitted, &st.UnresolvedTasks,
		&st.UnresolvedOrphans, &st.TotalComms, &st.TotalUsers, &st.ProUsers,
		&st.TotalAgencies, &st.StaleAgencies, &st.NewAgencies)
	if err != nil {
		return nil, fmt.Errorf("measure statistics: %w", err)
	}

	st.ID = uuid.Must(uuid.NewV7()).String()
	_, err = s.db.Exec(ctx, `
		INSERT INTO statistics (id, date, total_requests, requests_submitted,
			unresolved_tasks, unresolved_orphans, total_comms, total_users,
			pro_users, total_agencies, stale_agencies, new_agencies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (date) DO UPDATE SET
			total_requests = EXCLUDED.total_requests,
			requests_submitted = EXCLUDED.requests_submitted,
			unresolved_tasks = EXCLUDED.unresolved_tasks,
			unresolved_orphans = EXCLUDED.unresolved_orphans,
			total_comms = EXCLUDED.total_comms,
			total_users = EXCLUDED.total_users,
			pro_users = EXCLUDED.pro_users,
			total_agencies = EXCLUDED.total_agencies,
			stale_agencies = EXCLUDED.stale_agencies,
			new_agencies = EXCLUDED.new_agencies`,
		st.ID, st.Date, st.TotalRequests, st.RequestsSubmitted,
		st.UnresolvedTasks, st.UnresolvedOrphans, st.TotalComms, st.TotalUsers,
		st.ProUsers, st.TotalAgencies, st.StaleAgencies, st.NewAgencies)
	if err != nil {
		return nil, fmt.Errorf("store statistics: %w", err)
	}
	return &st, nil
}

// ByDate returns the snapshot for the given date, or nil if none exists.
func (s *PgStatsStore) ByDate(ctx context.Context, date time.Time) (*Statistics, error) {
	var st Statistics
	err := s.db.QueryRow(ctx, `
		SELECT id, date, total_requests, requests_submitted, unresolved_tasks,
			unresolved_orphans, total_comms, total_users, pro_users,
			total_agencies, stale_agencies, new_agencies
		FROM statistics WHERE date = $1`, date.UTC().Truncate(24*time.Hour)).Scan(
		&st.ID, &st.Date, &st.TotalRequests, &st.RequestsSubmitted,
		&st.UnresolvedTasks, &st.UnresolvedOrphans, &st.TotalComms,
		&st.TotalUsers, &st.ProUsers, &st.TotalAgencies, &st.StaleAgencies,
		&st.NewAgencies)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}
