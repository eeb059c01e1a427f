package crowdfund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed crowdfund store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTables creates the crowdfund tables if they don't exist.
func (s *PgStore) EnsureTables(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS crowdfunds (
			id           TEXT PRIMARY KEY,
			foia_id      TEXT NOT NULL,
			name         TEXT NOT NULL,
			goal_cents   INTEGER NOT NULL,
			raised_cents INTEGER NOT NULL DEFAULT 0,
			closed       BOOLEAN NOT NULL DEFAULT FALSE,
			deadline     TIMESTAMPTZ,
			created_at   TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS crowdfund_payments (
			id            TEXT PRIMARY KEY,
			crowdfund_id  TEXT NOT NULL REFERENCES crowdfunds(id),
			user_id       TEXT NOT NULL DEFAULT '',
			amount_cents  INTEGER NOT NULL,
			anonymous     BOOLEAN NOT NULL DEFAULT FALSE,
			datetime      TIMESTAMPTZ NOT NULL
		)`)
	return err
}

const crowdfundCols = `id, foia_id, name, goal_cents, raised_cents, closed, deadline, created_at`

func scanCrowdfund(row pgx.Row) (*Crowdfund, error) {
	var c Crowdfund
	err := row.Scan(&c.ID, &c.FOIAID, &c.Name, &c.GoalCents, &c.RaisedCents, &c.Closed, &c.Deadline, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a crowdfund.
func (s *PgStore) Create(ctx context.Context, c *Crowdfund) (*Crowdfund, error) {
	c.ID = uuid.Must(uuid.NewV7()).String()
	c.CreatedAt = time.Now().Truncate(time.Microsecond)
	_, err := s.db.Exec(ctx, `
		INSERT INTO crowdfunds (id, foia_id, name, goal_cents, raised_cents, closed, deadline, created_at)
		VALUES ($1, $2, $3, $4, 0, FALSE, $5, $6)`,
		c.ID, c.FOIAID, c.Name, c.GoalCents, c.Deadline, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create crowdfund: %w", err)
	}
	return c, nil
}

// Get fetches one crowdfund by id.
func (s *PgStore) Get(ctx context.Context, id string) (*Crowdfund, error) {
	c, err := scanCrowdfund(s.db.QueryRow(ctx,
		`SELECT `+crowdfundCols+` FROM crowdfunds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("crowdfund %s not found", id)
	}
	return c, err
}

// AddPayment records a payment and bumps the raised total in one statement
// each, relying on the caller to run inside a transaction when atomicity
// across both writes matters.
func (s *PgStore) AddPayment(ctx context.Context, p *Payment) (*Crowdfund, error) {
	p.ID = uuid.Must(uuid.NewV7()).String()
	p.Datetime = time.Now().Truncate(time.Microsecond)
	_, err := s.db.Exec(ctx, `
		INSERT INTO crowdfund_payments (id, crowdfund_id, user_id, amount_cents, anonymous, datetime)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.CrowdfundID, p.UserID, p.AmountCents, p.Anonymous, p.Datetime)
	if err != nil {
		return nil, fmt.Errorf("add payment: %w", err)
	}
	return scanCrowdfund(s.db.QueryRow(ctx, `
		UPDATE crowdfunds SET raised_cents = raised_cents + $1
		WHERE id = $2
		RETURNING `+crowdfundCols, p.AmountCents, p.CrowdfundID))
}

// Close marks the crowdfund finished.
func (s *PgStore) Close(ctx context.Context, id string) (*Crowdfund, error) {
	c, err := scanCrowdfund(s.db.QueryRow(ctx, `
		UPDATE crowdfunds SET closed = TRUE
		WHERE id = $1
		RETURNING `+crowdfundCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("crowdfund %s not found", id)
	}
	return c, err
}

// Payments lists a crowdfund's payments, oldest first.
func (s *PgStore) Payments(ctx context.Context, crowdfundID string) ([]Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, crowdfund_id, user_id, amount_cents, anonymous, datetime
		FROM crowdfund_payments
		WHERE crowdfund_id = $1
		ORDER BY datetime`, crowdfundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.CrowdfundID, &p.UserID, &p.AmountCents, &p.Anonymous, &p.Datetime); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Open lists all crowdfunds still accepting contributions.
func (s *PgStore) Open(ctx context.Context) ([]Crowdfund, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+crowdfundCols+` FROM crowdfunds
		WHERE NOT closed
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCrowdfunds(rows)
}

// OpenPastDeadline lists open crowdfunds whose deadline has passed.
func (s *PgStore) OpenPastDeadline(ctx context.Context, now time.Time) ([]Crowdfund, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+crowdfundCols+` FROM crowdfunds
		WHERE NOT closed AND deadline IS NOT NULL AND deadline < $1
		ORDER BY deadline`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCrowdfunds(rows)
}

func collectCrowdfunds(rows pgx.Rows) ([]Crowdfund, error) {
	var out []Crowdfund
	for rows.Next() {
		var c Crowdfund
		if err := rows.Scan(&c.ID, &c.FOIAID, &c.Name, &c.GoalCents, &c.RaisedCents, &c.Closed, &c.Deadline, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
