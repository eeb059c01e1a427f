package agency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed agency store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTables creates the agency tables if they don't exist.
func (s *PgStore) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jurisdictions (
			id       TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			legal    TEXT NOT NULL DEFAULT '',
			abbrev   TEXT NOT NULL DEFAULT '',
			days     INTEGER NOT NULL DEFAULT 0,
			day_type TEXT NOT NULL DEFAULT 'business'
		)`,
		`CREATE TABLE IF NOT EXISTS agencies (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			jurisdiction_id TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT 'pending',
			stale           BOOLEAN NOT NULL DEFAULT FALSE,
			payable_to      TEXT NOT NULL DEFAULT '',
			requires_proxy  BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agencies_status ON agencies(status)`,
		// Contact relations. request_type 'primary' marks the default
		// destination for new requests; 'none' keeps the row for history.
		`CREATE TABLE IF NOT EXISTS agency_emails (
			id           TEXT PRIMARY KEY,
			agency_id    TEXT NOT NULL,
			email_id     TEXT NOT NULL,
			request_type TEXT NOT NULL DEFAULT 'none'
		)`,
		`CREATE TABLE IF NOT EXISTS agency_phones (
			id           TEXT PRIMARY KEY,
			agency_id    TEXT NOT NULL,
			phone_id     TEXT NOT NULL,
			request_type TEXT NOT NULL DEFAULT 'none'
		)`,
		`CREATE TABLE IF NOT EXISTS agency_addresses (
			id         TEXT PRIMARY KEY,
			agency_id  TEXT NOT NULL,
			address_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agency_emails ON agency_emails(agency_id)`,
		`CREATE INDEX IF NOT EXISTS idx_agency_phones ON agency_phones(agency_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const agencyCols = `id, name, jurisdiction_id, status, stale, payable_to, requires_proxy, created_at`

// Create inserts a new agency.
func (s *PgStore) Create(ctx context.Context, a *Agency) (*Agency, error) {
	a.ID = uuid.Must(uuid.NewV7()).String()
	a.CreatedAt = time.Now().Truncate(time.Microsecond)
	if a.Status == "" {
		a.Status = StatusPending
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO agencies (id, name, jurisdiction_id, status, stale, payable_to, requires_proxy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Name, a.JurisdictionID, a.Status, a.Stale, a.PayableTo, a.RequiresProxy, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create agency: %w", err)
	}
	return a, nil
}

// Get retrieves a single agency by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*Agency, error) {
	var a Agency
	err := s.db.QueryRow(ctx, `SELECT `+agencyCols+` FROM agencies WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.JurisdictionID, &a.Status, &a.Stale, &a.PayableTo, &a.RequiresProxy, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get agency %s: %w", id, err)
	}
	return &a, nil
}

// List returns agencies filtered by status (empty = all).
func (s *PgStore) List(ctx context.Context, status string) ([]Agency, error) {
	query := `SELECT ` + agencyCols + ` FROM agencies ORDER BY name`
	var args []any
	if status != "" {
		query = `SELECT ` + agencyCols + ` FROM agencies WHERE status = $1 ORDER BY name`
		args = []any{status}
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	defer rows.Close()
	var agencies []Agency
	for rows.Next() {
		var a Agency
		if err := rows.Scan(&a.ID, &a.Name, &a.JurisdictionID, &a.Status, &a.Stale, &a.PayableTo, &a.RequiresProxy, &a.CreatedAt); err != nil {
			return nil, err
		}
		agencies = append(agencies, a)
	}
	return agencies, rows.Err()
}

// SetStatus updates the approval status.
func (s *PgStore) SetStatus(ctx context.Context, id, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE agencies SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set agency status %s: %w", id, err)
	}
	return nil
}

// SetStale toggles the stale flag.
func (s *PgStore) SetStale(ctx context.Context, id string, stale bool) error {
	_, err := s.db.Exec(ctx, `UPDATE agencies SET stale = $1 WHERE id = $2`, stale, id)
	return err
}

// ClearPrimaryEmails demotes all primary email assignments to 'none'.
func (s *PgStore) ClearPrimaryEmails(ctx context.Context, agencyID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE agency_emails SET request_type = 'none' WHERE agency_id = $1 AND request_type = 'primary'`,
		agencyID)
	return err
}

// ClearPrimaryFaxes demotes all primary fax assignments to 'none'.
func (s *PgStore) ClearPrimaryFaxes(ctx context.Context, agencyID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE agency_phones SET request_type = 'none' WHERE agency_id = $1 AND request_type = 'primary'`,
		agencyID)
	return err
}

// SetPrimaryEmail records the email as the agency's default destination.
func (s *PgStore) SetPrimaryEmail(ctx context.Context, agencyID, emailID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agency_emails (id, agency_id, email_id, request_type)
		VALUES ($1, $2, $3, 'primary')`,
		uuid.Must(uuid.NewV7()).String(), agencyID, emailID)
	return err
}

// SetPrimaryFax records the fax number as the agency's default destination.
func (s *PgStore) SetPrimaryFax(ctx context.Context, agencyID, phoneID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agency_phones (id, agency_id, phone_id, request_type)
		VALUES ($1, $2, $3, 'primary')`,
		uuid.Must(uuid.NewV7()).String(), agencyID, phoneID)
	return err
}

// PrimaryEmail returns the agency's default destination email ID, or "".
func (s *PgStore) PrimaryEmail(ctx context.Context, agencyID string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT email_id FROM agency_emails WHERE agency_id = $1 AND request_type = 'primary' LIMIT 1`,
		agencyID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("primary email for %s: %w", agencyID, err)
	}
	return id, nil
}

// MailingAddress returns the agency's first mailing address ID, or "".
func (s *PgStore) MailingAddress(ctx context.Context, agencyID string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT address_id FROM agency_addresses WHERE agency_id = $1 ORDER BY id LIMIT 1`,
		agencyID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("mailing address for %s: %w", agencyID, err)
	}
	return id, nil
}

// CreateJurisdiction inserts a new jurisdiction.
func (s *PgStore) CreateJurisdiction(ctx context.Context, j *Jurisdiction) (*Jurisdiction, error) {
	j.ID = uuid.Must(uuid.NewV7()).String()
	if j.DayType == "" {
		j.DayType = "business"
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO jurisdictions (id, name, legal, abbrev, days, day_type)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.Name, j.Legal, j.Abbrev, j.Days, j.DayType)
	if err != nil {
		return nil, fmt.Errorf("create jurisdiction: %w", err)
	}
	return j, nil
}

// GetJurisdiction retrieves a jurisdiction by ID.
func (s *PgStore) GetJurisdiction(ctx context.Context, id string) (*Jurisdiction, error) {
	var j Jurisdiction
	err := s.db.QueryRow(ctx,
		`SELECT id, name, legal, abbrev, days, day_type FROM jurisdictions WHERE id = $1`, id).
		Scan(&j.ID, &j.Name, &j.Legal, &j.Abbrev, &j.Days, &j.DayType)
	if err != nil {
		return nil, fmt.Errorf("get jurisdiction %s: %w", id, err)
	}
	return &j, nil
}

// Count returns the total agency count.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM agencies`).Scan(&n)
	return n, err
}

// CountByStatus returns the agency count for one status.
func (s *PgStore) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM agencies WHERE status = $1`, status).Scan(&n)
	return n, err
}

// StaleCount returns the count of stale agencies.
func (s *PgStore) StaleCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM agencies WHERE stale`).Scan(&n)
	return n, err
}
