package foia

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed request store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTables creates the request tables if they don't exist.
func (s *PgStore) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS composers (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			title              TEXT NOT NULL DEFAULT '',
			requested_docs     TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL DEFAULT 'started',
			edited_boilerplate BOOLEAN NOT NULL DEFAULT FALSE,
			num_requests       INTEGER NOT NULL DEFAULT 0,
			created_at         TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS composer_agencies (
			composer_id TEXT NOT NULL,
			agency_id   TEXT NOT NULL,
			PRIMARY KEY (composer_id, agency_id)
		)`,
		`CREATE TABLE IF NOT EXISTS foia_requests (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			slug        TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'started',
			user_id     TEXT NOT NULL,
			composer_id TEXT NOT NULL DEFAULT '',
			agency_id   TEXT NOT NULL,
			email_id    TEXT NOT NULL DEFAULT '',
			fax_id      TEXT NOT NULL DEFAULT '',
			address_id  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			followup    TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_foia_agency ON foia_requests(agency_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_foia_composer ON foia_requests(composer_id)`,
		`CREATE TABLE IF NOT EXISTS foia_notes (
			id       TEXT PRIMARY KEY,
			foia_id  TEXT NOT NULL,
			author   TEXT NOT NULL DEFAULT '',
			text     TEXT NOT NULL,
			datetime TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const reqCols = `id, title, slug, status, user_id, composer_id, agency_id, email_id, fax_id, address_id, created_at, followup`

// CreateRequest inserts a new request.
func (s *PgStore) CreateRequest(ctx context.Context, r *Request) (*Request, error) {
	r.ID = uuid.Must(uuid.NewV7()).String()
	r.CreatedAt = time.Now().Truncate(time.Microsecond)
	if r.Status == "" {
		r.Status = StatusStarted
	}
	if r.Slug == "" {
		r.Slug = Slugify(r.Title)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO foia_requests (`+reqCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.Title, r.Slug, r.Status, r.UserID, r.ComposerID, r.AgencyID,
		r.EmailID, r.FaxID, r.AddressID, r.CreatedAt, r.Followup)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return r, nil
}

// GetRequest retrieves a single request by ID.
func (s *PgStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	var r Request
	err := s.db.QueryRow(ctx, `SELECT `+reqCols+` FROM foia_requests WHERE id = $1`, id).
		Scan(&r.ID, &r.Title, &r.Slug, &r.Status, &r.UserID, &r.ComposerID, &r.AgencyID,
			&r.EmailID, &r.FaxID, &r.AddressID, &r.CreatedAt, &r.Followup)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return &r, nil
}

// List returns requests filtered by status (empty = all), newest first.
func (s *PgStore) List(ctx context.Context, status string, limit int) ([]Request, error) {
	query := `SELECT ` + reqCols + ` FROM foia_requests ORDER BY created_at DESC LIMIT $1`
	args := []any{limit}
	if status != "" {
		query = `SELECT ` + reqCols + ` FROM foia_requests WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		args = []any{status, limit}
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// SetRequestStatus updates a request's status.
func (s *PgStore) SetRequestStatus(ctx context.Context, id, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE foia_requests SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set request status %s: %w", id, err)
	}
	return nil
}

// SetFollowup sets the next follow-up date; nil clears it.
func (s *PgStore) SetFollowup(ctx context.Context, id string, at *time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE foia_requests SET followup = $1 WHERE id = $2`, at, id)
	return err
}

// SetAgency reroutes a request to a different agency.
func (s *PgStore) SetAgency(ctx context.Context, id, agencyID string) error {
	_, err := s.db.Exec(ctx, `UPDATE foia_requests SET agency_id = $1 WHERE id = $2`, agencyID, id)
	return err
}

// SetContact rewires the request's contact columns per the update.
func (s *PgStore) SetContact(ctx context.Context, id string, u ContactUpdate) error {
	set := []string{}
	args := []any{}
	n := 1
	for col, val := range map[string]*string{
		"email_id":   u.Email,
		"fax_id":     u.Fax,
		"address_id": u.Address,
	} {
		if val != nil {
			set = append(set, fmt.Sprintf("%s = $%d", col, n))
			args = append(args, *val)
			n++
		}
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE foia_requests SET %s WHERE id = $%d`, strings.Join(set, ", "), n)
	_, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set contact %s: %w", id, err)
	}
	return nil
}

// ByAgency returns all of an agency's requests.
func (s *PgStore) ByAgency(ctx context.Context, agencyID string) ([]Request, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+reqCols+` FROM foia_requests WHERE agency_id = $1 ORDER BY created_at`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("requests by agency: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// OpenByAgency returns the agency's open requests with joined contact values,
// ordered by email status then email so that grouping sees stable runs.
func (s *PgStore) OpenByAgency(ctx context.Context, agencyID string) ([]ReviewRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.title, r.slug, r.status, r.user_id, r.composer_id, r.agency_id,
			r.email_id, r.fax_id, r.address_id, r.created_at, r.followup,
			COALESCE(e.email, ''), COALESCE(e.status, ''),
			COALESCE(p.number, ''), COALESCE(p.status, ''),
			EXTRACT(DAY FROM NOW() - (
				SELECT MAX(c.datetime) FROM communications c
				WHERE c.foia_id = r.id AND c.response
			))::int
		FROM foia_requests r
		LEFT JOIN email_addresses e ON e.id = r.email_id
		LEFT JOIN phone_numbers p ON p.id = r.fax_id
		WHERE r.agency_id = $1 AND r.status = ANY($2)
		ORDER BY e.status, e.email, p.number, r.created_at`,
		agencyID, OpenStatuses)
	if err != nil {
		return nil, fmt.Errorf("open requests by agency: %w", err)
	}
	defer rows.Close()

	var out []ReviewRequest
	for rows.Next() {
		var r ReviewRequest
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug, &r.Status, &r.UserID, &r.ComposerID,
			&r.AgencyID, &r.EmailID, &r.FaxID, &r.AddressID, &r.CreatedAt, &r.Followup,
			&r.Email, &r.EmailStatus, &r.Fax, &r.FaxStatus, &r.LatestResponseDays); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRequest removes a request and its communications.
func (s *PgStore) DeleteRequest(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM communications WHERE foia_id = $1`, id); err != nil {
		return fmt.Errorf("delete communications for %s: %w", id, err)
	}
	_, err := s.db.Exec(ctx, `DELETE FROM foia_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete request %s: %w", id, err)
	}
	return nil
}

// DeleteByAgency removes all of an agency's requests. Returns the count.
func (s *PgStore) DeleteByAgency(ctx context.Context, agencyID string) (int, error) {
	_, err := s.db.Exec(ctx, `
		DELETE FROM communications WHERE foia_id IN
			(SELECT id FROM foia_requests WHERE agency_id = $1)`, agencyID)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM foia_requests WHERE agency_id = $1`, agencyID)
	if err != nil {
		return 0, fmt.Errorf("delete requests by agency: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// AddNote attaches a staff note to a request.
func (s *PgStore) AddNote(ctx context.Context, n *Note) (*Note, error) {
	n.ID = uuid.Must(uuid.NewV7()).String()
	if n.Datetime.IsZero() {
		n.Datetime = time.Now().Truncate(time.Microsecond)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO foia_notes (id, foia_id, author, text, datetime)
		VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.FOIAID, n.Author, n.Text, n.Datetime)
	if err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}
	return n, nil
}

// CreateComposer inserts a composer and its agency set.
func (s *PgStore) CreateComposer(ctx context.Context, c *Composer, agencyIDs []string) (*Composer, error) {
	c.ID = uuid.Must(uuid.NewV7()).String()
	c.CreatedAt = time.Now().Truncate(time.Microsecond)
	if c.Status == "" {
		c.Status = ComposerStarted
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO composers (id, user_id, title, requested_docs, status, edited_boilerplate, num_requests, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.Title, c.RequestedDocs, c.Status, c.EditedBoilerplate, c.NumRequests, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create composer: %w", err)
	}
	for _, agencyID := range agencyIDs {
		_, err := s.db.Exec(ctx,
			`INSERT INTO composer_agencies (composer_id, agency_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			c.ID, agencyID)
		if err != nil {
			return nil, fmt.Errorf("attach agency %s: %w", agencyID, err)
		}
	}
	return c, nil
}

// GetComposer retrieves a composer by ID.
func (s *PgStore) GetComposer(ctx context.Context, id string) (*Composer, error) {
	var c Composer
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, title, requested_docs, status, edited_boilerplate, num_requests, created_at
		FROM composers WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.Title, &c.RequestedDocs, &c.Status, &c.EditedBoilerplate, &c.NumRequests, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get composer %s: %w", id, err)
	}
	return &c, nil
}

// SetComposerStatus updates a composer's status.
func (s *PgStore) SetComposerStatus(ctx context.Context, id, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE composers SET status = $1 WHERE id = $2`, status, id)
	return err
}

// ComposerAgencies returns the composer's target agency IDs.
func (s *PgStore) ComposerAgencies(ctx context.Context, composerID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT agency_id FROM composer_agencies WHERE composer_id = $1 ORDER BY agency_id`, composerID)
	if err != nil {
		return nil, fmt.Errorf("composer agencies: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveComposerAgency detaches an agency from a composer.
func (s *PgStore) RemoveComposerAgency(ctx context.Context, composerID, agencyID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM composer_agencies WHERE composer_id = $1 AND agency_id = $2`,
		composerID, agencyID)
	return err
}

// RequestsByComposer returns a composer's request rows.
func (s *PgStore) RequestsByComposer(ctx context.Context, composerID string) ([]Request, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+reqCols+` FROM foia_requests WHERE composer_id = $1 ORDER BY created_at`, composerID)
	if err != nil {
		return nil, fmt.Errorf("requests by composer: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// ReturnRequests gives n quota units back to the composer's owner.
func (s *PgStore) ReturnRequests(ctx context.Context, composerID string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE users SET quota = quota + $1
		WHERE id = (SELECT user_id FROM composers WHERE id = $2)`, n, composerID)
	if err != nil {
		return fmt.Errorf("return requests: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE composers SET num_requests = GREATEST(num_requests - $1, 0) WHERE id = $2`,
		n, composerID)
	return err
}

func scanRequests(rows pgx.Rows) ([]Request, error) {
	var out []Request
	for rows.Next() {
		var r Request
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug, &r.Status, &r.UserID, &r.ComposerID,
			&r.AgencyID, &r.EmailID, &r.FaxID, &r.AddressID, &r.CreatedAt, &r.Followup); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
