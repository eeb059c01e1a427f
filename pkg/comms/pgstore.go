package comms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed communication store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTables creates the communication tables if they don't exist.
func (s *PgStore) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS email_addresses (
			id     TEXT PRIMARY KEY,
			email  TEXT NOT NULL UNIQUE,
			name   TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'unconfirmed'
		)`,
		`CREATE TABLE IF NOT EXISTS phone_numbers (
			id     TEXT PRIMARY KEY,
			number TEXT NOT NULL,
			type   TEXT NOT NULL DEFAULT 'fax',
			status TEXT NOT NULL DEFAULT 'unconfirmed',
			UNIQUE (number, type)
		)`,
		`CREATE TABLE IF NOT EXISTS addresses (
			id     TEXT PRIMARY KEY,
			street TEXT NOT NULL DEFAULT '',
			city   TEXT NOT NULL DEFAULT '',
			state  TEXT NOT NULL DEFAULT '',
			zip    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS communications (
			id            TEXT PRIMARY KEY,
			foia_id       TEXT NOT NULL,
			channel       TEXT NOT NULL,
			response      BOOLEAN NOT NULL DEFAULT FALSE,
			datetime      TIMESTAMPTZ NOT NULL,
			from_addr     TEXT NOT NULL DEFAULT '',
			to_addr       TEXT NOT NULL DEFAULT '',
			subject       TEXT NOT NULL DEFAULT '',
			body          TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT '',
			delivered     TEXT NOT NULL DEFAULT '',
			from_email_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comms_foia ON communications(foia_id, datetime)`,
		`CREATE INDEX IF NOT EXISTS idx_comms_datetime ON communications(datetime)`,
		`CREATE TABLE IF NOT EXISTS delivery_events (
			id               TEXT PRIMARY KEY,
			kind             TEXT NOT NULL,
			email_id         TEXT NOT NULL DEFAULT '',
			phone_id         TEXT NOT NULL DEFAULT '',
			communication_id TEXT NOT NULL DEFAULT '',
			datetime         TIMESTAMPTZ NOT NULL,
			detail           TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_email ON delivery_events(email_id, datetime)`,
		`CREATE INDEX IF NOT EXISTS idx_events_phone ON delivery_events(phone_id, datetime)`,
		`CREATE TABLE IF NOT EXISTS blacklist_domains (
			id     TEXT PRIMARY KEY,
			domain TEXT NOT NULL UNIQUE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const commCols = `id, foia_id, channel, response, datetime, from_addr, to_addr, subject, body, status, delivered, from_email_id`

// CreateCommunication inserts a new communication.
func (s *PgStore) CreateCommunication(ctx context.Context, c *Communication) (*Communication, error) {
	c.ID = uuid.Must(uuid.NewV7()).String()
	if c.Datetime.IsZero() {
		c.Datetime = time.Now().Truncate(time.Microsecond)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO communications (`+commCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.FOIAID, c.Channel, c.Response, c.Datetime, c.From, c.To, c.Subject, c.Body, c.Status, c.Delivered, c.FromEmailID)
	if err != nil {
		return nil, fmt.Errorf("create communication: %w", err)
	}
	return c, nil
}

// GetCommunication retrieves a single communication by ID.
func (s *PgStore) GetCommunication(ctx context.Context, id string) (*Communication, error) {
	var c Communication
	err := s.db.QueryRow(ctx, `SELECT `+commCols+` FROM communications WHERE id = $1`, id).
		Scan(&c.ID, &c.FOIAID, &c.Channel, &c.Response, &c.Datetime, &c.From, &c.To, &c.Subject, &c.Body, &c.Status, &c.Delivered, &c.FromEmailID)
	if err != nil {
		return nil, fmt.Errorf("get communication %s: %w", id, err)
	}
	return &c, nil
}

// ByFOIA returns a request's communications in chronological order.
func (s *PgStore) ByFOIA(ctx context.Context, foiaID string) ([]Communication, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+commCols+` FROM communications WHERE foia_id = $1 ORDER BY datetime`, foiaID)
	if err != nil {
		return nil, fmt.Errorf("communications for %s: %w", foiaID, err)
	}
	defer rows.Close()
	return scanComms(rows)
}

// Move reassigns the communication to the first target and clones it to the
// rest.
func (s *PgStore) Move(ctx context.Context, commID string, foiaIDs []string) ([]Communication, error) {
	if len(foiaIDs) == 0 {
		return nil, fmt.Errorf("move %s: no target requests", commID)
	}
	orig, err := s.GetCommunication(ctx, commID)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(ctx, `UPDATE communications SET foia_id = $1 WHERE id = $2`, foiaIDs[0], commID)
	if err != nil {
		return nil, fmt.Errorf("move %s: %w", commID, err)
	}
	orig.FOIAID = foiaIDs[0]
	moved := []Communication{*orig}

	for _, foiaID := range foiaIDs[1:] {
		clone := *orig
		clone.ID = uuid.Must(uuid.NewV7()).String()
		clone.FOIAID = foiaID
		_, err := s.db.Exec(ctx, `
			INSERT INTO communications (`+commCols+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			clone.ID, clone.FOIAID, clone.Channel, clone.Response, clone.Datetime,
			clone.From, clone.To, clone.Subject, clone.Body, clone.Status, clone.Delivered, clone.FromEmailID)
		if err != nil {
			return nil, fmt.Errorf("clone %s to %s: %w", commID, foiaID, err)
		}
		moved = append(moved, clone)
	}
	return moved, nil
}

// SetStatus overrides a communication's status.
func (s *PgStore) SetStatus(ctx context.Context, id, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE communications SET status = $1 WHERE id = $2`, status, id)
	return err
}

// SetBody applies a staff correction to the body text.
func (s *PgStore) SetBody(ctx context.Context, id, body string) error {
	_, err := s.db.Exec(ctx, `UPDATE communications SET body = $1 WHERE id = $2`, body, id)
	return err
}

// CountBetween counts communications in [start, end] by direction.
func (s *PgStore) CountBetween(ctx context.Context, start, end time.Time, response bool) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM communications WHERE datetime BETWEEN $1 AND $2 AND response = $3`,
		start, end, response).Scan(&n)
	return n, err
}

// CountDelivered counts outbound communications delivered on a channel.
func (s *PgStore) CountDelivered(ctx context.Context, start, end time.Time, channel string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM communications
		WHERE datetime BETWEEN $1 AND $2 AND NOT response AND delivered = $3`,
		start, end, channel).Scan(&n)
	return n, err
}

// EnsureEmail finds or creates the record for an email address.
func (s *PgStore) EnsureEmail(ctx context.Context, email string) (*EmailAddress, error) {
	var e EmailAddress
	err := s.db.QueryRow(ctx,
		`SELECT id, email, name, status FROM email_addresses WHERE email = $1`, email).
		Scan(&e.ID, &e.Email, &e.Name, &e.Status)
	if err == nil {
		return &e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup email %s: %w", email, err)
	}
	e = EmailAddress{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Email:  email,
		Status: AddrUnconfirmed,
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO email_addresses (id, email, status) VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO NOTHING`,
		e.ID, e.Email, e.Status)
	if err != nil {
		return nil, fmt.Errorf("create email %s: %w", email, err)
	}
	// A concurrent insert may have won; read back the canonical row.
	err = s.db.QueryRow(ctx,
		`SELECT id, email, name, status FROM email_addresses WHERE email = $1`, email).
		Scan(&e.ID, &e.Email, &e.Name, &e.Status)
	if err != nil {
		return nil, fmt.Errorf("reread email %s: %w", email, err)
	}
	return &e, nil
}

// GetEmail retrieves an email address record by ID.
func (s *PgStore) GetEmail(ctx context.Context, id string) (*EmailAddress, error) {
	var e EmailAddress
	err := s.db.QueryRow(ctx,
		`SELECT id, email, name, status FROM email_addresses WHERE id = $1`, id).
		Scan(&e.ID, &e.Email, &e.Name, &e.Status)
	if err != nil {
		return nil, fmt.Errorf("get email %s: %w", id, err)
	}
	return &e, nil
}

// EnsurePhone finds or creates the record for a phone or fax number.
func (s *PgStore) EnsurePhone(ctx context.Context, number, phoneType string) (*PhoneNumber, error) {
	if phoneType == "" {
		phoneType = "fax"
	}
	var p PhoneNumber
	err := s.db.QueryRow(ctx,
		`SELECT id, number, type, status FROM phone_numbers WHERE number = $1 AND type = $2`,
		number, phoneType).
		Scan(&p.ID, &p.Number, &p.Type, &p.Status)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup phone %s: %w", number, err)
	}
	p = PhoneNumber{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Number: number,
		Type:   phoneType,
		Status: AddrUnconfirmed,
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO phone_numbers (id, number, type, status) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (number, type) DO NOTHING`,
		p.ID, p.Number, p.Type, p.Status)
	if err != nil {
		return nil, fmt.Errorf("create phone %s: %w", number, err)
	}
	err = s.db.QueryRow(ctx,
		`SELECT id, number, type, status FROM phone_numbers WHERE number = $1 AND type = $2`,
		number, phoneType).
		Scan(&p.ID, &p.Number, &p.Type, &p.Status)
	if err != nil {
		return nil, fmt.Errorf("reread phone %s: %w", number, err)
	}
	return &p, nil
}

// GetPhone retrieves a phone number record by ID.
func (s *PgStore) GetPhone(ctx context.Context, id string) (*PhoneNumber, error) {
	var p PhoneNumber
	err := s.db.QueryRow(ctx,
		`SELECT id, number, type, status FROM phone_numbers WHERE id = $1`, id).
		Scan(&p.ID, &p.Number, &p.Type, &p.Status)
	if err != nil {
		return nil, fmt.Errorf("get phone %s: %w", id, err)
	}
	return &p, nil
}

// RecordEvent appends a delivery event and updates the address status.
func (s *PgStore) RecordEvent(ctx context.Context, e *DeliveryEvent) (*DeliveryEvent, error) {
	e.ID = uuid.Must(uuid.NewV7()).String()
	if e.Datetime.IsZero() {
		e.Datetime = time.Now().Truncate(time.Microsecond)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_events (id, kind, email_id, phone_id, communication_id, datetime, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Kind, e.EmailID, e.PhoneID, e.CommunicationID, e.Datetime, e.Detail)
	if err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}

	status := AddrGood
	if e.Kind == EventError {
		status = AddrError
	}
	if e.EmailID != "" {
		_, err = s.db.Exec(ctx, `UPDATE email_addresses SET status = $1 WHERE id = $2`, status, e.EmailID)
	} else if e.PhoneID != "" {
		_, err = s.db.Exec(ctx, `UPDATE phone_numbers SET status = $1 WHERE id = $2`, status, e.PhoneID)
	}
	if err != nil {
		return nil, fmt.Errorf("roll address status: %w", err)
	}
	return e, nil
}

// EmailStats aggregates delivery history per email address.
func (s *PgStore) EmailStats(ctx context.Context, ids []string) (map[string]AddressStats, error) {
	return s.addressStats(ctx, "email_id", "email_addresses", ids, true)
}

// PhoneStats aggregates delivery history per fax number.
func (s *PgStore) PhoneStats(ctx context.Context, ids []string) (map[string]AddressStats, error) {
	return s.addressStats(ctx, "phone_id", "phone_numbers", ids, false)
}

func (s *PgStore) addressStats(ctx context.Context, refCol, addrTable string, ids []string, withOpens bool) (map[string]AddressStats, error) {
	stats := make(map[string]AddressStats, len(ids))
	if len(ids) == 0 {
		return stats, nil
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT a.id, a.status,
			COUNT(*) FILTER (WHERE e.kind = 'error'),
			MAX(e.datetime) FILTER (WHERE e.kind = 'error'),
			MAX(e.datetime) FILTER (WHERE e.kind = 'confirm'),
			MAX(e.datetime) FILTER (WHERE e.kind = 'open')
		FROM %s a
		LEFT JOIN delivery_events e ON e.%s = a.id
		WHERE a.id = ANY($1)
		GROUP BY a.id, a.status`, addrTable, refCol), ids)
	if err != nil {
		return nil, fmt.Errorf("address stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var st AddressStats
		if err := rows.Scan(&id, &st.Status, &st.TotalErrors, &st.LastError, &st.LastConfirm, &st.LastOpen); err != nil {
			return nil, err
		}
		if !withOpens {
			st.LastOpen = nil
		}
		stats[id] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Up to 5 most recent errors per address for the review screen.
	errRows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT id, kind, email_id, phone_id, communication_id, datetime, detail FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY datetime DESC) AS rn
			FROM delivery_events
			WHERE kind = 'error' AND %s = ANY($1)
		) ranked WHERE rn <= 5
		ORDER BY datetime DESC`, refCol, refCol), ids)
	if err != nil {
		return nil, fmt.Errorf("recent errors: %w", err)
	}
	defer errRows.Close()
	for errRows.Next() {
		var e DeliveryEvent
		if err := errRows.Scan(&e.ID, &e.Kind, &e.EmailID, &e.PhoneID, &e.CommunicationID, &e.Datetime, &e.Detail); err != nil {
			return nil, err
		}
		key := e.EmailID
		if refCol == "phone_id" {
			key = e.PhoneID
		}
		st := stats[key]
		st.RecentErrors = append(st.RecentErrors, e)
		stats[key] = st
	}
	return stats, errRows.Err()
}

// Blacklist records a domain. Creating an existing domain is a no-op that
// returns the existing row.
func (s *PgStore) Blacklist(ctx context.Context, domain string) (*BlacklistDomain, error) {
	b := &BlacklistDomain{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Domain: domain,
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO blacklist_domains (id, domain) VALUES ($1, $2) ON CONFLICT (domain) DO NOTHING`,
		b.ID, b.Domain)
	if err != nil {
		return nil, fmt.Errorf("blacklist %s: %w", domain, err)
	}
	err = s.db.QueryRow(ctx,
		`SELECT id, domain FROM blacklist_domains WHERE domain = $1`, domain).
		Scan(&b.ID, &b.Domain)
	if err != nil {
		return nil, fmt.Errorf("reread blacklist %s: %w", domain, err)
	}
	return b, nil
}

// IsBlacklisted reports whether a domain is on the blacklist.
func (s *PgStore) IsBlacklisted(ctx context.Context, domain string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM blacklist_domains WHERE domain = $1`, domain).Scan(&n)
	return n > 0, err
}

func scanComms(rows pgx.Rows) ([]Communication, error) {
	var out []Communication
	for rows.Next() {
		var c Communication
		if err := rows.Scan(&c.ID, &c.FOIAID, &c.Channel, &c.Response, &c.Datetime, &c.From, &c.To, &c.Subject, &c.Body, &c.Status, &c.Delivered, &c.FromEmailID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
