package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed user store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore. q may be a pool or an open transaction.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTable creates the users table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			email      TEXT NOT NULL DEFAULT '',
			full_name  TEXT NOT NULL DEFAULT '',
			is_staff   BOOLEAN NOT NULL DEFAULT FALSE,
			is_active  BOOLEAN NOT NULL DEFAULT TRUE,
			quota      INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`)
	return err
}

const userCols = `id, username, email, full_name, is_staff, is_active, quota, created_at`

// Create inserts a new user.
func (s *PgStore) Create(ctx context.Context, u *User) (*User, error) {
	u.ID = uuid.Must(uuid.NewV7()).String()
	u.CreatedAt = time.Now().Truncate(time.Microsecond)
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, username, email, full_name, is_staff, is_active, quota, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.Email, u.FullName, u.IsStaff, u.IsActive, u.Quota, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Get retrieves a single user by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*User, error) {
	return s.one(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
}

// ByUsername retrieves a user by username.
func (s *PgStore) ByUsername(ctx context.Context, username string) (*User, error) {
	return s.one(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
}

// ByEmail retrieves a user by email.
func (s *PgStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.one(ctx, `SELECT `+userCols+` FROM users WHERE email = $1 LIMIT 1`, email)
}

// UsernameExists reports whether a username is taken, case-insensitively.
func (s *PgStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE LOWER(username) = LOWER($1)`, username).Scan(&n)
	return n > 0, err
}

// AddQuota adds n requests to the user's quota. n may be negative.
func (s *PgStore) AddQuota(ctx context.Context, id string, n int) (*User, error) {
	return s.one(ctx, `
		UPDATE users SET quota = GREATEST(quota + $1, 0)
		WHERE id = $2
		RETURNING `+userCols, n, id)
}

// SetActive toggles the account's active flag.
func (s *PgStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set active %s: %w", id, err)
	}
	return nil
}

// Active returns all active users.
func (s *PgStore) Active(ctx context.Context) ([]User, error) {
	return s.many(ctx, `SELECT `+userCols+` FROM users WHERE is_active ORDER BY created_at`)
}

// Staff returns all active staff users.
func (s *PgStore) Staff(ctx context.Context) ([]User, error) {
	return s.many(ctx, `SELECT `+userCols+` FROM users WHERE is_active AND is_staff ORDER BY created_at`)
}

// Count returns the total user count.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// StaffCount returns the staff user count.
func (s *PgStore) StaffCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_staff`).Scan(&n)
	return n, err
}

func (s *PgStore) one(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx, query, args...).
		Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.IsStaff, &u.IsActive, &u.Quota, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	return &u, nil
}

func (s *PgStore) many(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.IsStaff, &u.IsActive, &u.Quota, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
