package account

import (
	"context"
	"time"
)

// User is a site account. Quota is the number of requests the user is
// entitled to file.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsStaff   bool      `json:"is_staff"`
	IsActive  bool      `json:"is_active"`
	Quota     int       `json:"quota"`
	CreatedAt time.Time `json:"created_at"`
}

// FirstLast splits the full name into first and last parts, each capped at 30
// characters. A single-word name has an empty last name.
func (u *User) FirstLast() (string, string) {
	return SplitName(u.FullName)
}

// Store is the contract for user persistence.
type Store interface {
	Create(ctx context.Context, u *User) (*User, error)
	Get(ctx context.Context, id string) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	AddQuota(ctx context.Context, id string, n int) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	Active(ctx context.Context) ([]User, error)
	Staff(ctx context.Context) ([]User, error)
	EnsureTable(ctx context.Context) error
}
