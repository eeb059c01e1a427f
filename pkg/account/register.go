package account

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"openrecords/pkg/jobs"
)

var usernameStrip = regexp.MustCompile(`[^\w\-.@]`)

// SplitName splits a full name into first and last names, each capped at 30
// characters.
func SplitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, " "); i >= 0 {
		first, last := name[:i], name[i+1:]
		return trunc(first, 30), trunc(last, 30)
	}
	return trunc(name, 30), ""
}

func trunc(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// UniqueUsername derives a globally unique username from a display name by
// stripping illegal characters and appending a numeric suffix on collision.
func UniqueUsername(ctx context.Context, store Store, name string) (string, error) {
	base := trunc(usernameStrip.ReplaceAllString(name, ""), 30)
	if base == "" {
		base = "user"
	}
	username := base
	for num := 1; ; num++ {
		taken, err := store.UsernameExists(ctx, username)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !taken {
			return username, nil
		}
		postfix := strconv.Itoa(num)
		username = trunc(base, 30-len(postfix)) + postfix
	}
}

// MiniRegister creates a user from just a full name and email, and schedules
// their welcome email. The welcome send happens asynchronously; registration
// does not wait on the mail provider.
func MiniRegister(ctx context.Context, store Store, scheduler jobs.Scheduler, fullName, email string, monthlyQuota int) (*User, error) {
	username, err := UniqueUsername(ctx, store, fullName)
	if err != nil {
		return nil, err
	}
	user, err := store.Create(ctx, &User{
		Username: username,
		Email:    email,
		FullName: strings.TrimSpace(fullName),
		IsActive: true,
		Quota:    monthlyQuota,
	})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Schedule(ctx, "mail.welcome", map[string]any{"user_id": user.ID}, time.Now()); err != nil {
		return nil, fmt.Errorf("schedule welcome email: %w", err)
	}
	return user, nil
}
