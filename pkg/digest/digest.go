// Package digest composes the scheduled summary emails: per-user activity
// digests and the daily staff operations digest.
package digest

import "time"

// Salutation returns a greeting appropriate to the hour.
func Salutation(now time.Time) string {
	switch hour := now.Hour(); {
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// Signoff returns a closing appropriate to the hour.
func Signoff(now time.Time) string {
	if now.Hour() < 18 {
		return "Have a great day"
	}
	return "Have a great night"
}

// Stat is one line of the staff digest's statistics table. Growth marks
// numbers where an increase is good news.
type Stat struct {
	Name    string
	Current int
	Delta   int
	Growth  bool
}

func makeStat(name string, current, previous int, growth bool) Stat {
	return Stat{Name: name, Current: current, Delta: current - previous, Growth: growth}
}
