package digest

import (
	"context"
	"time"
)

// Statistics is one daily snapshot of site-wide numbers. The staff digest
// compares consecutive snapshots; everything else is for the record.
type Statistics struct {
	ID                string    `json:"id"`
	Date              time.Time `json:"date"` // midnight UTC of the day measured
	TotalRequests     int       `json:"total_requests"`
	RequestsSubmitted int       `json:"requests_submitted"` // awaiting processing
	UnresolvedTasks   int       `json:"unresolved_tasks"`
	UnresolvedOrphans int       `json:"unresolved_orphans"`
	TotalComms        int       `json:"total_comms"`
	TotalUsers        int       `json:"total_users"`
	ProUsers          int       `json:"pro_users"` // users holding purchased request credits
	TotalAgencies     int       `json:"total_agencies"`
	StaleAgencies     int       `json:"stale_agencies"`
	NewAgencies       int       `json:"new_agencies"` // awaiting approval
}

// StatsStore records and retrieves daily snapshots.
type StatsStore interface {
	// Snapshot measures the database as of now and stores the result under
	// the given date, replacing any earlier snapshot for that date.
	Snapshot(ctx context.Context, date time.Time) (*Statistics, error)
	// ByDate returns the snapshot for the given date, or nil if none exists.
	ByDate(ctx context.Context, date time.Time) (*Statistics, error)
	EnsureTable(ctx context.Context) error
}

// CompareStats builds the staff digest's statistics table from two
// snapshots. Either snapshot missing means no table.
func CompareStats(current, previous *Statistics) []Stat {
	if current == nil || previous == nil {
		return nil
	}
	return []Stat{
		makeStat("Requests", current.TotalRequests, previous.TotalRequests, true),
		makeStat("Processing", current.RequestsSubmitted, previous.RequestsSubmitted, false),
		makeStat("Unresolved Tasks", current.UnresolvedTasks, previous.UnresolvedTasks, false),
		makeStat("Orphans", current.UnresolvedOrphans, previous.UnresolvedOrphans, false),
		makeStat("Communications", current.TotalComms, previous.TotalComms, true),
		makeStat("Users", current.TotalUsers, previous.TotalUsers, true),
		makeStat("Pro Users", current.ProUsers, previous.ProUsers, true),
		makeStat("Agencies", current.TotalAgencies, previous.TotalAgencies, true),
		makeStat("Stale Agencies", current.StaleAgencies, previous.StaleAgencies, false),
		makeStat("New Agencies", current.NewAgencies, previous.NewAgencies, false),
	}
}
