package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore. q may be a pool or an open transaction.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id                 TEXT PRIMARY KEY,
			type               TEXT NOT NULL,
			created_at         TIMESTAMPTZ DEFAULT NOW(),
			resolved           BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_by        TEXT NOT NULL DEFAULT '',
			resolved_at        TIMESTAMPTZ,
			deferred_until     TIMESTAMPTZ,
			assigned           TEXT NOT NULL DEFAULT '',
			form_data          JSONB NOT NULL DEFAULT '{}',
			communication_id   TEXT NOT NULL DEFAULT '',
			foia_id            TEXT NOT NULL DEFAULT '',
			agency_id          TEXT NOT NULL DEFAULT '',
			jurisdiction_id    TEXT NOT NULL DEFAULT '',
			composer_id        TEXT NOT NULL DEFAULT '',
			crowdfund_id       TEXT NOT NULL DEFAULT '',
			user_id            TEXT NOT NULL DEFAULT '',
			reason             TEXT NOT NULL DEFAULT '',
			category           TEXT NOT NULL DEFAULT '',
			address            TEXT NOT NULL DEFAULT '',
			predicted_status   TEXT NOT NULL DEFAULT '',
			status_probability INTEGER NOT NULL DEFAULT 0,
			created_from_orphan BOOLEAN NOT NULL DEFAULT FALSE,
			old_status         TEXT NOT NULL DEFAULT '',
			note               TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_open ON tasks(resolved, type, created_at)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_address ON tasks(address) WHERE address != ''`)
	return err
}

const taskCols = `id, type, created_at, resolved, resolved_by, resolved_at, deferred_until, assigned, form_data,
	communication_id, foia_id, agency_id, jurisdiction_id, composer_id, crowdfund_id, user_id,
	reason, category, address, predicted_status, status_probability, created_from_orphan, old_status, note`

// Create inserts a new task.
func (s *PgStore) Create(ctx context.Context, t *Task) (*Task, error) {
	t.ID = uuid.Must(uuid.NewV7()).String()
	t.CreatedAt = time.Now().Truncate(time.Microsecond)
	if t.FormData == nil {
		t.FormData = map[string]any{}
	}
	formJSON, err := json.Marshal(t.FormData)
	if err != nil {
		return nil, fmt.Errorf("marshal form data: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO tasks (id, type, created_at, resolved, resolved_by, resolved_at, deferred_until, assigned, form_data,
			communication_id, foia_id, agency_id, jurisdiction_id, composer_id, crowdfund_id, user_id,
			reason, category, address, predicted_status, status_probability, created_from_orphan, old_status, note)
		VALUES ($1, $2, $3, FALSE, '', NULL, NULL, $4, $5::jsonb,
			$6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		t.ID, t.Type, t.CreatedAt, t.Assigned, string(formJSON),
		t.CommunicationID, t.FOIAID, t.AgencyID, t.JurisdictionID, t.ComposerID, t.CrowdfundID, t.UserID,
		t.Reason, t.Category, t.Address, t.PredictedStatus, t.StatusProbability, t.CreatedFromOrphan, t.OldStatus, t.Note)
	if err != nil {
		return nil, fmt.Errorf("create %s task: %w", t.Type, err)
	}
	return t, nil
}

// Get retrieves a single task by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// Resolve transitions the task open → resolved. The WHERE guard makes a
// second resolve attempt find no open row, which surfaces as
// ErrAlreadyResolved.
func (s *PgStore) Resolve(ctx context.Context, id, actor string, formData map[string]any) (*Task, error) {
	now := time.Now().Truncate(time.Microsecond)
	var formJSON []byte
	if formData != nil {
		var err error
		formJSON, err = json.Marshal(formData)
		if err != nil {
			return nil, fmt.Errorf("marshal form data: %w", err)
		}
	}
	row := s.db.QueryRow(ctx, `
		UPDATE tasks SET resolved = TRUE, resolved_by = $1, resolved_at = $2,
			form_data = COALESCE($3::jsonb, form_data)
		WHERE id = $4 AND NOT resolved
		RETURNING `+taskCols,
		actor, now, nullable(formJSON), id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing task from one already resolved.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("resolve task %s: %w", id, ErrAlreadyResolved)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve task %s: %w", id, err)
	}
	return t, nil
}

// Defer sets the task's defer date. Only valid on open tasks.
func (s *PgStore) Defer(ctx context.Context, id string, until time.Time) (*Task, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE tasks SET deferred_until = $1
		WHERE id = $2 AND NOT resolved
		RETURNING `+taskCols, until, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("defer task %s: %w", id, ErrAlreadyResolved)
	}
	if err != nil {
		return nil, fmt.Errorf("defer task %s: %w", id, err)
	}
	return t, nil
}

// Assign sets the assignee.
func (s *PgStore) Assign(ctx context.Context, id, userID string) (*Task, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE tasks SET assigned = $1 WHERE id = $2 RETURNING `+taskCols, userID, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("assign task %s: %w", id, err)
	}
	return t, nil
}

// List returns tasks matching the filter, oldest first.
func (s *PgStore) List(ctx context.Context, f Filter) ([]Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE TRUE`
	args := []any{}
	n := 1
	if f.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", n)
		args = append(args, f.Type)
		n++
	}
	if f.Resolved != nil {
		query += fmt.Sprintf(" AND resolved = $%d", n)
		args = append(args, *f.Resolved)
		n++
	}
	if !f.ShowDeferred {
		query += " AND (deferred_until IS NULL OR deferred_until <= NOW())"
	}
	query += " ORDER BY created_at"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// OpenOrphansByDomain returns open orphan tasks whose sender address belongs
// to the domain.
func (s *PgStore) OpenOrphansByDomain(ctx context.Context, domain string) ([]Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+taskCols+` FROM tasks
		WHERE type = 'orphan' AND NOT resolved AND LOWER(address) LIKE '%@' || LOWER($1)
		ORDER BY created_at`, domain)
	if err != nil {
		return nil, fmt.Errorf("orphans by domain %s: %w", domain, err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// OpenCountsByType returns the open-task count per variant type.
func (s *PgStore) OpenCountsByType(ctx context.Context) (map[Type]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT type, COUNT(*) FROM tasks WHERE NOT resolved GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("open counts: %w", err)
	}
	defer rows.Close()
	counts := map[Type]int{}
	for rows.Next() {
		var t Type
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var formJSON []byte
	err := row.Scan(&t.ID, &t.Type, &t.CreatedAt, &t.Resolved, &t.ResolvedBy, &t.ResolvedAt,
		&t.DeferredUntil, &t.Assigned, &formJSON,
		&t.CommunicationID, &t.FOIAID, &t.AgencyID, &t.JurisdictionID, &t.ComposerID,
		&t.CrowdfundID, &t.UserID,
		&t.Reason, &t.Category, &t.Address, &t.PredictedStatus, &t.StatusProbability,
		&t.CreatedFromOrphan, &t.OldStatus, &t.Note)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(formJSON, &t.FormData); err != nil {
		t.FormData = map[string]any{}
	}
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}
