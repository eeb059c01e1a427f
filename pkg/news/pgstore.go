package news

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed article store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTable creates the articles table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS articles (
			id       TEXT PRIMARY KEY,
			title    TEXT NOT NULL,
			kicker   TEXT NOT NULL DEFAULT '',
			slug     TEXT NOT NULL,
			summary  TEXT NOT NULL DEFAULT '',
			body     TEXT NOT NULL DEFAULT '',
			authors  TEXT[] NOT NULL DEFAULT '{}',
			publish  BOOLEAN NOT NULL DEFAULT FALSE,
			pub_date TIMESTAMPTZ NOT NULL,
			foia_ids TEXT[] NOT NULL DEFAULT '{}',
			saved_at TIMESTAMPTZ NOT NULL,
			UNIQUE (slug, pub_date)
		)`)
	return err
}

const articleCols = `id, title, kicker, slug, summary, body, authors, publish, pub_date, foia_ids, saved_at`

func scanArticle(row pgx.Row) (*Article, error) {
	var a Article
	err := row.Scan(&a.ID, &a.Title, &a.Kicker, &a.Slug, &a.Summary, &a.Body,
		&a.Authors, &a.Publish, &a.PubDate, &a.FOIAIDs, &a.SavedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts an article, normalizing the body first.
func (s *PgStore) Create(ctx context.Context, a *Article) (*Article, error) {
	a.Normalize()
	a.ID = uuid.Must(uuid.NewV7()).String()
	a.SavedAt = time.Now().Truncate(time.Microsecond)
	if a.PubDate.IsZero() {
		a.PubDate = a.SavedAt
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO articles (`+articleCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Title, a.Kicker, a.Slug, a.Summary, a.Body,
		a.Authors, a.Publish, a.PubDate, a.FOIAIDs, a.SavedAt)
	if err != nil {
		return nil, fmt.Errorf("create article: %w", err)
	}
	return a, nil
}

// Get fetches one article by id.
func (s *PgStore) Get(ctx context.Context, id string) (*Article, error) {
	a, err := scanArticle(s.db.QueryRow(ctx,
		`SELECT `+articleCols+` FROM articles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("article %s not found", id)
	}
	return a, err
}

// BySlug fetches the most recent article with the given slug.
func (s *PgStore) BySlug(ctx context.Context, slug string) (*Article, error) {
	a, err := scanArticle(s.db.QueryRow(ctx,
		`SELECT `+articleCols+` FROM articles WHERE slug = $1 ORDER BY pub_date DESC LIMIT 1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("article %q not found", slug)
	}
	return a, err
}

// Update rewrites an article, normalizing the body first.
func (s *PgStore) Update(ctx context.Context, a *Article) (*Article, error) {
	a.Normalize()
	a.SavedAt = time.Now().Truncate(time.Microsecond)
	tag, err := s.db.Exec(ctx, `
		UPDATE articles
		SET title = $1, kicker = $2, slug = $3, summary = $4, body = $5,
		    authors = $6, publish = $7, pub_date = $8, foia_ids = $9, saved_at = $10
		WHERE id = $11`,
		a.Title, a.Kicker, a.Slug, a.Summary, a.Body,
		a.Authors, a.Publish, a.PubDate, a.FOIAIDs, a.SavedAt, a.ID)
	if err != nil {
		return nil, fmt.Errorf("update article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("article %s not found", a.ID)
	}
	return a, nil
}

// Published lists live articles, newest first.
func (s *PgStore) Published(ctx context.Context, now time.Time, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+articleCols+` FROM articles
		WHERE publish AND pub_date <= $1
		ORDER BY pub_date DESC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// Drafts lists unpublished articles, newest first.
func (s *PgStore) Drafts(ctx context.Context) ([]Article, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+articleCols+` FROM articles
		WHERE NOT publish
		ORDER BY pub_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

func collectArticles(rows pgx.Rows) ([]Article, error) {
	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Kicker, &a.Slug, &a.Summary, &a.Body,
			&a.Authors, &a.Publish, &a.PubDate, &a.FOIAIDs, &a.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
