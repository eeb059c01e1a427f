// Package news stores the platform's news articles.
package news

import (
	"context"
	"strings"
	"time"
)

// Article is a news article. Published articles appear on the site only
// once their publish date has arrived.
type Article struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Kicker   string    `json:"kicker,omitempty"`
	Slug     string    `json:"slug"`
	Summary  string    `json:"summary"`
	Body     string    `json:"body"`
	Authors  []string  `json:"authors,omitempty"`
	Publish  bool      `json:"publish"`
	PubDate  time.Time `json:"pub_date"`
	FOIAIDs  []string  `json:"foia_ids,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}

// Normalize cleans the article body before save. Rich-text editors stick
// non-breaking spaces in the body for some reason.
func (a *Article) Normalize() {
	a.Body = strings.ReplaceAll(a.Body, " ", " ")
}

// Byline joins author names: "A, B & C".
func Byline(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	head := strings.Join(names[:len(names)-1], ", ")
	return head + " & " + names[len(names)-1]
}

// Store persists articles.
type Store interface {
	Create(ctx context.Context, a *Article) (*Article, error)
	Get(ctx context.Context, id string) (*Article, error)
	BySlug(ctx context.Context, slug string) (*Article, error)
	Update(ctx context.Context, a *Article) (*Article, error)
	// Published lists articles with publish set and pub_date at or before now,
	// newest first.
	Published(ctx context.Context, now time.Time, limit int) ([]Article, error)
	// Drafts lists unpublished articles, newest first.
	Drafts(ctx context.Context) ([]Article, error)
	EnsureTable(ctx context.Context) error
}
