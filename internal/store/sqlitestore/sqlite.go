// Package sqlitestore persists articles, resources and settings in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pagepress/pagepress/internal/logfields"
	"github.com/pagepress/pagepress/internal/model"
	"github.com/pagepress/pagepress/internal/store"
)

// Store implements store.ContentStore and store.ConfigStore on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ store.ContentStore = (*Store)(nil)
	_ store.ConfigStore  = (*Store)(nil)
)

// Open opens or creates the database at dsn. Use ":memory:" for an in-memory database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A second connection to ":memory:" would see a different database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		slug TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		published INTEGER NOT NULL DEFAULT 0,
		revision TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published, created_at);
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		extension TEXT NOT NULL DEFAULT '',
		data BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resources_article ON resources(article_id);
	CREATE TABLE IF NOT EXISTS settings (
		path TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutArticle inserts or replaces an article together with its resources. Resources not in
// the list are detached.
func (s *Store) PutArticle(ctx context.Context, a model.Article, resources []model.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := json.Marshal(nonNil(a.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO articles (id, title, slug, content, tags, created_at, updated_at, published, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, slug = excluded.slug, content = excluded.content,
			tags = excluded.tags, created_at = excluded.created_at, updated_at = excluded.updated_at,
			published = excluded.published, revision = excluded.revision`,
		a.ID, a.Title, a.Slug, a.Content, string(tags),
		a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli(), a.Published, a.Revision,
	)
	if err != nil {
		return fmt.Errorf("upsert article %s: %w", a.ID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM resources WHERE article_id = ?", a.ID); err != nil {
		return fmt.Errorf("clear resources of %s: %w", a.ID, err)
	}
	for _, r := range resources {
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO resources (id, article_id, title, mime_type, extension, data) VALUES (?, ?, ?, ?, ?, ?)",
			r.ID, a.ID, r.Title, r.MimeType, r.Extension, nonNilBytes(r.Data),
		)
		if err != nil {
			return fmt.Errorf("insert resource %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit article %s: %w", a.ID, err)
	}
	return nil
}

// DeleteArticle removes an article and its resources.
func (s *Store) DeleteArticle(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM articles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete article %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Revisions maps every stored article id to its revision.
func (s *Store) Revisions(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT id, revision FROM articles")
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, rev string
		if err := rows.Scan(&id, &rev); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out[id] = rev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ListPublishedArticles returns published articles oldest first. Rows that fail to decode
// are logged and skipped.
func (s *Store) ListPublishedArticles(ctx context.Context) ([]model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, slug, content, tags, created_at, updated_at, published, revision
		FROM articles WHERE published = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			slog.Warn("Skipping unreadable article", logfields.Article(a.ID), logfields.Error(err))
			continue
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func scanArticle(rows *sql.Rows) (model.Article, error) {
	var a model.Article
	var tags string
	var created, updated int64
	if err := rows.Scan(&a.ID, &a.Title, &a.Slug, &a.Content, &tags, &created, &updated, &a.Published, &a.Revision); err != nil {
		return a, fmt.Errorf("scan article: %w", err)
	}
	a.CreatedAt = time.UnixMilli(created).UTC()
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return a, fmt.Errorf("decode tags: %w", err)
	}
	return a, nil
}

func (s *Store) DocumentBody(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT content FROM articles WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query article %s: %w", id, err)
	}
	return body, nil
}

func (s *Store) Tags(ctx context.Context, id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT tags FROM articles WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tags of %s: %w", id, err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", id, err)
	}
	return tags, nil
}

func (s *Store) Resources(ctx context.Context, id string) ([]model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, mime_type, extension, data FROM resources WHERE article_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("query resources of %s: %w", id, err)
	}
	defer rows.Close()
	var out []model.Resource
	for rows.Next() {
		var r model.Resource
		if err := rows.Scan(&r.ID, &r.Title, &r.MimeType, &r.Extension, &r.Data); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Get returns the JSON-decoded value stored at path, or nil.
func (s *Store) Get(ctx context.Context, path []string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE path = ?", store.JoinPath(path)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query setting %s: %w", store.JoinPath(path), err)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode setting %s: %w", store.JoinPath(path), err)
	}
	return v, nil
}

// Set stores value as JSON at path. A nil value deletes the entry.
func (s *Store) Set(ctx context.Context, path []string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := store.JoinPath(path)
	if value == nil {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE path = ?", key); err != nil {
			return fmt.Errorf("delete setting %s: %w", key, err)
		}
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO settings (path, value) VALUES (?, ?) ON CONFLICT(path) DO UPDATE SET value = excluded.value",
		key, string(raw))
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
