package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"content_spider/internal/config"
	"content_spider/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	pingTimeout            = 5 * time.Second

	// Staged posts are owned by the first author and category until an
	// editor reassigns them.
	defaultAuthorID   = 1
	defaultCategoryID = 1
)

var schema = map[string][]string{
	config.DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS blog_posts (
    id BIGSERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    excerpt TEXT,
    content TEXT,
    featured_image TEXT,
    meta_description TEXT,
    meta_keywords TEXT,
    author_id INTEGER,
    category_id INTEGER,
    is_published BOOLEAN NOT NULL DEFAULT FALSE,
    published_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS blog_post_images (
    id BIGSERIAL PRIMARY KEY,
    post_id BIGINT NOT NULL REFERENCES blog_posts(id) ON DELETE CASCADE,
    image_url TEXT NOT NULL,
    alt_text TEXT,
    title TEXT
)`,
	},
	config.DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS blog_posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    excerpt TEXT,
    content TEXT,
    featured_image TEXT,
    meta_description TEXT,
    meta_keywords TEXT,
    author_id INTEGER,
    category_id INTEGER,
    is_published BOOLEAN NOT NULL DEFAULT 0,
    published_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS blog_post_images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id INTEGER NOT NULL REFERENCES blog_posts(id) ON DELETE CASCADE,
    image_url TEXT NOT NULL,
    alt_text TEXT,
    title TEXT
)`,
	},
}

// SQLStore writes records into the blog_posts / blog_post_images tables of
// a Postgres or SQLite database. Existing slugs are skipped, never updated.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

func NewSQLStore(db *sqlx.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if _, ok := schema[driver]; !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == config.DriverSQLite {
		// One writer at a time; concurrent writers would hit SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(defaultMaxOpenConns)
		db.SetMaxIdleConns(defaultMaxIdleConns)
		db.SetConnMaxLifetime(defaultConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return NewSQLStore(db, driver), nil
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema[s.driver] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, rec *models.ContentRecord) (bool, error) {
	if rec.Slug == "" {
		return false, errors.New("record has no slug")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.GetContext(ctx, &id, tx.Rebind(`SELECT id FROM blog_posts WHERE slug = ?`), rec.Slug)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("lookup %s: %w", rec.Slug, err)
	}

	featured := sql.NullString{String: rec.FeaturedImage(), Valid: rec.FeaturedImage() != ""}
	insertPost := tx.Rebind(`INSERT INTO blog_posts (
    title, slug, excerpt, content, featured_image,
    meta_description, meta_keywords, author_id, category_id,
    is_published, published_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
RETURNING id`)
	err = tx.QueryRowxContext(ctx, insertPost,
		rec.Title, rec.Slug, rec.Excerpt, rec.Content, featured,
		rec.MetaDescription, rec.MetaKeywords, defaultAuthorID, defaultCategoryID, true,
	).Scan(&id)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", rec.Slug, err)
	}

	insertImage := tx.Rebind(`INSERT INTO blog_post_images (post_id, image_url, alt_text, title) VALUES (?, ?, ?, ?)`)
	for _, img := range rec.Images {
		if _, err := tx.ExecContext(ctx, insertImage, id, img.RelativePath, img.AltText, img.TitleText); err != nil {
			return false, fmt.Errorf("insert image for %s: %w", rec.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s: %w", rec.Slug, err)
	}
	return true, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
