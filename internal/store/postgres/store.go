// Package postgres provides the Postgres-backed canonical store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaklook/leaklook/internal/feed"
	"github.com/leaklook/leaklook/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool dbPool
}

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the partition tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS groups (
			category  TEXT NOT NULL,
			name      TEXT NOT NULL,
			meta      TEXT NOT NULL DEFAULT '',
			profile   JSONB,
			links     JSONB,
			locations JSONB NOT NULL DEFAULT '[]',
			PRIMARY KEY (category, name)
		);
		CREATE TABLE IF NOT EXISTS posts (
			group_name    TEXT NOT NULL,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			link          TEXT NOT NULL DEFAULT '',
			slug          TEXT NOT NULL DEFAULT '',
			discovered_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS posts_group_idx ON posts (group_name, discovered_at DESC);
		CREATE TABLE IF NOT EXISTS audit_log (
			id     UUID PRIMARY KEY,
			actor  TEXT NOT NULL,
			action TEXT NOT NULL,
			at     TIMESTAMPTZ NOT NULL
		);`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetGroup fetches one registry entry.
func (s *Store) GetGroup(ctx context.Context, cat feed.Category, name string) (feed.Group, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT meta, profile, links, locations FROM groups WHERE category = $1 AND name = $2`,
		string(cat), name,
	)
	g, err := scanGroup(row, cat, name)
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.Group{}, fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return feed.Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// PutGroup creates or replaces a registry entry.
func (s *Store) PutGroup(ctx context.Context, g feed.Group) error {
	if !g.Category.Valid() {
		return fmt.Errorf("invalid category %q", g.Category)
	}
	profile, links, locations, err := marshalGroup(g)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO groups (category, name, meta, profile, links, locations)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (category, name) DO UPDATE
		 SET meta = EXCLUDED.meta, profile = EXCLUDED.profile,
		     links = EXCLUDED.links, locations = EXCLUDED.locations`,
		string(g.Category), g.Name, g.Meta, profile, links, locations,
	)
	if err != nil {
		return fmt.Errorf("put group: %w", err)
	}
	return nil
}

// ListGroups returns the partition sorted by name.
func (s *Store) ListGroups(ctx context.Context, cat feed.Category) ([]feed.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, meta, profile, links, locations FROM groups WHERE category = $1 ORDER BY name`,
		string(cat),
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []feed.Group
	for rows.Next() {
		var (
			name, meta                string
			profile, links, locations []byte
		)
		if err := rows.Scan(&name, &meta, &profile, &links, &locations); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g, err := decodeGroup(cat, name, meta, profile, links, locations)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return out, nil
}

// RenameGroup migrates the registry key and the post index in one transaction.
func (s *Store) RenameGroup(ctx context.Context, cat feed.Category, oldName, newName string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var taken bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE category = $1 AND name = $2)`,
		string(cat), newName,
	).Scan(&taken); err != nil {
		return fmt.Errorf("rename precheck: %w", err)
	}
	if taken {
		return fmt.Errorf("group %q: %w", newName, store.ErrExists)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE groups SET name = $3 WHERE category = $1 AND name = $2`,
		string(cat), oldName, newName,
	)
	if err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("group %q: %w", oldName, store.ErrNotFound)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE posts SET group_name = $2 WHERE group_name = $1`,
		oldName, newName,
	); err != nil {
		return fmt.Errorf("rename posts: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rename: %w", err)
	}
	return nil
}

// DeleteGroup removes the registry entry and purges its post index entry.
func (s *Store) DeleteGroup(ctx context.Context, cat feed.Category, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM groups WHERE category = $1 AND name = $2`,
		string(cat), name,
	)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM posts WHERE group_name = $1`, name); err != nil {
		return fmt.Errorf("delete posts: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// PostsFor returns a group's post log, newest first.
func (s *Store) PostsFor(ctx context.Context, group string) ([]feed.Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT group_name, title, description, link, slug, discovered_at
		 FROM posts WHERE group_name = $1 ORDER BY discovered_at DESC`,
		group,
	)
	if err != nil {
		return nil, fmt.Errorf("posts for %q: %w", group, err)
	}
	return scanPosts(rows)
}

// AppendPosts appends to a group's post log.
func (s *Store) AppendPosts(ctx context.Context, group string, posts []feed.Post) error {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append posts: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, p := range posts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO posts (group_name, title, description, link, slug, discovered_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			group, p.Title, p.Description, p.Link, p.Slug, p.DiscoveredAt,
		); err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append posts: %w", err)
	}
	return nil
}

// RecentPosts returns the newest posts across all groups.
func (s *Store) RecentPosts(ctx context.Context, limit int) ([]feed.Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT group_name, title, description, link, slug, discovered_at
		 FROM posts ORDER BY discovered_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}
	return scanPosts(rows)
}

// AppendAudit appends one audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry feed.AuditEntry) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, actor, action, at) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.Actor, entry.Action, entry.At,
	); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// AuditLog returns all entries, newest first.
func (s *Store) AuditLog(ctx context.Context) ([]feed.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, actor, action, at FROM audit_log ORDER BY at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	defer rows.Close()

	var out []feed.AuditEntry
	for rows.Next() {
		var e feed.AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	return out, nil
}

// Search matches the query against names, metadata, and post text.
func (s *Store) Search(ctx context.Context, query string) (store.SearchResult, error) {
	var res store.SearchResult
	pattern := "%" + query + "%"
	for _, cat := range []feed.Category{feed.CategoryGroup, feed.CategoryMarket} {
		rows, err := s.pool.Query(ctx,
			`SELECT name, meta, profile, links, locations FROM groups
			 WHERE category = $1 AND (name ILIKE $2 OR meta ILIKE $2) ORDER BY name`,
			string(cat), pattern,
		)
		if err != nil {
			return res, fmt.Errorf("search groups: %w", err)
		}
		groups, err := collectGroups(rows, cat)
		if err != nil {
			return res, err
		}
		if cat == feed.CategoryGroup {
			res.Groups = groups
		} else {
			res.Markets = groups
		}
	}
	rows, err := s.pool.Query(ctx,
		`SELECT group_name, title, description, link, slug, discovered_at
		 FROM posts WHERE title ILIKE $1 OR description ILIKE $1 ORDER BY group_name`,
		pattern,
	)
	if err != nil {
		return res, fmt.Errorf("search posts: %w", err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return res, err
	}
	res.Posts = posts
	return res, nil
}

func collectGroups(rows pgx.Rows, cat feed.Category) ([]feed.Group, error) {
	defer rows.Close()
	var out []feed.Group
	for rows.Next() {
		var (
			name, meta                string
			profile, links, locations []byte
		)
		if err := rows.Scan(&name, &meta, &profile, &links, &locations); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g, err := decodeGroup(cat, name, meta, profile, links, locations)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collect groups: %w", err)
	}
	return out, nil
}

func scanPosts(rows pgx.Rows) ([]feed.Post, error) {
	defer rows.Close()
	var out []feed.Post
	for rows.Next() {
		var p feed.Post
		if err := rows.Scan(&p.Group, &p.Title, &p.Description, &p.Link, &p.Slug, &p.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan posts: %w", err)
	}
	return out, nil
}

func scanGroup(row pgx.Row, cat feed.Category, name string) (feed.Group, error) {
	var (
		meta                      string
		profile, links, locations []byte
	)
	if err := row.Scan(&meta, &profile, &links, &locations); err != nil {
		return feed.Group{}, err
	}
	return decodeGroup(cat, name, meta, profile, links, locations)
}

func decodeGroup(cat feed.Category, name, meta string, profile, links, locations []byte) (feed.Group, error) {
	g := feed.Group{Name: name, Category: cat, Meta: meta}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &g.Profile); err != nil {
			return feed.Group{}, fmt.Errorf("decode profile for %q: %w", name, err)
		}
	}
	if len(links) > 0 {
		if err := json.Unmarshal(links, &g.Links); err != nil {
			return feed.Group{}, fmt.Errorf("decode links for %q: %w", name, err)
		}
	}
	if len(locations) > 0 {
		if err := json.Unmarshal(locations, &g.Locations); err != nil {
			return feed.Group{}, fmt.Errorf("decode locations for %q: %w", name, err)
		}
	}
	return g, nil
}

func marshalGroup(g feed.Group) (profile, links, locations []byte, err error) {
	if g.Profile != nil {
		if profile, err = json.Marshal(g.Profile); err != nil {
			return nil, nil, nil, fmt.Errorf("encode profile: %w", err)
		}
	}
	if g.Links != nil {
		if links, err = json.Marshal(g.Links); err != nil {
			return nil, nil, nil, fmt.Errorf("encode links: %w", err)
		}
	}
	locs := g.Locations
	if locs == nil {
		locs = []feed.Location{}
	}
	if locations, err = json.Marshal(locs); err != nil {
		return nil, nil, nil, fmt.Errorf("encode locations: %w", err)
	}
	return profile, links, locations, nil
}
