// Package store defines the canonical store abstraction over the four
// record partitions: group registry, market registry, post index, and audit
// log. Implementations must keep the rename/delete cross-partition invariant
// internally so callers never coordinate partitions by hand.
package store

import (
	"context"
	"errors"

	"github.com/leaklook/leaklook/internal/feed"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
)

// SearchResult groups the matches of a free-text search across partitions.
type SearchResult struct {
	Groups  []feed.Group `json:"groups"`
	Markets []feed.Group `json:"markets"`
	Posts   []feed.Post  `json:"posts"`
}

// Store is the canonical persistence boundary. Reads return merged,
// consistent snapshots; writes to a group's record are serialized by the
// caller (the engine holds a per-group lock).
type Store interface {
	// GetGroup fetches one registry entry, ErrNotFound when absent.
	GetGroup(ctx context.Context, cat feed.Category, name string) (feed.Group, error)
	// PutGroup creates or replaces the registry entry keyed by g.Name in
	// the partition named by g.Category.
	PutGroup(ctx context.Context, g feed.Group) error
	// ListGroups returns the partition sorted by name.
	ListGroups(ctx context.Context, cat feed.Category) ([]feed.Group, error)
	// RenameGroup moves the registry key and migrates the post index in one
	// logical operation. ErrNotFound when old is absent, ErrExists when the
	// new key is taken.
	RenameGroup(ctx context.Context, cat feed.Category, oldName, newName string) error
	// DeleteGroup removes the registry entry and purges the group's post
	// index entry.
	DeleteGroup(ctx context.Context, cat feed.Category, name string) error

	// PostsFor returns a group's post log ordered by discovery time
	// descending.
	PostsFor(ctx context.Context, group string) ([]feed.Post, error)
	// AppendPosts appends already-deduplicated posts to a group's log.
	AppendPosts(ctx context.Context, group string, posts []feed.Post) error
	// RecentPosts returns the most recently discovered posts across all
	// groups, newest first.
	RecentPosts(ctx context.Context, limit int) ([]feed.Post, error)

	// AppendAudit appends one audit entry.
	AppendAudit(ctx context.Context, entry feed.AuditEntry) error
	// AuditLog returns all entries, newest first.
	AuditLog(ctx context.Context) ([]feed.AuditEntry, error)

	// Search matches the query against group names, metadata, and post
	// titles/descriptions, case-insensitively.
	Search(ctx context.Context, query string) (SearchResult, error)

	Close()
}
