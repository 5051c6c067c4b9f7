// Package memory provides an in-memory canonical store for development and
// testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leaklook/leaklook/internal/feed"
	"github.com/leaklook/leaklook/internal/store"
)

// Store keeps the four partitions in maps guarded by one RWMutex.
type Store struct {
	mu     sync.RWMutex
	groups map[feed.Category]map[string]feed.Group
	posts  map[string][]feed.Post
	audit  []feed.AuditEntry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		groups: map[feed.Category]map[string]feed.Group{
			feed.CategoryGroup:  make(map[string]feed.Group),
			feed.CategoryMarket: make(map[string]feed.Group),
		},
		posts: make(map[string][]feed.Post),
	}
}

// GetGroup fetches one registry entry.
func (s *Store) GetGroup(_ context.Context, cat feed.Category, name string) (feed.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[cat][name]
	if !ok {
		return feed.Group{}, fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	}
	return cloneGroup(g), nil
}

// PutGroup creates or replaces a registry entry.
func (s *Store) PutGroup(_ context.Context, g feed.Group) error {
	if !g.Category.Valid() {
		return fmt.Errorf("invalid category %q", g.Category)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.Category][g.Name] = cloneGroup(g)
	return nil
}

// ListGroups returns the partition sorted by name.
func (s *Store) ListGroups(_ context.Context, cat feed.Category) ([]feed.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Group, 0, len(s.groups[cat]))
	for _, g := range s.groups[cat] {
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RenameGroup moves the registry key and the post index entry together.
func (s *Store) RenameGroup(_ context.Context, cat feed.Category, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[cat][oldName]
	if !ok {
		return fmt.Errorf("group %q: %w", oldName, store.ErrNotFound)
	}
	if _, taken := s.groups[cat][newName]; taken {
		return fmt.Errorf("group %q: %w", newName, store.ErrExists)
	}
	g.Name = newName
	s.groups[cat][newName] = g
	delete(s.groups[cat], oldName)
	if posts, ok := s.posts[oldName]; ok {
		for i := range posts {
			posts[i].Group = newName
		}
		s.posts[newName] = posts
		delete(s.posts, oldName)
	}
	return nil
}

// DeleteGroup removes the registry entry and purges its post index entry.
func (s *Store) DeleteGroup(_ context.Context, cat feed.Category, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[cat][name]; !ok {
		return fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	}
	delete(s.groups[cat], name)
	delete(s.posts, name)
	return nil
}

// PostsFor returns a group's post log, newest first.
func (s *Store) PostsFor(_ context.Context, group string) ([]feed.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := append([]feed.Post(nil), s.posts[group]...)
	sortPostsDesc(posts)
	return posts, nil
}

// AppendPosts appends to a group's post log.
func (s *Store) AppendPosts(_ context.Context, group string, posts []feed.Post) error {
	if len(posts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range posts {
		p.Group = group
		s.posts[group] = append(s.posts[group], p)
	}
	return nil
}

// RecentPosts returns the newest posts across all groups.
func (s *Store) RecentPosts(_ context.Context, limit int) ([]feed.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []feed.Post
	for _, posts := range s.posts {
		all = append(all, posts...)
	}
	sortPostsDesc(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// AppendAudit appends one audit entry.
func (s *Store) AppendAudit(_ context.Context, entry feed.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

// AuditLog returns all entries, newest first.
func (s *Store) AuditLog(_ context.Context) ([]feed.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]feed.AuditEntry(nil), s.audit...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

// Search matches the query against names, metadata, and post text.
func (s *Store) Search(_ context.Context, query string) (store.SearchResult, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	var res store.SearchResult
	if q == "" {
		return res, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups[feed.CategoryGroup] {
		if matchGroup(g, q) {
			res.Groups = append(res.Groups, cloneGroup(g))
		}
	}
	for _, g := range s.groups[feed.CategoryMarket] {
		if matchGroup(g, q) {
			res.Markets = append(res.Markets, cloneGroup(g))
		}
	}
	sort.Slice(res.Groups, func(i, j int) bool { return res.Groups[i].Name < res.Groups[j].Name })
	sort.Slice(res.Markets, func(i, j int) bool { return res.Markets[i].Name < res.Markets[j].Name })
	for _, posts := range s.posts {
		for _, p := range posts {
			if strings.Contains(strings.ToLower(p.Title), q) ||
				strings.Contains(strings.ToLower(p.Description), q) {
				res.Posts = append(res.Posts, p)
			}
		}
	}
	sort.Slice(res.Posts, func(i, j int) bool { return res.Posts[i].Group < res.Posts[j].Group })
	return res, nil
}

// Close implements store.Store; nothing to release.
func (s *Store) Close() {}

func matchGroup(g feed.Group, q string) bool {
	return strings.Contains(strings.ToLower(g.Name), q) ||
		strings.Contains(strings.ToLower(g.Meta), q)
}

func sortPostsDesc(posts []feed.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].DiscoveredAt.After(posts[j].DiscoveredAt)
	})
}

func cloneGroup(g feed.Group) feed.Group {
	out := g
	out.Locations = append([]feed.Location(nil), g.Locations...)
	out.Links = append([]string(nil), g.Links...)
	if g.Profile != nil {
		out.Profile = make(map[string]string, len(g.Profile))
		for k, v := range g.Profile {
			out.Profile[k] = v
		}
	}
	return out
}
