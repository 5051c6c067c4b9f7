// Package feed defines the core record types shared across subsystems.
package feed

import "time"

// Category partitions tracked entities into the two registry namespaces.
type Category string

// Registry namespaces.
const (
	CategoryGroup  Category = "group"
	CategoryMarket Category = "market"
)

// Valid reports whether the category names a known registry partition.
func (c Category) Valid() bool {
	return c == CategoryGroup || c == CategoryMarket
}

// Location is one known URL or mirror for a group, identified by a slug
// derived from the URL.
type Location struct {
	Slug         string    `json:"slug"`
	URL          string    `json:"url"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Online       bool      `json:"online"`
	Screenshot   string    `json:"screenshot,omitempty"`
}

// Group is a tracked extortion actor (or market) with its known locations
// and free-form metadata. Name is the registry key, stored lowercase.
type Group struct {
	Name      string            `json:"name"`
	Category  Category          `json:"category"`
	Meta      string            `json:"meta,omitempty"`
	Profile   map[string]string `json:"profile,omitempty"`
	Links     []string          `json:"links,omitempty"`
	Locations []Location        `json:"locations"`
}

// HasLocation reports whether the group already tracks a location with the
// given slug. Both the bulk merge and the manual add path go through this
// comparison so their duplicate detection cannot diverge.
func (g Group) HasLocation(slug string) bool {
	for _, loc := range g.Locations {
		if loc.Slug == slug {
			return true
		}
	}
	return false
}

// Post is one extracted leak announcement attributed to a group. Posts form
// an append-only log; ingestion never rewrites them.
type Post struct {
	Group        string    `json:"group_name"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Link         string    `json:"link,omitempty"`
	Slug         string    `json:"slug,omitempty"`
	DiscoveredAt time.Time `json:"discovered"`
}

// IdentityKey is the dedup key for posts within one group. Sources that
// expose a stable per-record link are keyed on it; everything else falls
// back to the exact title/description pair.
func (p Post) IdentityKey() string {
	if p.Link != "" {
		return "link\x00" + p.Link
	}
	return "text\x00" + p.Title + "\x00" + p.Description
}

// RawRecord is the normalized output of a per-source extraction routine
// before merge. Empty Description, Link, and Slug are valid.
type RawRecord struct {
	Title       string
	Description string
	Link        string
	Slug        string
}

// AuditEntry records one admin mutation, append-only.
type AuditEntry struct {
	ID     string    `json:"id"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// IngestStatus is the lifecycle state of one (source) ingestion attempt.
type IngestStatus string

// Ingestion attempt states.
const (
	IngestPending IngestStatus = "pending"
	IngestParsed  IngestStatus = "parsed"
	IngestMerged  IngestStatus = "merged"
	IngestSkipped IngestStatus = "skipped"
	IngestFailed  IngestStatus = "failed"
)

// SourceReport summarizes the outcome of one source's ingestion attempt.
type SourceReport struct {
	Source       string       `json:"source"`
	Status       IngestStatus `json:"status"`
	Documents    int          `json:"documents"`
	Candidates   int          `json:"candidates"`
	Skipped      int          `json:"skipped"`
	NewPosts     int          `json:"new_posts"`
	NewLocations int          `json:"new_locations"`
	ErrorText    string       `json:"error_text,omitempty"`
}

// CycleReport aggregates the per-source reports of one ingestion cycle.
type CycleReport struct {
	Started  time.Time      `json:"started_at"`
	Finished time.Time      `json:"finished_at"`
	Sources  []SourceReport `json:"sources"`
}

// Totals sums the per-source counters across the cycle.
func (c CycleReport) Totals() SourceReport {
	var total SourceReport
	for _, s := range c.Sources {
		total.Documents += s.Documents
		total.Candidates += s.Candidates
		total.Skipped += s.Skipped
		total.NewPosts += s.NewPosts
		total.NewLocations += s.NewLocations
	}
	return total
}
