package feed

import (
	"context"
	"time"
)

// DocumentSource exposes the staged raw documents written by the external
// fetcher. Documents for a source are named with the source id as prefix.
type DocumentSource interface {
	List(ctx context.Context, source string) ([]string, error)
	Read(ctx context.Context, name string) ([]byte, error)
}

// Notification describes one newly merged post or location.
type Notification struct {
	Group        string    `json:"group_name"`
	Subject      string    `json:"subject"`
	Kind         string    `json:"kind"`
	DiscoveredAt time.Time `json:"discovered"`
}

// Notification kinds.
const (
	NotifyPost     = "post"
	NotifyLocation = "location"
)

// Notifier receives one call per newly merged record. Implementations are
// best-effort; a failed notification must not block or roll back the merge.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces audit entry ids (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
