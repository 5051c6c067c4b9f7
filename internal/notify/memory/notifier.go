// Package memory contains an in-memory notifier for tests.
package memory

import (
	"context"
	"sync"

	"github.com/leaklook/leaklook/internal/feed"
)

// Notifier stores notifications for inspection.
type Notifier struct {
	mu    sync.RWMutex
	notes []feed.Notification
	err   error
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Fail makes subsequent Notify calls return err.
func (n *Notifier) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Notify records the notification.
func (n *Notifier) Notify(_ context.Context, note feed.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

// Notifications returns the recorded notifications.
func (n *Notifier) Notifications() []feed.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]feed.Notification, len(n.notes))
	copy(out, n.notes)
	return out
}
