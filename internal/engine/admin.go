package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/leaklook/leaklook/internal/feed"
)

// AddOutcome reports how an AddLocation call resolved.
type AddOutcome string

// AddLocation outcomes. A duplicate is a normal answer, not an error.
const (
	OutcomeAdded     AddOutcome = "added"
	OutcomeDuplicate AddOutcome = "duplicate"
)

// GroupUpdate carries the editable registry fields. Nil pointers and nil
// maps/slices mean "leave unchanged".
type GroupUpdate struct {
	Meta    *string
	Profile map[string]string
	Links   []string
}

// AddLocation registers a URL as a location of the named group, creating the
// registry entry when it does not exist yet. Duplicate detection uses the
// same slug comparison as bulk ingestion, so the two paths cannot disagree.
func (e *Engine) AddLocation(
	ctx context.Context,
	actor string,
	cat feed.Category,
	name, rawURL string,
) (AddOutcome, error) {
	if !cat.Valid() {
		return "", fmt.Errorf("unknown category %q", cat)
	}
	name = feed.NormalizeGroupName(name)
	if name == "" {
		return "", fmt.Errorf("group name is required")
	}
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", fmt.Errorf("location url must be absolute, got %q", rawURL)
	}

	unlock := e.locks.Lock(name)
	defer unlock()

	g, err := e.store.GetGroup(ctx, cat, name)
	switch {
	case err == nil:
	case isNotFound(err):
		g = feed.Group{Name: name, Category: cat}
	default:
		return "", fmt.Errorf("load group %q: %w", name, err)
	}

	slug := feed.SlugFromURL(rawURL)
	if g.HasLocation(slug) {
		return OutcomeDuplicate, nil
	}

	now := e.clock.Now()
	loc := feed.Location{Slug: slug, URL: rawURL, DiscoveredAt: now, Online: true}
	g.Locations = append(g.Locations, loc)
	if err := e.store.PutGroup(ctx, g); err != nil {
		return "", fmt.Errorf("persist group %q: %w", name, err)
	}
	if err := e.audit(ctx, actor, fmt.Sprintf("add : %s, %s", name, rawURL)); err != nil {
		return "", err
	}
	e.notify(ctx, feed.Notification{
		Group:        name,
		Subject:      rawURL,
		Kind:         feed.NotifyLocation,
		DiscoveredAt: now,
	})
	e.emit(progressMerged(now, name, feed.NotifyLocation, 1))
	return OutcomeAdded, nil
}

// EditGroup updates the free-form registry fields of an existing entry.
func (e *Engine) EditGroup(
	ctx context.Context,
	actor string,
	cat feed.Category,
	name string,
	upd GroupUpdate,
) error {
	if !cat.Valid() {
		return fmt.Errorf("unknown category %q", cat)
	}
	name = feed.NormalizeGroupName(name)

	unlock := e.locks.Lock(name)
	defer unlock()

	g, err := e.store.GetGroup(ctx, cat, name)
	if err != nil {
		return fmt.Errorf("load group %q: %w", name, err)
	}
	if upd.Meta != nil {
		g.Meta = *upd.Meta
	}
	if upd.Profile != nil {
		g.Profile = upd.Profile
	}
	if upd.Links != nil {
		g.Links = upd.Links
	}
	if err := e.store.PutGroup(ctx, g); err != nil {
		return fmt.Errorf("persist group %q: %w", name, err)
	}
	return e.audit(ctx, actor, fmt.Sprintf("modified : %s", name))
}

// RenameGroup moves a registry entry to a new name, carrying its post log
// along. Both names are locked for the duration so concurrent ingestion
// cannot observe the half-moved state.
func (e *Engine) RenameGroup(
	ctx context.Context,
	actor string,
	cat feed.Category,
	oldName, newName string,
) error {
	if !cat.Valid() {
		return fmt.Errorf("unknown category %q", cat)
	}
	oldName = feed.NormalizeGroupName(oldName)
	newName = feed.NormalizeGroupName(newName)
	if newName == "" {
		return fmt.Errorf("new group name is required")
	}
	if oldName == newName {
		return fmt.Errorf("rename target equals current name %q", oldName)
	}

	// Locks taken in sorted order so two concurrent renames cannot deadlock.
	first, second := oldName, newName
	if second < first {
		first, second = second, first
	}
	unlockFirst := e.locks.Lock(first)
	defer unlockFirst()
	unlockSecond := e.locks.Lock(second)
	defer unlockSecond()

	if err := e.store.RenameGroup(ctx, cat, oldName, newName); err != nil {
		return fmt.Errorf("rename group %q: %w", oldName, err)
	}
	return e.audit(ctx, actor, fmt.Sprintf("renamed : %s to %s", oldName, newName))
}

// DeleteGroup removes a registry entry and purges its post log.
func (e *Engine) DeleteGroup(
	ctx context.Context,
	actor string,
	cat feed.Category,
	name string,
) error {
	if !cat.Valid() {
		return fmt.Errorf("unknown category %q", cat)
	}
	name = feed.NormalizeGroupName(name)

	unlock := e.locks.Lock(name)
	defer unlock()

	if err := e.store.DeleteGroup(ctx, cat, name); err != nil {
		return fmt.Errorf("delete group %q: %w", name, err)
	}
	return e.audit(ctx, actor, fmt.Sprintf("deleted : %s", name))
}

// audit appends one entry to the audit log. Callers invoke it only after the
// mutation itself committed, so a failed or duplicate operation leaves no
// trace.
func (e *Engine) audit(ctx context.Context, actor, action string) error {
	id, err := e.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate audit id: %w", err)
	}
	entry := feed.AuditEntry{ID: id, Actor: actor, Action: action, At: e.clock.Now()}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		e.logger.Error("audit append failed",
			zap.String("actor", actor),
			zap.String("action", action),
			zap.Error(err),
		)
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
