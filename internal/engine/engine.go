// Package engine implements the ingestion/merge pipeline: it dispatches
// staged raw documents to the matching parser, reconciles extracted records
// against the canonical store with duplicate-safe merge semantics, and
// exposes the actor-attributed admin mutations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leaklook/leaklook/internal/feed"
	"github.com/leaklook/leaklook/internal/parser"
	"github.com/leaklook/leaklook/internal/progress"
	"github.com/leaklook/leaklook/internal/store"
)

// Config controls ingestion behavior.
type Config struct {
	// Concurrency bounds how many sources are ingested in parallel.
	Concurrency int
	// ParseTimeout bounds extraction of a single document so one
	// pathological page cannot stall the cycle.
	ParseTimeout time.Duration
}

const (
	defaultConcurrency  = 4
	defaultParseTimeout = 30 * time.Second
)

// ErrUnreadable marks a staged document that could not be read or decoded.
// It is reported per document and never aborts the rest of the source.
var ErrUnreadable = errors.New("document unreadable")

// Engine orchestrates parser dispatch, merge, and admin mutations. All
// writes to one group's record are serialized through a per-group lock; the
// bulk merge path and the admin path share it.
type Engine struct {
	registry *parser.Registry
	docs     feed.DocumentSource
	store    store.Store
	notifier feed.Notifier
	clock    feed.Clock
	ids      feed.IDGenerator
	emitter  progress.Emitter
	locks    *keyedMutex
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Engine. Notifier and emitter are optional.
func New(
	registry *parser.Registry,
	docs feed.DocumentSource,
	st store.Store,
	notifier feed.Notifier,
	clock feed.Clock,
	ids feed.IDGenerator,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ParseTimeout <= 0 {
		cfg.ParseTimeout = defaultParseTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		docs:     docs,
		store:    st,
		notifier: notifier,
		clock:    clock,
		ids:      ids,
		emitter:  emitter,
		locks:    newKeyedMutex(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one ingestion cycle over every registered source. Per-source
// failures are contained in the report; a store failure aborts the cycle and
// is escalated so an unfinished merge is never reported as success.
func (e *Engine) Run(ctx context.Context) (feed.CycleReport, error) {
	report := feed.CycleReport{Started: e.clock.Now()}
	e.emit(progress.Event{TS: report.Started, Stage: progress.StageCycleStart})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sources := make(chan string)
	var (
		mu       sync.Mutex
		firstErr error
	)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range sources {
				rep, err := e.IngestSource(ctx, src)
				mu.Lock()
				report.Sources = append(report.Sources, rep)
				if err != nil && firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}()
	}
	for _, src := range e.registry.Sources() {
		select {
		case sources <- src:
		case <-ctx.Done():
		}
	}
	close(sources)
	wg.Wait()

	sort.Slice(report.Sources, func(i, j int) bool {
		return report.Sources[i].Source < report.Sources[j].Source
	})
	report.Finished = e.clock.Now()
	e.emit(progress.Event{
		TS:    report.Finished,
		Stage: progress.StageCycleDone,
		Dur:   report.Finished.Sub(report.Started),
	})
	if firstErr != nil {
		return report, fmt.Errorf("ingestion cycle aborted: %w", firstErr)
	}
	return report, ctx.Err()
}

// IngestSource runs the Pending → Parsed → Merged|Skipped|Failed state
// machine for one source. The returned error is non-nil only for store
// failures, which must abort the whole cycle.
func (e *Engine) IngestSource(ctx context.Context, src string) (feed.SourceReport, error) {
	started := e.clock.Now()
	rep := feed.SourceReport{Source: src, Status: feed.IngestPending}
	e.emit(progress.Event{TS: started, Stage: progress.StageSourceStart, Source: src})

	p, err := e.registry.Lookup(src)
	if err != nil {
		return e.failSource(rep, started, err), nil
	}
	names, err := e.docs.List(ctx, src)
	if err != nil {
		return e.failSource(rep, started, fmt.Errorf("list documents: %w", err)), nil
	}
	if len(names) == 0 {
		rep.Status = feed.IngestSkipped
		e.emitSourceDone(rep, started)
		return rep, nil
	}

	records := e.extractAll(ctx, p, names, &rep)
	if rep.Status == feed.IngestFailed {
		return rep, nil
	}
	rep.Status = feed.IngestParsed
	if len(records) == 0 {
		rep.Status = feed.IngestSkipped
		e.emitSourceDone(rep, started)
		return rep, nil
	}

	newLocations, newPosts, err := e.mergeGroup(ctx, src, feed.CategoryGroup, records)
	if err != nil {
		rep.Status = feed.IngestFailed
		rep.ErrorText = err.Error()
		e.emit(progress.Event{
			TS:     e.clock.Now(),
			Stage:  progress.StageSourceError,
			Source: src,
			Dur:    e.clock.Now().Sub(started),
			Note:   rep.ErrorText,
		})
		return rep, err
	}
	rep.NewLocations = newLocations
	rep.NewPosts = newPosts
	if newLocations+newPosts == 0 {
		rep.Status = feed.IngestSkipped
	} else {
		rep.Status = feed.IngestMerged
	}
	e.emitSourceDone(rep, started)
	return rep, nil
}

// extractAll reads and parses every staged document for the source. An
// unreadable document is logged and skipped; a per-candidate extraction
// failure is counted and evented without aborting its siblings.
func (e *Engine) extractAll(
	ctx context.Context,
	p parser.Parser,
	names []string,
	rep *feed.SourceReport,
) []feed.RawRecord {
	var records []feed.RawRecord
	for _, name := range names {
		if ctx.Err() != nil {
			rep.Status = feed.IngestFailed
			rep.ErrorText = ctx.Err().Error()
			return nil
		}
		data, err := e.docs.Read(ctx, name)
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
			e.logger.Warn("document read failed",
				zap.String("source", rep.Source),
				zap.Error(err),
			)
			rep.ErrorText = err.Error()
			continue
		}
		res, err := e.extract(ctx, p, data)
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
			e.logger.Warn("document decode failed",
				zap.String("source", rep.Source),
				zap.Error(err),
			)
			rep.ErrorText = err.Error()
			continue
		}
		rep.Documents++
		rep.Candidates += len(res.Records)
		if res.Skipped > 0 {
			rep.Skipped += res.Skipped
			e.emit(progress.Event{
				TS:     e.clock.Now(),
				Stage:  progress.StageRecordSkipped,
				Source: rep.Source,
				Count:  int64(res.Skipped),
				Note:   name,
			})
		}
		for _, rec := range res.Records {
			if rec.Slug == "" {
				rec.Slug = name
			}
			records = append(records, rec)
		}
	}
	return records
}

// extract runs one parser under the configured timeout. Extraction has no
// cancellation points of its own, so a timed-out parse is abandoned rather
// than interrupted.
func (e *Engine) extract(ctx context.Context, p parser.Parser, data []byte) (parser.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ParseTimeout)
	defer cancel()

	type outcome struct {
		res parser.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := p.Extract(data)
		ch <- outcome{res: res, err: err}
	}()
	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return parser.Result{}, fmt.Errorf("extract %s: %w", p.Source(), ctx.Err())
	}
}

// mergeGroup reconciles candidate records against the group's known state
// under the group's lock. Candidates carrying an absolute URL also become
// location candidates, deduplicated on the derived slug; every candidate is
// a post candidate, deduplicated on the identity key. The merge commits
// fully or not at all: cancellation is honored only before the first write.
func (e *Engine) mergeGroup(
	ctx context.Context,
	groupName string,
	cat feed.Category,
	records []feed.RawRecord,
) (newLocations, newPosts int, err error) {
	groupName = feed.NormalizeGroupName(groupName)
	unlock := e.locks.Lock(groupName)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	g, err := e.store.GetGroup(ctx, cat, groupName)
	switch {
	case err == nil:
	case isNotFound(err):
		g = feed.Group{Name: groupName, Category: cat}
	default:
		return 0, 0, fmt.Errorf("load group %q: %w", groupName, err)
	}

	existing, err := e.store.PostsFor(ctx, groupName)
	if err != nil {
		return 0, 0, fmt.Errorf("load posts for %q: %w", groupName, err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		seen[p.IdentityKey()] = struct{}{}
	}

	now := e.clock.Now()
	var (
		locations []feed.Location
		posts     []feed.Post
	)
	for _, rec := range records {
		if loc, ok := locationCandidate(rec, now); ok && !g.HasLocation(loc.Slug) {
			g.Locations = append(g.Locations, loc)
			locations = append(locations, loc)
		}
		post := feed.Post{
			Group:        groupName,
			Title:        rec.Title,
			Description:  rec.Description,
			Link:         rec.Link,
			Slug:         rec.Slug,
			DiscoveredAt: now,
		}
		key := post.IdentityKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		posts = append(posts, post)
	}
	if len(locations) == 0 && len(posts) == 0 {
		return 0, 0, nil
	}

	// Once the first write lands the whole merge commits. Detaching from the
	// caller's cancellation keeps the group and post partitions consistent.
	writeCtx := context.WithoutCancel(ctx)
	if len(locations) > 0 {
		if err := e.store.PutGroup(writeCtx, g); err != nil {
			return 0, 0, fmt.Errorf("persist group %q: %w", groupName, err)
		}
	}
	if err := e.store.AppendPosts(writeCtx, groupName, posts); err != nil {
		return 0, 0, fmt.Errorf("persist posts for %q: %w", groupName, err)
	}

	for _, loc := range locations {
		e.notify(ctx, feed.Notification{
			Group:        groupName,
			Subject:      loc.URL,
			Kind:         feed.NotifyLocation,
			DiscoveredAt: loc.DiscoveredAt,
		})
	}
	for _, p := range posts {
		e.notify(ctx, feed.Notification{
			Group:        groupName,
			Subject:      p.Title,
			Kind:         feed.NotifyPost,
			DiscoveredAt: p.DiscoveredAt,
		})
	}
	if len(locations) > 0 {
		e.emit(progressMerged(now, groupName, feed.NotifyLocation, int64(len(locations))))
	}
	if len(posts) > 0 {
		e.emit(progressMerged(now, groupName, feed.NotifyPost, int64(len(posts))))
	}
	return len(locations), len(posts), nil
}

func locationCandidate(rec feed.RawRecord, now time.Time) (feed.Location, bool) {
	link := strings.TrimSpace(rec.Link)
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		return feed.Location{}, false
	}
	return feed.Location{
		Slug:         feed.SlugFromURL(link),
		URL:          link,
		DiscoveredAt: now,
		Online:       true,
	}, true
}

func (e *Engine) failSource(rep feed.SourceReport, started time.Time, err error) feed.SourceReport {
	rep.Status = feed.IngestFailed
	rep.ErrorText = err.Error()
	e.logger.Warn("source ingestion failed",
		zap.String("source", rep.Source),
		zap.Error(err),
	)
	e.emit(progress.Event{
		TS:     e.clock.Now(),
		Stage:  progress.StageSourceError,
		Source: rep.Source,
		Dur:    e.clock.Now().Sub(started),
		Note:   rep.ErrorText,
	})
	return rep
}

func (e *Engine) emitSourceDone(rep feed.SourceReport, started time.Time) {
	e.emit(progress.Event{
		TS:     e.clock.Now(),
		Stage:  progress.StageSourceDone,
		Source: rep.Source,
		Count:  int64(rep.NewPosts + rep.NewLocations),
		Dur:    e.clock.Now().Sub(started),
	})
}

func progressMerged(ts time.Time, group, kind string, count int64) progress.Event {
	return progress.Event{
		TS:    ts,
		Stage: progress.StageRecordMerged,
		Group: group,
		Kind:  kind,
		Count: count,
	}
}

func (e *Engine) emit(evt progress.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// notify is best-effort: a notifier failure is logged and never rolls back
// or blocks the merge.
func (e *Engine) notify(ctx context.Context, n feed.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("notification failed",
			zap.String("group", n.Group),
			zap.String("kind", n.Kind),
			zap.Error(err),
		)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
