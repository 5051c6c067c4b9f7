package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leaklook/leaklook/internal/feed"
	memnotify "github.com/leaklook/leaklook/internal/notify/memory"
	"github.com/leaklook/leaklook/internal/parser"
	"github.com/leaklook/leaklook/internal/store"
	memstore "github.com/leaklook/leaklook/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeIDs struct {
	n int
}

func (f *fakeIDs) NewID() (string, error) {
	f.n++
	return fmt.Sprintf("id-%04d", f.n), nil
}

// fakeDocs serves documents from a map keyed by document name.
type fakeDocs struct {
	docs     map[string][]byte
	readErrs map[string]error
}

func (f *fakeDocs) List(_ context.Context, source string) ([]string, error) {
	var names []string
	for name := range f.docs {
		if len(name) > len(source) && name[:len(source)+1] == source+"-" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (f *fakeDocs) Read(_ context.Context, name string) ([]byte, error) {
	if err := f.readErrs[name]; err != nil {
		return nil, err
	}
	data, ok := f.docs[name]
	if !ok {
		return nil, errors.New("no such document")
	}
	return data, nil
}

// fakeParser maps raw document bytes to canned results.
type fakeParser struct {
	source  string
	results map[string]parser.Result
	err     error
}

func (p fakeParser) Source() string { return p.source }

func (p fakeParser) Extract(data []byte) (parser.Result, error) {
	if p.err != nil {
		return parser.Result{}, p.err
	}
	return p.results[string(data)], nil
}

// failingStore wraps a Store and fails AppendPosts.
type failingStore struct {
	store.Store
	appendErr error
}

func (s *failingStore) AppendPosts(ctx context.Context, group string, posts []feed.Post) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Store.AppendPosts(ctx, group, posts)
}

func newTestEngine(t *testing.T, st store.Store, docs feed.DocumentSource, parsers ...parser.Parser) (*Engine, *memnotify.Notifier) {
	t.Helper()
	reg := parser.NewRegistry()
	for _, p := range parsers {
		reg.Register(p)
	}
	notifier := memnotify.New()
	eng := New(
		reg,
		docs,
		st,
		notifier,
		&fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		&fakeIDs{},
		nil,
		Config{Concurrency: 2, ParseTimeout: time.Second},
		zap.NewNop(),
	)
	return eng, notifier
}

func TestIngestSourceMergesPostsAndLocations(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"lockbit-1": []byte("page")}}
	p := fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{
				{Title: "victim-a", Description: "dump", Link: "http://abc123.onion/"},
				{Title: "victim-b", Description: "dump", Link: "https://def456.onion"},
				{Title: "victim-c", Description: "no link"},
			}},
		},
	}
	eng, notifier := newTestEngine(t, st, docs, p)

	rep, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, feed.IngestMerged, rep.Status)
	require.Equal(t, 1, rep.Documents)
	require.Equal(t, 3, rep.Candidates)
	require.Equal(t, 3, rep.NewPosts)
	require.Equal(t, 2, rep.NewLocations)

	g, err := st.GetGroup(context.Background(), feed.CategoryGroup, "lockbit")
	require.NoError(t, err)
	require.Len(t, g.Locations, 2)
	require.True(t, g.HasLocation("abc123.onion"))
	require.True(t, g.HasLocation("def456.onion"))

	posts, err := st.PostsFor(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Len(t, posts, 3)

	// One notification per merged record.
	require.Len(t, notifier.Notifications(), 5)
}

func TestIngestSourceIsIdempotent(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"lockbit-1": []byte("page")}}
	p := fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{
				{Title: "victim-a", Link: "http://abc123.onion"},
				{Title: "victim-b", Description: "text only"},
			}},
		},
	}
	eng, _ := newTestEngine(t, st, docs, p)

	first, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, 2, first.NewPosts)
	require.Equal(t, 1, first.NewLocations)

	second, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, feed.IngestSkipped, second.Status)
	require.Zero(t, second.NewPosts)
	require.Zero(t, second.NewLocations)

	posts, err := st.PostsFor(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	g, err := st.GetGroup(context.Background(), feed.CategoryGroup, "lockbit")
	require.NoError(t, err)
	require.Len(t, g.Locations, 1)
}

func TestIngestSourcePreservesExistingLocationTimestamp(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	seeded := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.PutGroup(context.Background(), feed.Group{
		Name:     "lockbit",
		Category: feed.CategoryGroup,
		Locations: []feed.Location{
			{Slug: "abc123.onion", URL: "http://abc123.onion", DiscoveredAt: seeded, Online: true},
		},
	}))

	docs := &fakeDocs{docs: map[string][]byte{"lockbit-1": []byte("page")}}
	p := fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{
				{Title: "victim-a", Link: "https://abc123.onion/"},
				{Title: "victim-b", Link: "http://def456.onion"},
			}},
		},
	}
	eng, _ := newTestEngine(t, st, docs, p)

	rep, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, feed.IngestMerged, rep.Status)
	require.Equal(t, 1, rep.NewLocations)

	g, err := st.GetGroup(context.Background(), feed.CategoryGroup, "lockbit")
	require.NoError(t, err)
	require.Len(t, g.Locations, 2)

	bySlug := make(map[string]feed.Location, len(g.Locations))
	for _, loc := range g.Locations {
		bySlug[loc.Slug] = loc
	}
	// The known location keeps its original discovery time; only the new
	// one is stamped by this cycle.
	require.Equal(t, seeded, bySlug["abc123.onion"].DiscoveredAt)
	require.True(t, bySlug["def456.onion"].DiscoveredAt.After(seeded))
}

func TestIngestSourceSchemeVariantsCollide(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"lockbit-1": []byte("page")}}
	p := fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{
				{Title: "a", Link: "http://abc123.onion"},
				{Title: "b", Link: "https://abc123.onion/"},
			}},
		},
	}
	eng, _ := newTestEngine(t, st, docs, p)

	rep, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, 1, rep.NewLocations)
	require.Equal(t, 2, rep.NewPosts)
}

func TestIngestSourceCountsSkippedCandidates(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"lockbit-1": []byte("page")}}
	p := fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {
				Records: []feed.RawRecord{{Title: "good-1"}, {Title: "good-2"}},
				Skipped: 1,
			},
		},
	}
	eng, _ := newTestEngine(t, st, docs, p)

	rep, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, feed.IngestMerged, rep.Status)
	require.Equal(t, 1, rep.Skipped)
	require.Equal(t, 2, rep.NewPosts)
}

func TestIngestSourceSkipsUnreadableDocument(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{
		docs: map[string][]byte{
			"lockbit-1": []byte("page"),
			"lockbit-2": []byte("broken"),
		},
		readErrs: map[string]error{"lockbit-2": errors.New("io failure")},
	}
	p := fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{{Title: "survivor"}}},
		},
	}
	eng, _ := newTestEngine(t, st, docs, p)

	rep, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, feed.IngestMerged, rep.Status)
	require.Equal(t, 1, rep.Documents)
	require.Equal(t, 1, rep.NewPosts)
	require.Contains(t, rep.ErrorText, "unreadable")
}

func TestIngestSourceUnknownSourceFailsWithoutAbort(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	eng, _ := newTestEngine(t, st, &fakeDocs{docs: map[string][]byte{}})
	rep, err := eng.IngestSource(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, feed.IngestFailed, rep.Status)
	require.Contains(t, rep.ErrorText, "no parser registered")
}

func TestIngestSourceStoreFailureEscalates(t *testing.T) {
	base := memstore.New()
	defer base.Close()
	st := &failingStore{Store: base, appendErr: errors.New("backend down")}

	docs := &fakeDocs{docs: map[string][]byte{"lockbit-1": []byte("page")}}
	p := fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{{Title: "victim"}}},
		},
	}
	eng, _ := newTestEngine(t, st, docs, p)

	rep, err := eng.IngestSource(context.Background(), "lockbit")
	require.Error(t, err)
	require.Equal(t, feed.IngestFailed, rep.Status)
	require.Contains(t, rep.ErrorText, "backend down")
}

func TestRunReportsEverySource(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"alpha-1": []byte("page")}}
	eng, _ := newTestEngine(t, st, docs,
		fakeParser{
			source: "alpha",
			results: map[string]parser.Result{
				"page": {Records: []feed.RawRecord{{Title: "victim"}}},
			},
		},
		fakeParser{source: "beta"},
	)

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Finished.Before(report.Started))

	bySource := make(map[string]feed.SourceReport, len(report.Sources))
	for _, s := range report.Sources {
		bySource[s.Source] = s
	}
	require.Equal(t, feed.IngestMerged, bySource["alpha"].Status)
	// beta has no staged documents.
	require.Equal(t, feed.IngestSkipped, bySource["beta"].Status)

	total := report.Totals()
	require.Equal(t, 1, total.NewPosts)
}

func TestMergeSurvivesNotifierFailure(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"lockbit-1": []byte("page")}}
	p := fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{{Title: "victim"}}},
		},
	}
	eng, notifier := newTestEngine(t, st, docs, p)
	notifier.Fail(errors.New("broker unreachable"))

	rep, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, feed.IngestMerged, rep.Status)

	posts, err := st.PostsFor(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Len(t, posts, 1)
}

func TestExtractTimeout(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	eng, _ := newTestEngine(t, st, &fakeDocs{docs: map[string][]byte{}})
	eng.cfg.ParseTimeout = 10 * time.Millisecond

	_, err := eng.extract(context.Background(), slowParser{}, []byte("x"))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type slowParser struct{}

func (slowParser) Source() string { return "slow" }

func (slowParser) Extract([]byte) (parser.Result, error) {
	time.Sleep(time.Second)
	return parser.Result{}, nil
}
