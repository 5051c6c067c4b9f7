package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leaklook/leaklook/internal/feed"
	"github.com/leaklook/leaklook/internal/parser"
	memstore "github.com/leaklook/leaklook/internal/store/memory"
)

func TestAddLocationCreatesGroupAndAudits(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	eng, notifier := newTestEngine(t, st, &fakeDocs{docs: map[string][]byte{}})

	out, err := eng.AddLocation(context.Background(), "alice", feed.CategoryGroup, "LockBit", "http://abc123.onion/")
	require.NoError(t, err)
	require.Equal(t, OutcomeAdded, out)

	g, err := st.GetGroup(context.Background(), feed.CategoryGroup, "lockbit")
	require.NoError(t, err)
	require.Len(t, g.Locations, 1)
	require.Equal(t, "abc123.onion", g.Locations[0].Slug)
	require.True(t, g.Locations[0].Online)

	log, err := st.AuditLog(context.Background())
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, "alice", log[0].Actor)
	require.Equal(t, "add : lockbit, http://abc123.onion/", log[0].Action)
	require.NotEmpty(t, log[0].ID)

	require.Len(t, notifier.Notifications(), 1)
	require.Equal(t, feed.NotifyLocation, notifier.Notifications()[0].Kind)
}

func TestAddLocationDuplicateLeavesNoTrace(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	eng, notifier := newTestEngine(t, st, &fakeDocs{docs: map[string][]byte{}})

	_, err := eng.AddLocation(context.Background(), "alice", feed.CategoryGroup, "lockbit", "http://abc123.onion")
	require.NoError(t, err)

	// Scheme and trailing-slash variants resolve to the same slug.
	out, err := eng.AddLocation(context.Background(), "bob", feed.CategoryGroup, "lockbit", "https://abc123.onion/")
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)

	g, err := st.GetGroup(context.Background(), feed.CategoryGroup, "lockbit")
	require.NoError(t, err)
	require.Len(t, g.Locations, 1)

	log, err := st.AuditLog(context.Background())
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Len(t, notifier.Notifications(), 1)
}

func TestAddLocationValidatesInput(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	eng, _ := newTestEngine(t, st, &fakeDocs{docs: map[string][]byte{}})

	_, err := eng.AddLocation(context.Background(), "alice", "gang", "lockbit", "http://abc123.onion")
	require.Error(t, err)

	_, err = eng.AddLocation(context.Background(), "alice", feed.CategoryGroup, "", "http://abc123.onion")
	require.Error(t, err)

	_, err = eng.AddLocation(context.Background(), "alice", feed.CategoryGroup, "lockbit", "abc123.onion")
	require.Error(t, err)
}

func TestAddLocationMatchesIngestedSlug(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"lockbit-1": []byte("page")}}
	eng, _ := newTestEngine(t, st, docs, fakeParser{
		source: "lockbit",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{{Title: "victim", Link: "http://abc123.onion"}}},
		},
	})

	rep, err := eng.IngestSource(context.Background(), "lockbit")
	require.NoError(t, err)
	require.Equal(t, 1, rep.NewLocations)

	// The manual path must see the ingested location as a duplicate.
	out, err := eng.AddLocation(context.Background(), "alice", feed.CategoryGroup, "lockbit", "https://abc123.onion/")
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)
}

func TestEditGroup(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	eng, _ := newTestEngine(t, st, &fakeDocs{docs: map[string][]byte{}})

	_, err := eng.AddLocation(context.Background(), "alice", feed.CategoryGroup, "lockbit", "http://abc123.onion")
	require.NoError(t, err)

	meta := "ransomware-as-a-service"
	err = eng.EditGroup(context.Background(), "alice", feed.CategoryGroup, "LockBit", GroupUpdate{
		Meta:  &meta,
		Links: []string{"https://example.com/profile"},
	})
	require.NoError(t, err)

	g, err := st.GetGroup(context.Background(), feed.CategoryGroup, "lockbit")
	require.NoError(t, err)
	require.Equal(t, meta, g.Meta)
	require.Equal(t, []string{"https://example.com/profile"}, g.Links)
	require.Len(t, g.Locations, 1)

	log, err := st.AuditLog(context.Background())
	require.NoError(t, err)
	require.Equal(t, "modified : lockbit", log[0].Action)
}

func TestEditGroupMissing(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	eng, _ := newTestEngine(t, st, &fakeDocs{docs: map[string][]byte{}})

	err := eng.EditGroup(context.Background(), "alice", feed.CategoryGroup, "ghost", GroupUpdate{})
	require.Error(t, err)

	log, err := st.AuditLog(context.Background())
	require.NoError(t, err)
	require.Empty(t, log)
}

func TestRenameGroupMigratesAndAudits(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"conti-1": []byte("page")}}
	eng, _ := newTestEngine(t, st, docs, fakeParser{
		source: "conti",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{{Title: "victim"}}},
		},
	})

	_, err := eng.IngestSource(context.Background(), "conti")
	require.NoError(t, err)

	err = eng.RenameGroup(context.Background(), "alice", feed.CategoryGroup, "Conti", "BlackBasta")
	require.NoError(t, err)

	_, err = st.GetGroup(context.Background(), feed.CategoryGroup, "conti")
	require.Error(t, err)
	g, err := st.GetGroup(context.Background(), feed.CategoryGroup, "blackbasta")
	require.NoError(t, err)
	require.Equal(t, "blackbasta", g.Name)

	posts, err := st.PostsFor(context.Background(), "blackbasta")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "blackbasta", posts[0].Group)

	log, err := st.AuditLog(context.Background())
	require.NoError(t, err)
	require.Equal(t, "renamed : conti to blackbasta", log[0].Action)
}

func TestRenameGroupRejectsNoop(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	eng, _ := newTestEngine(t, st, &fakeDocs{docs: map[string][]byte{}})

	err := eng.RenameGroup(context.Background(), "alice", feed.CategoryGroup, "lockbit", "LockBit")
	require.Error(t, err)
}

func TestDeleteGroupPurgesAndAudits(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	docs := &fakeDocs{docs: map[string][]byte{"conti-1": []byte("page")}}
	eng, _ := newTestEngine(t, st, docs, fakeParser{
		source: "conti",
		results: map[string]parser.Result{
			"page": {Records: []feed.RawRecord{{Title: "victim"}}},
		},
	})

	_, err := eng.IngestSource(context.Background(), "conti")
	require.NoError(t, err)

	err = eng.DeleteGroup(context.Background(), "alice", feed.CategoryGroup, "conti")
	require.NoError(t, err)

	_, err = st.GetGroup(context.Background(), feed.CategoryGroup, "conti")
	require.Error(t, err)
	posts, err := st.PostsFor(context.Background(), "conti")
	require.NoError(t, err)
	require.Empty(t, posts)

	log, err := st.AuditLog(context.Background())
	require.NoError(t, err)
	require.Equal(t, "deleted : conti", log[0].Action)
}
