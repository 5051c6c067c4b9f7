package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "onion url",
			raw:  "http://stormous6qdxkjr3m.onion",
			want: "stormous6qdxkjr3m.onion",
		},
		{
			name: "trailing slash variant collides",
			raw:  "http://x.onion/",
			want: "x.onion",
		},
		{
			name: "https variant collides",
			raw:  "https://x.onion",
			want: "x.onion",
		},
		{
			name: "path separators sanitized",
			raw:  "http://x.onion/leaks?page=1",
			want: "x.onion-leaks-page-1",
		},
		{
			name: "uppercase folded",
			raw:  "HTTP://X.Onion",
			want: "x.onion",
		},
		{
			name: "scheme-less input",
			raw:  "x.onion/blog",
			want: "x.onion-blog",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, SlugFromURL(tc.raw))
		})
	}
}

func TestNormalizeGroupName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "lockbit", NormalizeGroupName("  LockBit "))
	require.Equal(t, "8base", NormalizeGroupName("8base"))
}

func TestPostIdentityKey(t *testing.T) {
	t.Parallel()

	withLink := Post{Title: "Acme Corp", Link: "http://x.onion/post/1"}
	sameLink := Post{Title: "Acme Corp updated", Link: "http://x.onion/post/1"}
	require.Equal(t, withLink.IdentityKey(), sameLink.IdentityKey())

	textOnly := Post{Title: "Acme Corp", Description: "500GB"}
	sameText := Post{Title: "Acme Corp", Description: "500GB"}
	otherText := Post{Title: "Acme Corp", Description: "600GB"}
	require.Equal(t, textOnly.IdentityKey(), sameText.IdentityKey())
	require.NotEqual(t, textOnly.IdentityKey(), otherText.IdentityKey())
}

func TestGroupHasLocation(t *testing.T) {
	t.Parallel()

	g := Group{Locations: []Location{{Slug: "abc123"}}}
	require.True(t, g.HasLocation("abc123"))
	require.False(t, g.HasLocation("def456"))
}
