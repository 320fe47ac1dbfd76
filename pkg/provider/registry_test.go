package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedProvider struct {
	name       string
	urlPrefix  string
	searchable bool
}

func (p *namedProvider) Name() string { return p.name }
func (p *namedProvider) Searchable() bool { return p.searchable }

func (p *namedProvider) CanHandle(u string) bool {
	return p.urlPrefix != "" && strings.HasPrefix(u, p.urlPrefix)
}

func (p *namedProvider) Search(context.Context, string, int) ([]RawResult, error) {
	return nil, ErrUnsupported
}

func (p *namedProvider) FetchMetadata(context.Context, string) (*RawMetadata, error) {
	return nil, ErrUnsupported
}

func (p *namedProvider) OpenStream(context.Context, string) (*StreamSource, error) {
	return nil, ErrUnsupported
}

func TestNewRegistryRejectsBadProviders(t *testing.T) {
	tests := []struct {
		name      string
		providers []Provider
	}{
		{"nil provider", []Provider{nil}},
		{"empty name", []Provider{&namedProvider{name: "  "}}},
		{"duplicate name", []Provider{&namedProvider{name: "youtube"}, &namedProvider{name: "YouTube"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.providers...)
			assert.Error(t, err)
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	yt := &namedProvider{name: "youtube", urlPrefix: "https://www.youtube.com/", searchable: true}
	sc := &namedProvider{name: "soundcloud", urlPrefix: "https://soundcloud.com/", searchable: true}
	sp := &namedProvider{name: "spotify", urlPrefix: "https://open.spotify.com/"}
	reg, err := NewRegistry(yt, sc, sp)
	require.NoError(t, err)

	got, ok := reg.Get("YouTube")
	require.True(t, ok, "lookup is case-insensitive")
	assert.Same(t, yt, got)

	_, ok = reg.Get("bandcamp")
	assert.False(t, ok)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Same(t, yt, all[0], "registration order preserved")

	searchable := reg.Searchable()
	require.Len(t, searchable, 2)
	assert.Same(t, yt, searchable[0], "first searchable provider is the primary")

	p, ok := reg.ForURL("https://soundcloud.com/artist/track")
	require.True(t, ok)
	assert.Same(t, sc, p)

	_, ok = reg.ForURL("https://example.com/x")
	assert.False(t, ok)
}

func TestStreamSourceCloseNilSafe(t *testing.T) {
	var s *StreamSource
	assert.NoError(t, s.Close())
	assert.NoError(t, (&StreamSource{}).Close())
}
