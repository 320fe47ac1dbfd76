package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
)

const trackPage = `<!DOCTYPE html>
<html>
<head>
<meta property="og:title" content="Never Gonna Give You Up"/>
<meta property="og:description" content="Never Gonna Give You Up · song by Rick Astley · 1987"/>
<meta property="og:image" content="https://i.scdn.co/image/abc"/>
</head>
<body></body>
</html>`

func TestCanHandle(t *testing.T) {
	p := New(logging.Discard())

	assert.True(t, p.CanHandle("https://open.spotify.com/track/4PTG3Z6ehGkBFwjybzWkR8"))
	assert.False(t, p.CanHandle("https://www.youtube.com/watch?v=abc"))
}

func TestSearchAndStreamUnsupported(t *testing.T) {
	p := New(logging.Discard())

	_, err := p.Search(context.Background(), "query", 5)
	assert.ErrorIs(t, err, provider.ErrUnsupported)

	_, err = p.OpenStream(context.Background(), "https://open.spotify.com/track/abc")
	assert.ErrorIs(t, err, provider.ErrUnsupported)

	assert.False(t, p.Searchable())
}

func TestFetchMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, trackPage)
	}))
	defer server.Close()

	p := New(logging.Discard(), WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	trackURL := "https://open.spotify.com/track/4PTG3Z6ehGkBFwjybzWkR8"
	meta, err := p.FetchMetadata(context.Background(), trackURL)
	require.NoError(t, err)

	assert.Equal(t, "Never Gonna Give You Up", meta.Title)
	assert.Equal(t, "Rick Astley", meta.Artist)
	assert.Equal(t, trackURL, meta.URL, "original link is preserved, not the fetch URL")
	assert.Equal(t, "https://i.scdn.co/image/abc", meta.Thumbnail)
}

func TestFetchMetadataMissingTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><head></head><body></body></html>")
	}))
	defer server.Close()

	p := New(logging.Discard(), WithBaseURL(server.URL))

	_, err := p.FetchMetadata(context.Background(), "https://open.spotify.com/track/abc")
	assert.Error(t, err)
}

func TestFetchMetadataBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := New(logging.Discard(), WithBaseURL(server.URL))

	_, err := p.FetchMetadata(context.Background(), "https://open.spotify.com/track/abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestParseArtist(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{"song by form", "Listen to this great track · song by Rick Astley · 1987", "Rick Astley"},
		{"dot separated form", "Track Name · Rick Astley · Song · 1987", "Rick Astley"},
		{"no separators", "just a description", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseArtist(tt.description))
		})
	}
}
