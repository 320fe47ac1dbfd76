// Package provider defines the boundary between the engine and upstream
// audio platforms. Each adapter converts its platform's shapes into the
// fixed ingress types below before anything else sees them.
package provider

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrUnsupported is returned by adapters that cannot perform the requested
// operation (e.g. a metadata-only platform asked to open a stream).
var ErrUnsupported = errors.New("operation not supported by this provider")

// RawResult is the fixed shape of a single search result. Adapters populate
// it on ingress; ranking and racing never see platform-specific types.
type RawResult struct {
	ID        string
	URL       string
	Title     string
	Channel   string
	ChannelID string
	Verified  bool
	Views     int64
	Duration  time.Duration
	Thumbnail string
}

// RawMetadata describes a single track fetched from a direct URL.
type RawMetadata struct {
	RawResult
	Artist string
}

// PlaylistInfo describes a collection a direct URL expanded into.
type PlaylistInfo struct {
	ID    string
	URL   string
	Title string
	Count int
}

// StreamSource is a live audio byte-stream plus the container type tag the
// downstream decoder path keys on.
type StreamSource struct {
	Body io.ReadCloser
	Type string
}

// Close releases the underlying stream. Safe on a nil source.
func (s *StreamSource) Close() error {
	if s == nil || s.Body == nil {
		return nil
	}
	return s.Body.Close()
}

// Provider is one upstream audio platform. Implementations may stall, fail
// or return empty; callers own timeouts via ctx.
type Provider interface {
	// Name returns the provider's stable lowercase identifier.
	Name() string

	// CanHandle reports whether the URL belongs to this provider's platform.
	CanHandle(url string) bool

	// Searchable reports whether this provider supports free-text search.
	Searchable() bool

	// Search returns up to limit results for the query.
	Search(ctx context.Context, query string, limit int) ([]RawResult, error)

	// FetchMetadata resolves a direct URL into track metadata.
	FetchMetadata(ctx context.Context, url string) (*RawMetadata, error)

	// OpenStream opens a live audio stream for the URL.
	OpenStream(ctx context.Context, url string) (*StreamSource, error)
}

// PlaylistExpander is implemented by providers whose URLs can denote
// collections.
type PlaylistExpander interface {
	// IsPlaylist reports whether the URL denotes a collection.
	IsPlaylist(url string) bool

	// ExpandPlaylist resolves a collection URL into up to limit items.
	// Individual unextractable items are skipped, not fatal.
	ExpandPlaylist(ctx context.Context, url string, limit int) (*PlaylistInfo, []RawMetadata, error)
}
