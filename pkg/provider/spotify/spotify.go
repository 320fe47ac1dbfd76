// Package spotify adapts Spotify links into the provider boundary. Spotify
// cannot stream for us; it only carries track metadata that gets re-searched
// on a streaming platform. FetchMetadata scrapes the track page's OpenGraph
// tags, so no API credentials are needed.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
)

// Name is the provider identifier.
const Name = "spotify"

// Provider is the metadata-only Spotify adapter.
type Provider struct {
	client  *http.Client
	baseURL string
	logger  logging.Logger
}

// Option customizes the provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.client = client }
}

// WithBaseURL redirects page fetches, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = baseURL }
}

// New creates a Spotify provider.
func New(logger logging.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = logging.Default()
	}
	p := &Provider{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With(logging.String("component", "provider.spotify")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Searchable() bool { return false }

// CanHandle reports whether the URL is a Spotify track/album link.
func (p *Provider) CanHandle(urlStr string) bool {
	return strings.Contains(urlStr, "open.spotify.com")
}

// Search is unsupported; Spotify results cannot be streamed.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]provider.RawResult, error) {
	return nil, provider.ErrUnsupported
}

// OpenStream is unsupported.
func (p *Provider) OpenStream(ctx context.Context, urlStr string) (*provider.StreamSource, error) {
	return nil, provider.ErrUnsupported
}

// FetchMetadata scrapes the page's og:title and the artist from the page
// description ("Song · Artist · Year" or a "· song by Artist" suffix).
func (p *Provider) FetchMetadata(ctx context.Context, urlStr string) (*provider.RawMetadata, error) {
	fetchURL := urlStr
	if p.baseURL != "" {
		fetchURL = p.baseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("spotify metadata: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; playernix/1.0)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify metadata: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("spotify metadata: %w", err)
	}

	title, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
	description, _ := doc.Find(`meta[property="og:description"]`).Attr("content")
	image, _ := doc.Find(`meta[property="og:image"]`).Attr("content")

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("spotify metadata: no og:title on page")
	}

	artist := parseArtist(description)
	p.logger.Debug("scraped track metadata",
		logging.String("title", title),
		logging.String("artist", artist),
	)

	return &provider.RawMetadata{
		RawResult: provider.RawResult{
			URL:       urlStr,
			Title:     title,
			Channel:   artist,
			Thumbnail: image,
		},
		Artist: artist,
	}, nil
}

// parseArtist pulls the artist name out of an OpenGraph description.
func parseArtist(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}
	if idx := strings.Index(description, "song by "); idx >= 0 {
		rest := description[idx+len("song by "):]
		return strings.TrimSpace(strings.Split(rest, "·")[0])
	}
	parts := strings.Split(description, "·")
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
