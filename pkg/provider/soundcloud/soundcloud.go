// Package soundcloud adapts SoundCloud into the provider boundary. There is
// no native client; everything goes through yt-dlp.
package soundcloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
	"github.com/Qiheena/playernix/pkg/provider/ytdlp"
)

// Name is the provider identifier.
const Name = "soundcloud"

// Provider is the SoundCloud adapter.
type Provider struct {
	runner *ytdlp.Runner
	logger logging.Logger
}

// New creates a SoundCloud provider.
func New(runner *ytdlp.Runner, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.Default()
	}
	return &Provider{
		runner: runner,
		logger: logger.With(logging.String("component", "provider.soundcloud")),
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Searchable() bool { return true }

// CanHandle reports whether the URL is a SoundCloud URL.
func (p *Provider) CanHandle(urlStr string) bool {
	return strings.Contains(urlStr, "soundcloud.com")
}

// Search queries SoundCloud via yt-dlp's scsearch prefix.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]provider.RawResult, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := p.runner.Search(ctx, fmt.Sprintf("scsearch%d:%s", limit, query))
	if err != nil {
		return nil, fmt.Errorf("soundcloud search: %w", err)
	}
	return results, nil
}

// FetchMetadata resolves a track URL.
func (p *Provider) FetchMetadata(ctx context.Context, urlStr string) (*provider.RawMetadata, error) {
	meta, err := p.runner.Fetch(ctx, urlStr)
	if err != nil {
		return nil, fmt.Errorf("soundcloud metadata: %w", err)
	}
	if meta.Artist == "" {
		meta.Artist = meta.Channel
	}
	return meta, nil
}

// OpenStream opens a piped audio stream.
func (p *Provider) OpenStream(ctx context.Context, urlStr string) (*provider.StreamSource, error) {
	source, err := p.runner.OpenStream(ctx, urlStr)
	if err != nil {
		return nil, fmt.Errorf("soundcloud stream: %w", err)
	}
	return source, nil
}
