// Package youtube adapts YouTube into the engine's provider boundary.
// Metadata, playlists and the primary stream path go through the native
// client; search and the fallback stream path go through yt-dlp.
package youtube

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	kkdai "github.com/kkdai/youtube/v2"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
	"github.com/Qiheena/playernix/pkg/provider/ytdlp"
)

// Name is the provider identifier.
const Name = "youtube"

var videoIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// Provider is the YouTube adapter.
type Provider struct {
	client *kkdai.Client
	runner *ytdlp.Runner
	logger logging.Logger
}

// New creates a YouTube provider.
func New(runner *ytdlp.Runner, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.Default()
	}
	return &Provider{
		client: &kkdai.Client{},
		runner: runner,
		logger: logger.With(logging.String("component", "provider.youtube")),
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Searchable() bool { return true }

// CanHandle reports whether the URL is a YouTube URL.
func (p *Provider) CanHandle(urlStr string) bool {
	return strings.Contains(urlStr, "youtube.com") || strings.Contains(urlStr, "youtu.be")
}

// ExtractVideoID extracts the 11-character video ID from a YouTube URL.
func ExtractVideoID(youtubeURL string) string {
	if strings.Contains(youtubeURL, "youtube.com") {
		parsedURL, err := url.Parse(youtubeURL)
		if err != nil {
			return ""
		}
		if videoID := parsedURL.Query().Get("v"); videoIDRe.MatchString(videoID) {
			return videoID
		}
		for _, prefix := range []string{"/embed/", "/v/", "/shorts/"} {
			if strings.Contains(parsedURL.Path, prefix) {
				parts := strings.SplitN(parsedURL.Path, prefix, 2)
				videoID := strings.Split(parts[1], "/")[0]
				if videoIDRe.MatchString(videoID) {
					return videoID
				}
			}
		}
		return ""
	}

	if strings.Contains(youtubeURL, "youtu.be") {
		parsedURL, err := url.Parse(youtubeURL)
		if err != nil {
			return ""
		}
		videoID := strings.TrimPrefix(parsedURL.Path, "/")
		videoID = strings.Split(videoID, "/")[0]
		if videoIDRe.MatchString(videoID) {
			return videoID
		}
	}

	return ""
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ThumbnailURL returns a thumbnail URL for a video ID.
func ThumbnailURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", videoID)
}

// Search queries YouTube via yt-dlp's ytsearch prefix.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]provider.RawResult, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := p.runner.Search(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	for i := range results {
		if results[i].URL == "" && results[i].ID != "" {
			results[i].URL = WatchURL(results[i].ID)
		}
		if results[i].Thumbnail == "" {
			results[i].Thumbnail = ThumbnailURL(results[i].ID)
		}
	}
	return results, nil
}

// FetchMetadata resolves a watch URL through the native client.
func (p *Provider) FetchMetadata(ctx context.Context, urlStr string) (*provider.RawMetadata, error) {
	video, err := p.client.GetVideoContext(ctx, urlStr)
	if err != nil {
		return nil, fmt.Errorf("youtube metadata: %w", err)
	}

	return &provider.RawMetadata{
		RawResult: provider.RawResult{
			ID:        video.ID,
			URL:       WatchURL(video.ID),
			Title:     video.Title,
			Channel:   video.Author,
			ChannelID: video.ChannelID,
			Views:     int64(video.Views),
			Duration:  video.Duration,
			Thumbnail: ThumbnailURL(video.ID),
		},
		Artist: video.Author,
	}, nil
}

// IsPlaylist reports whether the URL denotes a playlist.
func (p *Provider) IsPlaylist(urlStr string) bool {
	return strings.Contains(urlStr, "list=") || strings.Contains(urlStr, "/playlist")
}

// ExpandPlaylist resolves a playlist URL into individual items. Items the
// client cannot describe are skipped.
func (p *Provider) ExpandPlaylist(ctx context.Context, urlStr string, limit int) (*provider.PlaylistInfo, []provider.RawMetadata, error) {
	playlist, err := p.client.GetPlaylistContext(ctx, urlStr)
	if err != nil {
		return nil, nil, fmt.Errorf("youtube playlist: %w", err)
	}

	info := &provider.PlaylistInfo{
		ID:    playlist.ID,
		URL:   urlStr,
		Title: playlist.Title,
		Count: len(playlist.Videos),
	}

	items := make([]provider.RawMetadata, 0, limit)
	for _, entry := range playlist.Videos {
		if len(items) >= limit {
			break
		}
		if entry == nil || entry.ID == "" {
			p.logger.Debug("skipping unextractable playlist item")
			continue
		}
		thumbnail := ThumbnailURL(entry.ID)
		if len(entry.Thumbnails) > 0 {
			thumbnail = entry.Thumbnails[0].URL
		}
		items = append(items, provider.RawMetadata{
			RawResult: provider.RawResult{
				ID:        entry.ID,
				URL:       WatchURL(entry.ID),
				Title:     entry.Title,
				Channel:   entry.Author,
				Duration:  entry.Duration,
				Thumbnail: thumbnail,
			},
			Artist: entry.Author,
		})
	}
	return info, items, nil
}

// OpenStream opens an audio stream, native client first, yt-dlp fallback.
func (p *Provider) OpenStream(ctx context.Context, urlStr string) (*provider.StreamSource, error) {
	source, err := p.openNativeStream(ctx, urlStr)
	if err == nil {
		return source, nil
	}
	p.logger.Debug("native stream failed, falling back to yt-dlp",
		logging.String("url", urlStr),
		logging.Error(err),
	)

	source, fallbackErr := p.runner.OpenStream(ctx, urlStr)
	if fallbackErr != nil {
		return nil, fmt.Errorf("youtube stream: native: %v; yt-dlp: %w", err, fallbackErr)
	}
	return source, nil
}

func (p *Provider) openNativeStream(ctx context.Context, urlStr string) (*provider.StreamSource, error) {
	video, err := p.client.GetVideoContext(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	formats := video.Formats.WithAudioChannels().Type("audio")
	if len(formats) == 0 {
		formats = video.Formats.WithAudioChannels()
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no audio formats for %s", video.ID)
	}
	format := &formats[0]

	body, _, err := p.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, err
	}

	return &provider.StreamSource{Body: body, Type: streamType(format.MimeType)}, nil
}

// streamType maps a format MIME type to the engine's stream type tag.
func streamType(mimeType string) string {
	mime := strings.ToLower(mimeType)
	if strings.Contains(mime, "webm") && strings.Contains(mime, "opus") {
		return "webm/opus"
	}
	return "arbitrary"
}
