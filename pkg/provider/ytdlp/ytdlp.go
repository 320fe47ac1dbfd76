// Package ytdlp wraps the yt-dlp binary for search, metadata and piped
// audio extraction. Both streaming platforms share this runner; only the
// search prefix differs.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
)

// DefaultBinary is the yt-dlp executable looked up on PATH.
const DefaultBinary = "yt-dlp"

// Runner executes yt-dlp commands.
type Runner struct {
	binary string
	logger logging.Logger
}

// NewRunner creates a runner for the given binary. Empty binary uses the
// default PATH lookup.
func NewRunner(binary string, logger logging.Logger) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		binary: binary,
		logger: logger.With(logging.String("component", "ytdlp")),
	}
}

// entry is the subset of yt-dlp's JSON output the engine consumes.
type entry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Channel    string  `json:"channel"`
	Uploader   string  `json:"uploader"`
	ChannelID  string  `json:"channel_id"`
	Verified   bool    `json:"channel_is_verified"`
	ViewCount  int64   `json:"view_count"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
}

func (e *entry) toRawResult() provider.RawResult {
	url := e.WebpageURL
	if url == "" {
		url = e.URL
	}
	channel := e.Channel
	if channel == "" {
		channel = e.Uploader
	}
	return provider.RawResult{
		ID:        e.ID,
		URL:       url,
		Title:     e.Title,
		Channel:   channel,
		ChannelID: e.ChannelID,
		Verified:  e.Verified,
		Views:     e.ViewCount,
		Duration:  time.Duration(e.Duration * float64(time.Second)),
		Thumbnail: e.Thumbnail,
	}
}

// ParseResults decodes newline-delimited yt-dlp JSON entries.
func ParseResults(r io.Reader) ([]provider.RawResult, error) {
	var results []provider.RawResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
		}
		results = append(results, e.toRawResult())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Search runs a prefixed search (e.g. "ytsearch10:query") and returns the
// parsed results.
func (r *Runner) Search(ctx context.Context, spec string) ([]provider.RawResult, error) {
	cmd := exec.CommandContext(ctx, r.binary,
		"--flat-playlist",
		"--no-warnings",
		"-j",
		spec)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// yt-dlp sometimes exits non-zero after printing usable entries
		if out.Len() == 0 {
			return nil, fmt.Errorf("yt-dlp search failed: %v: %s", err, firstLine(stderr.String()))
		}
	}

	results, err := ParseResults(&out)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("search finished",
		logging.String("spec", spec),
		logging.Int("results", len(results)),
	)
	return results, nil
}

// Fetch resolves a single URL into metadata without downloading.
func (r *Runner) Fetch(ctx context.Context, url string) (*provider.RawMetadata, error) {
	cmd := exec.CommandContext(ctx, r.binary,
		"--no-playlist",
		"--no-warnings",
		"-j",
		url)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp metadata fetch failed: %v: %s", err, firstLine(stderr.String()))
	}

	var e entry
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &e); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp metadata: %w", err)
	}
	return &provider.RawMetadata{RawResult: e.toRawResult()}, nil
}

// pipeStream is the live stdout of a running yt-dlp process. Close kills
// the process and reaps it.
type pipeStream struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

func (p *pipeStream) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *pipeStream) Close() error {
	p.cancel()
	p.stdout.Close()
	// reap; exit error is expected after a kill
	_ = p.cmd.Wait()
	return nil
}

// OpenStream spawns yt-dlp writing best-audio to stdout and returns the pipe as
// a live stream. The caller must Close the source to release the process.
func (r *Runner) OpenStream(ctx context.Context, url string) (*provider.StreamSource, error) {
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, r.binary,
		"-f", "bestaudio/best",
		"--no-warnings",
		"--no-check-certificates",
		"--geo-bypass",
		"--no-playlist",
		"--extractor-args", "youtube:player_client=android",
		"--hls-use-mpegts",
		"-o", "-",
		url)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	go r.consumeStderr(stderr)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	r.logger.Debug("yt-dlp stream started", logging.String("url", url))
	return &provider.StreamSource{
		Body: &pipeStream{stdout: stdout, cmd: cmd, cancel: cancel},
		Type: "arbitrary",
	}, nil
}

func (r *Runner) consumeStderr(stderr io.ReadCloser) {
	defer stderr.Close()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			r.logger.Debug("yt-dlp stderr", logging.String("line", line))
		}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
