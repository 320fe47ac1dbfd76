// Package cache is the bounded on-disk download cache. High-confidence
// tracks are downloaded once and played from disk; entries are evicted
// oldest-first past a fixed count, and the whole directory is wiped on
// process start.
package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
)

// Taxonomy errors surfaced by downloads.
var (
	// ErrPayloadTooLarge means the download tripped the size cap and the
	// partial file was deleted.
	ErrPayloadTooLarge = errors.New("payload exceeds size cap")

	// ErrEmptyPayload means the download completed with zero bytes, a known
	// signature of an interrupted transfer.
	ErrEmptyPayload = errors.New("downloaded payload is empty")
)

// fileExt is the fixed audio container extension for cached files.
const fileExt = ".webm"

// StreamOpener opens a live audio stream for a URL. provider.Provider and
// the yt-dlp runner both satisfy it.
type StreamOpener interface {
	OpenStream(ctx context.Context, url string) (*provider.StreamSource, error)
}

// Entry is one cached download tracked by the in-memory index.
type Entry struct {
	TrackID      string
	Scope        string
	Path         string
	DownloadedAt time.Time
	Size         int64
}

// Config tunes the cache manager.
type Config struct {
	BaseDir         string
	MaxEntries      int
	MaxFileSize     int64
	DownloadTimeout time.Duration
	JanitorSchedule string // cron spec; empty disables the janitor
}

// DefaultConfig returns the stock cache configuration.
func DefaultConfig() Config {
	return Config{
		BaseDir:         filepath.Join("tmp", "audio"),
		MaxEntries:      25,
		MaxFileSize:     40 * 1024 * 1024,
		DownloadTimeout: 180 * time.Second,
		JanitorSchedule: "@every 10m",
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base dir must not be empty")
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("max entries must be positive, got %d", c.MaxEntries)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}
	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("download timeout must be positive, got %s", c.DownloadTimeout)
	}
	return nil
}

// inflight is one pending download shared by all concurrent callers for
// the same key.
type inflight struct {
	done chan struct{}
	path string
	err  error
}

// Manager owns the cache directory and the in-memory index. All mutations
// are serialized; the inflight map is the single-flight synchronization
// point guaranteeing one download per key.
type Manager struct {
	fs       afero.Fs
	config   Config
	fallback StreamOpener // secondary download tool, may be nil
	logger   logging.Logger

	mu       sync.Mutex
	index    map[string]*Entry
	inflight map[string]*inflight

	janitor *janitor
}

// NewManager creates a cache manager. The cache root is wiped
// unconditionally so no partial artifacts survive a restart.
func NewManager(fs afero.Fs, config Config, fallback StreamOpener, logger logging.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With(logging.String("component", "cache"))

	if err := fs.RemoveAll(config.BaseDir); err != nil {
		return nil, fmt.Errorf("failed to wipe cache dir: %w", err)
	}
	if err := fs.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	logger.Info("cache directory initialized", logging.String("dir", config.BaseDir))

	m := &Manager{
		fs:       fs,
		config:   config,
		fallback: fallback,
		logger:   logger,
		index:    make(map[string]*Entry),
		inflight: make(map[string]*inflight),
	}
	if config.JanitorSchedule != "" {
		j, err := startJanitor(m, config.JanitorSchedule)
		if err != nil {
			return nil, err
		}
		m.janitor = j
	}
	return m, nil
}

// Close stops the janitor.
func (m *Manager) Close() {
	if m.janitor != nil {
		m.janitor.stop()
	}
}

var videoIDParam = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// TrackID derives the deterministic cache key for a canonical URL. Two
// requests for the same URL always share a key; a URL-less track gets a
// random token.
func TrackID(canonicalURL string) string {
	if canonicalURL == "" {
		return "track_" + uuid.NewString()
	}
	if parsed, err := url.Parse(canonicalURL); err == nil {
		if v := parsed.Query().Get("v"); videoIDParam.MatchString(v) {
			return v
		}
	}
	h := fnv.New64a()
	h.Write([]byte(canonicalURL))
	return fmt.Sprintf("%016x", h.Sum64())
}

func (m *Manager) key(scope, trackID string) string {
	return scope + "/" + trackID
}

func (m *Manager) filePath(scope, trackID string) string {
	return filepath.Join(m.config.BaseDir, scope, trackID+fileExt)
}

// EnsureDownloaded returns the on-disk path for the track, downloading it
// once. Concurrent callers for the same key share a single download.
func (m *Manager) EnsureDownloaded(ctx context.Context, scope, canonicalURL string, primary StreamOpener) (string, error) {
	trackID := TrackID(canonicalURL)
	key := m.key(scope, trackID)

	m.mu.Lock()
	if entry, ok := m.index[key]; ok {
		m.mu.Unlock()
		return entry.Path, nil
	}
	if pending, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		select {
		case <-pending.done:
			return pending.path, pending.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	pending := &inflight{done: make(chan struct{})}
	m.inflight[key] = pending
	m.mu.Unlock()

	path, err := m.download(ctx, scope, trackID, canonicalURL, primary)

	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()

	pending.path = path
	pending.err = err
	close(pending.done)
	return path, err
}

// Prefetch warms the cache for the next queued track without blocking the
// caller. Already-cached and in-flight tracks are skipped.
func (m *Manager) Prefetch(ctx context.Context, scope, canonicalURL string, primary StreamOpener) {
	trackID := TrackID(canonicalURL)
	key := m.key(scope, trackID)

	m.mu.Lock()
	_, cached := m.index[key]
	_, running := m.inflight[key]
	m.mu.Unlock()
	if cached || running {
		return
	}

	go func() {
		if _, err := m.EnsureDownloaded(ctx, scope, canonicalURL, primary); err != nil {
			m.logger.Warn("prefetch failed",
				logging.String("url", canonicalURL),
				logging.Error(err),
			)
		}
	}()
}

// download fetches the payload, primary tool first, fallback second, and
// registers the entry on success. Eviction runs before returning.
func (m *Manager) download(ctx context.Context, scope, trackID, canonicalURL string, primary StreamOpener) (string, error) {
	path := m.filePath(scope, trackID)
	if err := m.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create scope dir: %w", err)
	}

	m.logger.Info("download started",
		logging.String("scope", scope),
		logging.String("track_id", trackID),
		logging.String("url", canonicalURL),
	)

	size, primaryErr := m.fetchToFile(ctx, primary, canonicalURL, path)
	if primaryErr != nil {
		if isTerminal(primaryErr) || m.fallback == nil {
			return "", primaryErr
		}
		m.logger.Warn("primary download tool failed, trying fallback",
			logging.String("track_id", trackID),
			logging.Error(primaryErr),
		)
		var fallbackErr error
		size, fallbackErr = m.fetchToFile(ctx, m.fallback, canonicalURL, path)
		if fallbackErr != nil {
			if isTerminal(fallbackErr) {
				return "", fallbackErr
			}
			return "", fmt.Errorf("all download tools failed: primary: %v; fallback: %w", primaryErr, fallbackErr)
		}
	}

	entry := &Entry{
		TrackID:      trackID,
		Scope:        scope,
		Path:         path,
		DownloadedAt: time.Now(),
		Size:         size,
	}

	m.mu.Lock()
	m.index[m.key(scope, trackID)] = entry
	evicted := m.evictLocked()
	m.mu.Unlock()

	for _, old := range evicted {
		if err := m.fs.Remove(old.Path); err != nil {
			m.logger.Warn("failed to remove evicted file",
				logging.String("path", old.Path),
				logging.Error(err),
			)
		}
	}

	m.logger.Info("download complete",
		logging.String("track_id", trackID),
		logging.Int64("size", size),
		logging.Int("evicted", len(evicted)),
	)
	return path, nil
}

// isTerminal reports whether a download error should not be retried with
// another tool.
func isTerminal(err error) bool {
	return errors.Is(err, ErrPayloadTooLarge) || errors.Is(err, context.Canceled)
}

// fetchToFile streams the payload to disk under the per-download timeout,
// enforcing the size cap as bytes arrive. Any failure deletes the partial
// file before returning.
func (m *Manager) fetchToFile(ctx context.Context, opener StreamOpener, canonicalURL, path string) (int64, error) {
	downloadCtx, cancel := context.WithTimeout(ctx, m.config.DownloadTimeout)
	defer cancel()

	source, err := opener.OpenStream(downloadCtx, canonicalURL)
	if err != nil {
		return 0, fmt.Errorf("failed to open stream: %w", err)
	}
	defer source.Close()

	file, err := m.fs.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create cache file: %w", err)
	}

	written, copyErr := io.Copy(file, io.LimitReader(source.Body, m.config.MaxFileSize+1))
	closeErr := file.Close()

	switch {
	case written > m.config.MaxFileSize:
		m.removePartial(path)
		return 0, fmt.Errorf("%w (cap %d bytes)", ErrPayloadTooLarge, m.config.MaxFileSize)
	case copyErr != nil:
		m.removePartial(path)
		if downloadCtx.Err() == context.DeadlineExceeded {
			return 0, fmt.Errorf("download timed out after %s", m.config.DownloadTimeout)
		}
		return 0, fmt.Errorf("download failed: %w", copyErr)
	case closeErr != nil:
		m.removePartial(path)
		return 0, fmt.Errorf("failed to finalize cache file: %w", closeErr)
	case written == 0:
		m.removePartial(path)
		return 0, ErrEmptyPayload
	}

	return written, nil
}

func (m *Manager) removePartial(path string) {
	if err := m.fs.Remove(path); err != nil {
		m.logger.Warn("failed to remove partial file",
			logging.String("path", path),
			logging.Error(err),
		)
	}
}

// evictLocked trims the index down to MaxEntries, oldest download first,
// and returns the removed entries. Caller holds the lock and deletes the
// files afterward.
func (m *Manager) evictLocked() []*Entry {
	var evicted []*Entry
	for len(m.index) > m.config.MaxEntries {
		var oldest *Entry
		var oldestKey string
		for key, entry := range m.index {
			if oldest == nil || entry.DownloadedAt.Before(oldest.DownloadedAt) {
				oldest = entry
				oldestKey = key
			}
		}
		delete(m.index, oldestKey)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// Cleanup removes one track's entry and file, used when the track finished
// or was skipped.
func (m *Manager) Cleanup(scope, trackID string) {
	key := m.key(scope, trackID)

	m.mu.Lock()
	entry, ok := m.index[key]
	delete(m.index, key)
	m.mu.Unlock()

	path := m.filePath(scope, trackID)
	if ok {
		path = entry.Path
	}
	if err := m.fs.Remove(path); err != nil {
		m.logger.Debug("cleanup remove failed",
			logging.String("path", path),
			logging.Error(err),
		)
	}
}

// CleanupScope tears down every entry and file belonging to one scope in a
// single call. Other scopes are untouched.
func (m *Manager) CleanupScope(scope string) {
	m.mu.Lock()
	for key, entry := range m.index {
		if entry.Scope == scope {
			delete(m.index, key)
		}
	}
	m.mu.Unlock()

	scopeDir := filepath.Join(m.config.BaseDir, scope)
	if err := m.fs.RemoveAll(scopeDir); err != nil {
		m.logger.Warn("scope cleanup failed",
			logging.String("scope", scope),
			logging.Error(err),
		)
		return
	}
	m.logger.Info("scope cleaned up", logging.String("scope", scope))
}

// Stats reports the cache's current shape.
type Stats struct {
	Entries         int
	ActiveDownloads int
}

// Stats returns a snapshot of the index.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Entries:         len(m.index),
		ActiveDownloads: len(m.inflight),
	}
}
