// Package engine is the facade over resolution, racing and the download
// cache: one query in, one playable byte-stream (or a classified error)
// out. All mutable state is owned by the Engine instance; there are no
// package-level caches or maps.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/Qiheena/playernix/pkg/cache"
	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
	"github.com/Qiheena/playernix/pkg/race"
	"github.com/Qiheena/playernix/pkg/resolver"
)

// Hint tells the engine why a query is being resolved. It does not change
// classification, only how much work is worth doing.
type Hint int

const (
	// HintExplicit is a user-issued search or link.
	HintExplicit Hint = iota
	// HintAutocomplete is an interactive suggestion lookup; results are
	// truncated aggressively.
	HintAutocomplete
	// HintAutoplay is an automatic follow-up query.
	HintAutoplay
)

// autocompleteLimit caps how many tracks an autocomplete resolve returns.
const autocompleteLimit = 5

// Config tunes the engine facade.
type Config struct {
	Resolver resolver.Config
	Race     race.Config
	Cache    cache.Config

	// MaxRaceCandidates bounds how many candidates enter one race.
	MaxRaceCandidates int

	// CacheScoreThreshold is the relevance score at or above which a search
	// result is considered high-confidence enough for the download path.
	// Direct URLs always qualify.
	CacheScoreThreshold int
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		Resolver:            resolver.DefaultConfig(),
		Race:                race.DefaultConfig(),
		Cache:               cache.DefaultConfig(),
		MaxRaceCandidates:   3,
		CacheScoreThreshold: 200,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if err := c.Resolver.Validate(); err != nil {
		return err
	}
	if err := c.Race.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.MaxRaceCandidates <= 0 {
		return fmt.Errorf("max race candidates must be positive, got %d", c.MaxRaceCandidates)
	}
	return nil
}

// AudioStream is the engine's output to the playback consumer: a live
// byte-stream plus the type tag the decoder path keys on.
type AudioStream struct {
	Body      io.ReadCloser
	Type      string
	Provider  string
	Title     string
	URL       string
	FromCache bool
}

// Close releases the underlying stream.
func (s *AudioStream) Close() error {
	if s == nil || s.Body == nil {
		return nil
	}
	return s.Body.Close()
}

// Engine coordinates the resolver, the race coordinator and the download
// cache behind a single API.
type Engine struct {
	registry *provider.Registry
	resolver *resolver.Resolver
	racer    *race.Coordinator
	cache    *cache.Manager
	fs       afero.Fs
	metrics  *MetricsCollector
	config   Config
	logger   logging.Logger
}

// New wires an engine together. searchCache may be nil to disable search
// caching; fallback is the secondary download tool for the cache path.
func New(config Config, registry *provider.Registry, fs afero.Fs, searchCache resolver.SearchCache, fallback cache.StreamOpener, logger logging.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}

	res, err := resolver.New(registry, searchCache, config.Resolver, logger)
	if err != nil {
		return nil, err
	}
	racer, err := race.NewCoordinator(config.Race, logger)
	if err != nil {
		return nil, err
	}
	manager, err := cache.NewManager(fs, config.Cache, fallback, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		registry: registry,
		resolver: res,
		racer:    racer,
		cache:    manager,
		fs:       fs,
		metrics:  NewMetricsCollector(),
		config:   config,
		logger:   logger.With(logging.String("component", "engine")),
	}, nil
}

// Shutdown releases engine-owned resources.
func (e *Engine) Shutdown() {
	e.cache.Close()
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *MetricsCollector {
	return e.metrics
}

// Resolve classifies the query and returns ranked candidates. An empty
// outcome is reported as ErrNoResults.
func (e *Engine) Resolve(ctx context.Context, text, requestedBy string, hint Hint) (*resolver.Result, error) {
	query, err := resolver.Classify(text, requestedBy, e.registry)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordResolve(query.Kind.String())

	started := time.Now()
	result, err := e.resolver.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("resolution finished",
		logging.String("kind", query.Kind.String()),
		logging.Int("tracks", len(result.Tracks)),
		logging.Duration("elapsed", time.Since(started)),
	)

	if len(result.Tracks) == 0 {
		return nil, ErrNoResults
	}
	if hint == HintAutocomplete && len(result.Tracks) > autocompleteLimit {
		result.Tracks = result.Tracks[:autocompleteLimit]
	}
	return result, nil
}

// Stream produces one playable byte-stream for the candidate list: the
// download cache for a high-confidence top candidate, a provider race for
// everything else.
func (e *Engine) Stream(ctx context.Context, scope string, candidates []resolver.Candidate) (*AudioStream, error) {
	if len(candidates) == 0 {
		return nil, &race.AllFailedError{}
	}

	top := candidates[0]
	if e.cacheEligible(top) {
		if stream, err := e.streamFromCache(ctx, scope, top); err == nil {
			e.metrics.RecordCacheHit()
			return stream, nil
		} else {
			e.metrics.RecordCacheMiss()
			e.logger.Warn("cache path failed, racing instead",
				logging.String("url", top.URL),
				logging.Error(err),
			)
		}
	}

	entrants := e.raceCandidates(candidates)
	if len(entrants) == 0 {
		return nil, &race.AllFailedError{}
	}

	result, err := e.racer.Race(ctx, entrants)
	if err != nil {
		e.metrics.RecordRaceFailure()
		return nil, err
	}
	e.metrics.RecordRaceWin(result.Provider)

	return &AudioStream{
		Body:     result.Stream.Body,
		Type:     result.Stream.Type,
		Provider: result.Provider,
		Title:    result.Title,
		URL:      result.URL,
	}, nil
}

// Prefetch warms the download cache for the next queued track.
func (e *Engine) Prefetch(ctx context.Context, scope string, candidate resolver.Candidate) {
	p, ok := e.registry.Get(candidate.Provider)
	if !ok || !e.cacheEligible(candidate) {
		return
	}
	e.cache.Prefetch(ctx, scope, candidate.URL, p)
}

// CleanupTrack removes one track's cached file, used when playback
// finished or the track was skipped.
func (e *Engine) CleanupTrack(scope, canonicalURL string) {
	e.cache.Cleanup(scope, cache.TrackID(canonicalURL))
}

// CleanupScope tears down all cached files for one playback session.
func (e *Engine) CleanupScope(scope string) {
	e.cache.CleanupScope(scope)
}

// CacheStats reports the download cache's current shape.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

func (e *Engine) cacheEligible(candidate resolver.Candidate) bool {
	return candidate.Direct || candidate.Score >= e.config.CacheScoreThreshold
}

// streamFromCache downloads (or reuses) the track on disk and serves it as
// a file-backed stream.
func (e *Engine) streamFromCache(ctx context.Context, scope string, candidate resolver.Candidate) (*AudioStream, error) {
	p, ok := e.registry.Get(candidate.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", candidate.Provider)
	}

	path, err := e.cache.EnsureDownloaded(ctx, scope, candidate.URL, p)
	if err != nil {
		return nil, err
	}

	file, err := e.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cached file: %w", err)
	}

	return &AudioStream{
		Body:      file,
		Type:      "arbitrary",
		Provider:  candidate.Provider,
		Title:     candidate.Title,
		URL:       candidate.URL,
		FromCache: true,
	}, nil
}

// raceCandidates maps resolver candidates onto race entrants, dropping any
// whose provider is unknown.
func (e *Engine) raceCandidates(candidates []resolver.Candidate) []race.Candidate {
	limit := e.config.MaxRaceCandidates
	if limit > len(candidates) {
		limit = len(candidates)
	}

	entrants := make([]race.Candidate, 0, limit)
	for _, candidate := range candidates[:limit] {
		p, ok := e.registry.Get(candidate.Provider)
		if !ok {
			e.logger.Warn("dropping candidate with unknown provider",
				logging.String("provider", candidate.Provider),
			)
			continue
		}
		entrants = append(entrants, race.Candidate{
			Provider: p,
			URL:      candidate.URL,
			Title:    candidate.Title,
			Priority: candidate.Priority,
		})
	}
	return entrants
}
