// Package resolver turns a user query into a ranked list of stream
// candidates by classifying the query, fanning out provider searches and
// scoring the merged results.
package resolver

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
)

// Candidate is a provider's scored claim that a URL can be streamed.
// Candidates are immutable values.
type Candidate struct {
	Provider  string        `json:"provider"`
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Author    string        `json:"author"`
	Duration  time.Duration `json:"duration"`
	Thumbnail string        `json:"thumbnail"`
	Views     int64         `json:"views"`
	Score     int           `json:"score"`
	Priority  int           `json:"priority"`
	Direct    bool          `json:"direct"` // user supplied the URL explicitly
}

// Result is what resolution hands the playback consumer.
type Result struct {
	Playlist *provider.PlaylistInfo
	Tracks   []Candidate
}

// SearchCache caches ranked free-text results. Implementations must be safe
// for concurrent use; failures are advisory.
type SearchCache interface {
	Get(key string) ([]Candidate, bool)
	Put(key string, candidates []Candidate) error
}

// Config tunes the resolver.
type Config struct {
	SearchLimit      int
	SearchTimeout    time.Duration
	MaxPlaylistItems int
	MetadataBoost    float64 // score multiplier for metadata-derived searches
	Weights          Weights
}

// DefaultConfig returns the stock resolver configuration.
func DefaultConfig() Config {
	return Config{
		SearchLimit:      10,
		SearchTimeout:    15 * time.Second,
		MaxPlaylistItems: 50,
		MetadataBoost:    1.2,
		Weights:          DefaultWeights(),
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.SearchLimit <= 0 {
		return fmt.Errorf("search limit must be positive, got %d", c.SearchLimit)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("search timeout must be positive, got %s", c.SearchTimeout)
	}
	if c.MaxPlaylistItems <= 0 {
		return fmt.Errorf("max playlist items must be positive, got %d", c.MaxPlaylistItems)
	}
	if c.MetadataBoost < 1 {
		return fmt.Errorf("metadata boost must be >= 1, got %f", c.MetadataBoost)
	}
	return nil
}

// Priorities assigned to candidates for race time.
const (
	directPriority    = 100
	topSearchPriority = 80
	priorityStep      = 10
	minPriority       = 10
)

// Resolver classifies queries and produces ranked candidates.
type Resolver struct {
	registry *provider.Registry
	cache    SearchCache // may be nil
	config   Config
	logger   logging.Logger
}

// New creates a resolver. cache may be nil to disable search caching.
func New(registry *provider.Registry, cache SearchCache, config Config, logger logging.Logger) (*Resolver, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resolver config: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		registry: registry,
		cache:    cache,
		config:   config,
		logger:   logger.With(logging.String("component", "resolver")),
	}, nil
}

// Resolve turns a classified query into ranked candidates. Provider
// failures are recovered locally; an empty track list (with nil error)
// means no provider had anything.
func (r *Resolver) Resolve(ctx context.Context, query Query) (*Result, error) {
	switch query.Kind {
	case KindDirectURL:
		return r.resolveDirect(ctx, query)
	case KindCrossPlatform:
		return r.resolveCrossPlatform(ctx, query)
	case KindFreeText:
		tracks := r.searchFreeText(ctx, query.Text, 1.0)
		return &Result{Tracks: tracks}, nil
	default:
		return nil, ErrInvalidQuery
	}
}

// resolveDirect trusts the user-supplied URL: one high-confidence candidate
// without ranking, or a bounded playlist expansion.
func (r *Resolver) resolveDirect(ctx context.Context, query Query) (*Result, error) {
	p, ok := r.registry.Get(query.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidQuery, query.Provider)
	}

	if expander, ok := p.(provider.PlaylistExpander); ok && expander.IsPlaylist(query.Text) {
		info, items, err := expander.ExpandPlaylist(ctx, query.Text, r.config.MaxPlaylistItems)
		if err == nil && len(items) > 0 {
			tracks := make([]Candidate, 0, len(items))
			for _, item := range items {
				tracks = append(tracks, r.directCandidate(p.Name(), item))
			}
			return &Result{Playlist: info, Tracks: tracks}, nil
		}
		if err != nil {
			r.logger.Warn("playlist expansion failed, treating as single track",
				logging.String("url", query.Text),
				logging.Error(err),
			)
		}
	}

	meta, err := p.FetchMetadata(ctx, query.Text)
	if err != nil {
		r.logger.Warn("direct url metadata fetch failed",
			logging.String("provider", p.Name()),
			logging.String("url", query.Text),
			logging.Error(err),
		)
		return &Result{}, nil
	}
	return &Result{Tracks: []Candidate{r.directCandidate(p.Name(), *meta)}}, nil
}

// resolveCrossPlatform extracts {name, artist} from the reference and
// re-searches the streaming platforms with a boosted score.
func (r *Resolver) resolveCrossPlatform(ctx context.Context, query Query) (*Result, error) {
	p, ok := r.registry.Get(query.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidQuery, query.Provider)
	}

	metaCtx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
	defer cancel()

	meta, err := p.FetchMetadata(metaCtx, query.Text)
	if err != nil {
		r.logger.Warn("cross-platform metadata extraction failed",
			logging.String("provider", p.Name()),
			logging.Error(err),
		)
		return &Result{}, nil
	}

	searchText := strings.TrimSpace(meta.Title + " " + meta.Artist)
	r.logger.Debug("re-searching from cross-platform metadata",
		logging.String("query", searchText),
	)
	tracks := r.searchFreeText(ctx, searchText, r.config.MetadataBoost)
	return &Result{Tracks: tracks}, nil
}

// searchFreeText fans out to every searchable provider concurrently, merges
// and ranks. boost scales scores for metadata-derived searches.
func (r *Resolver) searchFreeText(ctx context.Context, text string, boost float64) []Candidate {
	cacheKey := cacheKey(text, boost)
	if r.cache != nil {
		if cached, ok := r.cache.Get(cacheKey); ok {
			r.logger.Debug("search cache hit", logging.String("query", text))
			return cached
		}
	}

	providers := r.registry.Searchable()
	if len(providers) == 0 {
		return nil
	}

	type searchOutcome struct {
		index   int
		results []provider.RawResult
		err     error
	}

	outcomes := make([]searchOutcome, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p provider.Provider) {
			defer wg.Done()
			searchCtx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
			defer cancel()
			results, err := p.Search(searchCtx, text, r.config.SearchLimit)
			outcomes[i] = searchOutcome{index: i, results: results, err: err}
		}(i, p)
	}
	wg.Wait()

	var merged []Candidate
	for i, outcome := range outcomes {
		if outcome.err != nil {
			r.logger.Warn("provider search failed",
				logging.String("provider", providers[i].Name()),
				logging.Error(outcome.err),
			)
			continue
		}
		for _, raw := range outcome.results {
			merged = append(merged, r.searchCandidate(providers[i].Name(), text, raw, boost))
		}
	}

	// primary failed and nothing usable came back: one sequential fallback
	// pass with the identical query
	if len(merged) == 0 && outcomes[0].err != nil && len(providers) > 1 {
		for _, p := range providers[1:] {
			searchCtx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
			results, err := p.Search(searchCtx, text, r.config.SearchLimit)
			cancel()
			if err != nil {
				r.logger.Warn("fallback search failed",
					logging.String("provider", p.Name()),
					logging.Error(err),
				)
				continue
			}
			for _, raw := range results {
				merged = append(merged, r.searchCandidate(p.Name(), text, raw, boost))
			}
			if len(merged) > 0 {
				break
			}
		}
	}

	merged = lo.UniqBy(merged, func(c Candidate) string { return c.URL })
	RankCandidates(merged)
	for i := range merged {
		merged[i].Priority = searchPriority(i)
	}

	if r.cache != nil && len(merged) > 0 {
		if err := r.cache.Put(cacheKey, merged); err != nil {
			r.logger.Warn("search cache store failed", logging.Error(err))
		}
	}
	return merged
}

func (r *Resolver) directCandidate(providerName string, meta provider.RawMetadata) Candidate {
	return Candidate{
		Provider:  providerName,
		URL:       meta.URL,
		Title:     meta.Title,
		Author:    meta.Channel,
		Duration:  meta.Duration,
		Thumbnail: meta.Thumbnail,
		Views:     meta.Views,
		Priority:  directPriority,
		Direct:    true,
	}
}

func (r *Resolver) searchCandidate(providerName, query string, raw provider.RawResult, boost float64) Candidate {
	score := ScoreResult(r.config.Weights, query, raw)
	if boost > 1 {
		score = int(math.Round(float64(score) * boost))
	}
	return Candidate{
		Provider:  providerName,
		URL:       raw.URL,
		Title:     raw.Title,
		Author:    raw.Channel,
		Duration:  raw.Duration,
		Thumbnail: raw.Thumbnail,
		Views:     raw.Views,
		Score:     score,
	}
}

func searchPriority(rank int) int {
	priority := topSearchPriority - rank*priorityStep
	if priority < minPriority {
		priority = minPriority
	}
	return priority
}

func cacheKey(text string, boost float64) string {
	key := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if boost > 1 {
		key = fmt.Sprintf("%s|boost=%.2f", key, boost)
	}
	return key
}
