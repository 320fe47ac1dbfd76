package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
	"github.com/Qiheena/playernix/pkg/race"
	"github.com/Qiheena/playernix/pkg/resolver"
)

// fakeProvider covers the whole provider surface for engine-level tests.
type fakeProvider struct {
	name       string
	urlPrefix  string
	searchable bool
	searchRes  []provider.RawResult
	searchErr  error
	meta       *provider.RawMetadata
	metaErr    error
	payload    []byte
	streamErr  error
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Searchable() bool { return p.searchable }

func (p *fakeProvider) CanHandle(u string) bool {
	return p.urlPrefix != "" && strings.HasPrefix(u, p.urlPrefix)
}

func (p *fakeProvider) Search(ctx context.Context, query string, limit int) ([]provider.RawResult, error) {
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.searchRes, nil
}

func (p *fakeProvider) FetchMetadata(ctx context.Context, url string) (*provider.RawMetadata, error) {
	if p.metaErr != nil {
		return nil, p.metaErr
	}
	return p.meta, nil
}

func (p *fakeProvider) OpenStream(ctx context.Context, url string) (*provider.StreamSource, error) {
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	return &provider.StreamSource{
		Body: io.NopCloser(bytes.NewReader(p.payload)),
		Type: "webm/opus",
	}, nil
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.Cache.BaseDir = "cache"
	cfg.Cache.JanitorSchedule = ""
	cfg.Race.GracePeriod = 50 * time.Millisecond
	cfg.Race.AttemptTimeout = 2 * time.Second
	return cfg
}

func newTestEngine(t *testing.T, providers ...provider.Provider) *Engine {
	t.Helper()
	registry, err := provider.NewRegistry(providers...)
	require.NoError(t, err)
	eng, err := New(testEngineConfig(), registry, afero.NewMemMapFs(), nil, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)
	return eng
}

func TestResolveFreeTextEndToEnd(t *testing.T) {
	yt := &fakeProvider{
		name: "youtube", urlPrefix: "https://www.youtube.com/", searchable: true,
		searchRes: []provider.RawResult{
			{URL: "https://yt/1", Title: "Song (Official Audio)", Channel: "Artist - Topic", Duration: 3 * time.Minute},
			{URL: "https://yt/2", Title: "Song live", Channel: "x", Duration: 3 * time.Minute},
		},
	}
	eng := newTestEngine(t, yt)

	result, err := eng.Resolve(context.Background(), "song", "user1", HintExplicit)
	require.NoError(t, err)
	require.Len(t, result.Tracks, 2)
	assert.Equal(t, "https://yt/1", result.Tracks[0].URL)
	assert.Equal(t, int64(1), eng.Metrics().Get("resolve.free_text"))
}

func TestResolveNoResults(t *testing.T) {
	eng := newTestEngine(t, &fakeProvider{name: "youtube", searchable: true})

	_, err := eng.Resolve(context.Background(), "obscure nothing", "user1", HintExplicit)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestResolveInvalidQuery(t *testing.T) {
	eng := newTestEngine(t, &fakeProvider{name: "youtube", searchable: true})

	_, err := eng.Resolve(context.Background(), "   ", "user1", HintExplicit)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestResolveAutocompleteTruncates(t *testing.T) {
	results := make([]provider.RawResult, 9)
	for i := range results {
		results[i] = provider.RawResult{
			URL: "https://yt/" + string(rune('a'+i)), Title: "Song", Channel: "x", Duration: 3 * time.Minute,
		}
	}
	yt := &fakeProvider{name: "youtube", searchable: true, searchRes: results}
	eng := newTestEngine(t, yt)

	result, err := eng.Resolve(context.Background(), "song", "user1", HintAutocomplete)
	require.NoError(t, err)
	assert.Len(t, result.Tracks, autocompleteLimit)
}

func TestStreamRacesLowConfidenceCandidates(t *testing.T) {
	yt := &fakeProvider{name: "youtube", payload: []byte("yt-audio")}
	eng := newTestEngine(t, yt)

	stream, err := eng.Stream(context.Background(), "guild1", []resolver.Candidate{
		{Provider: "youtube", URL: "https://yt/1", Title: "Song", Score: 60, Priority: 80},
	})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "youtube", stream.Provider)
	assert.False(t, stream.FromCache)
	data, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("yt-audio"), data)
	assert.Equal(t, int64(1), eng.Metrics().Get("race.win.youtube"))
}

func TestStreamHighConfidenceUsesCache(t *testing.T) {
	yt := &fakeProvider{name: "youtube", payload: []byte("cached-audio")}
	eng := newTestEngine(t, yt)

	stream, err := eng.Stream(context.Background(), "guild1", []resolver.Candidate{
		{Provider: "youtube", URL: "https://yt/1", Title: "Song", Score: 330, Priority: 80},
	})
	require.NoError(t, err)
	defer stream.Close()

	assert.True(t, stream.FromCache)
	data, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached-audio"), data)
	assert.Equal(t, int64(1), eng.Metrics().Get("cache.hit"))
	assert.Equal(t, 1, eng.CacheStats().Entries)
}

func TestStreamDirectCandidateUsesCache(t *testing.T) {
	yt := &fakeProvider{name: "youtube", payload: []byte("x")}
	eng := newTestEngine(t, yt)

	stream, err := eng.Stream(context.Background(), "guild1", []resolver.Candidate{
		{Provider: "youtube", URL: "https://yt/1", Title: "Song", Direct: true, Priority: 100},
	})
	require.NoError(t, err)
	defer stream.Close()

	assert.True(t, stream.FromCache, "direct URLs always qualify for the download path")
}

func TestStreamCacheFailureFallsBackToRace(t *testing.T) {
	// empty payload poisons the download path; the race path serves the
	// same provider's live stream instead
	yt := &fakeProvider{name: "youtube", payload: nil}
	eng := newTestEngine(t, yt)

	stream, err := eng.Stream(context.Background(), "guild1", []resolver.Candidate{
		{Provider: "youtube", URL: "https://yt/1", Title: "Song", Direct: true, Priority: 100},
	})
	require.NoError(t, err)
	defer stream.Close()

	assert.False(t, stream.FromCache)
	assert.Equal(t, int64(1), eng.Metrics().Get("cache.miss"))
	assert.Equal(t, int64(1), eng.Metrics().Get("race.win.youtube"))
}

func TestStreamAllProvidersFail(t *testing.T) {
	yt := &fakeProvider{name: "youtube", streamErr: errors.New("blocked")}
	sc := &fakeProvider{name: "soundcloud", streamErr: errors.New("not found")}
	eng := newTestEngine(t, yt, sc)

	_, err := eng.Stream(context.Background(), "guild1", []resolver.Candidate{
		{Provider: "youtube", URL: "https://yt/1", Score: 60, Priority: 80},
		{Provider: "soundcloud", URL: "https://sc/1", Score: 50, Priority: 70},
	})

	var allFailed *race.AllFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Failures, 2)
	assert.Equal(t, int64(1), eng.Metrics().Get("race.failed"))
}

func TestStreamEmptyCandidates(t *testing.T) {
	eng := newTestEngine(t, &fakeProvider{name: "youtube"})

	_, err := eng.Stream(context.Background(), "guild1", nil)
	var allFailed *race.AllFailedError
	assert.ErrorAs(t, err, &allFailed)
}

func TestStreamUnknownProviderDropped(t *testing.T) {
	yt := &fakeProvider{name: "youtube", payload: []byte("x")}
	eng := newTestEngine(t, yt)

	stream, err := eng.Stream(context.Background(), "guild1", []resolver.Candidate{
		{Provider: "bandcamp", URL: "https://bc/1", Score: 60, Priority: 80},
		{Provider: "youtube", URL: "https://yt/1", Score: 50, Priority: 70},
	})
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, "youtube", stream.Provider)
}

func TestPrefetchAndCleanup(t *testing.T) {
	yt := &fakeProvider{name: "youtube", payload: []byte("x")}
	eng := newTestEngine(t, yt)

	url := "https://yt/watch1"
	eng.Prefetch(context.Background(), "guild1", resolver.Candidate{
		Provider: "youtube", URL: url, Direct: true,
	})
	assert.Eventually(t, func() bool { return eng.CacheStats().Entries == 1 },
		time.Second, 10*time.Millisecond)

	eng.CleanupTrack("guild1", url)
	assert.Equal(t, 0, eng.CacheStats().Entries)
}

func TestCleanupScope(t *testing.T) {
	yt := &fakeProvider{name: "youtube", payload: []byte("x")}
	eng := newTestEngine(t, yt)

	for _, scope := range []string{"guildA", "guildB"} {
		stream, err := eng.Stream(context.Background(), scope, []resolver.Candidate{
			{Provider: "youtube", URL: "https://yt/" + scope, Direct: true, Priority: 100},
		})
		require.NoError(t, err)
		stream.Close()
	}
	require.Equal(t, 2, eng.CacheStats().Entries)

	eng.CleanupScope("guildA")
	assert.Equal(t, 1, eng.CacheStats().Entries)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"invalid query", ErrInvalidQuery, KindInvalidQuery},
		{"wrapped invalid query", errors.Join(errors.New("ctx"), ErrInvalidQuery), KindInvalidQuery},
		{"no results", ErrNoResults, KindNoResults},
		{"payload too large", ErrPayloadTooLarge, KindPayloadTooLarge},
		{"empty payload", ErrEmptyPayload, KindEmptyPayload},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"all providers failed", &race.AllFailedError{}, KindAllProvidersFailed},
		{"unrecognized", errors.New("mystery"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestKindMessagesDistinct(t *testing.T) {
	kinds := []Kind{KindInvalidQuery, KindNoResults, KindAllProvidersFailed, KindPayloadTooLarge, KindEmptyPayload, KindTimeout, KindUnknown}
	seen := make(map[string]Kind, len(kinds))
	for _, k := range kinds {
		msg := k.Message()
		require.NotEmpty(t, msg)
		prev, dup := seen[msg]
		require.False(t, dup, "kinds %s and %s share a message", prev, k)
		seen[msg] = k
	}
}

func TestMetricsCollector(t *testing.T) {
	c := NewMetricsCollector()
	c.RecordResolve("free_text")
	c.RecordResolve("free_text")
	c.RecordRaceWin("youtube")
	c.RecordCacheHit()

	assert.Equal(t, int64(2), c.Get("resolve.free_text"))
	assert.Equal(t, int64(1), c.Get("race.win.youtube"))
	snapshot := c.Snapshot()
	assert.Equal(t, int64(1), snapshot["cache.hit"])
	assert.Zero(t, c.Get("race.failed"))
}
