package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "yt-dlp", cfg.YtdlpPath)
	assert.Equal(t, 25, cfg.MaxCachedTracks)
	assert.Equal(t, int64(40*1024*1024), cfg.MaxDownloadSize)
	assert.Equal(t, 500*time.Millisecond, cfg.GracePeriod)
	assert.Equal(t, 30*time.Minute, cfg.SearchCacheTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_CACHED_TRACKS", "50")
	t.Setenv("STREAM_TIMEOUT", "45s")
	t.Setenv("SEARCH_CACHE_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50, cfg.MaxCachedTracks)
	assert.Equal(t, 45*time.Second, cfg.StreamTimeout)
	assert.Empty(t, cfg.SearchCachePath)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("DOWNLOAD_TIMEOUT", "not-a-duration")

	_, err := Load()
	assert.Error(t, err)
}

func TestEngineConfigMapping(t *testing.T) {
	cfg := &Config{
		CacheDir:        "/var/cache/audio",
		MaxCachedTracks: 10,
		MaxDownloadSize: 1024,
		DownloadTimeout: time.Minute,
		StreamTimeout:   20 * time.Second,
		GracePeriod:     time.Second,
		SearchTimeout:   5 * time.Second,
	}

	ec := cfg.EngineConfig()

	assert.Equal(t, "/var/cache/audio", ec.Cache.BaseDir)
	assert.Equal(t, 10, ec.Cache.MaxEntries)
	assert.Equal(t, int64(1024), ec.Cache.MaxFileSize)
	assert.Equal(t, time.Minute, ec.Cache.DownloadTimeout)
	assert.Equal(t, 20*time.Second, ec.Race.AttemptTimeout)
	assert.Equal(t, time.Second, ec.Race.GracePeriod)
	assert.Equal(t, 5*time.Second, ec.Resolver.SearchTimeout)
	assert.Equal(t, 3, ec.MaxRaceCandidates, "unmapped knobs keep engine defaults")
}
