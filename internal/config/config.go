package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Qiheena/playernix/pkg/engine"
)

// Config is the process-level configuration, populated from the
// environment (optionally seeded by a .env file).
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	YtdlpPath string `env:"YTDLP_PATH" envDefault:"yt-dlp"`

	CacheDir        string        `env:"CACHE_DIR" envDefault:"tmp/audio"`
	MaxCachedTracks int           `env:"MAX_CACHED_TRACKS" envDefault:"25"`
	MaxDownloadSize int64         `env:"MAX_DOWNLOAD_SIZE" envDefault:"41943040"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"180s"`

	StreamTimeout time.Duration `env:"STREAM_TIMEOUT" envDefault:"30s"`
	GracePeriod   time.Duration `env:"RACE_GRACE_PERIOD" envDefault:"500ms"`
	SearchTimeout time.Duration `env:"SEARCH_TIMEOUT" envDefault:"15s"`

	SearchCachePath string        `env:"SEARCH_CACHE_PATH" envDefault:"search_cache.db"`
	SearchCacheTTL  time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"30m"`
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	// a missing .env is fine; the environment may be set directly
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// EngineConfig maps the process config onto the engine's defaults.
func (c *Config) EngineConfig() engine.Config {
	ec := engine.DefaultConfig()
	ec.Cache.BaseDir = c.CacheDir
	ec.Cache.MaxEntries = c.MaxCachedTracks
	ec.Cache.MaxFileSize = c.MaxDownloadSize
	ec.Cache.DownloadTimeout = c.DownloadTimeout
	ec.Race.AttemptTimeout = c.StreamTimeout
	ec.Race.GracePeriod = c.GracePeriod
	ec.Resolver.SearchTimeout = c.SearchTimeout
	return ec
}
