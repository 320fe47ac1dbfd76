package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/Qiheena/playernix/internal/config"
	"github.com/Qiheena/playernix/pkg/engine"
	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
	"github.com/Qiheena/playernix/pkg/provider/soundcloud"
	"github.com/Qiheena/playernix/pkg/provider/spotify"
	"github.com/Qiheena/playernix/pkg/provider/youtube"
	"github.com/Qiheena/playernix/pkg/provider/ytdlp"
	"github.com/Qiheena/playernix/pkg/searchcache"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <query or url> [output file]\n", os.Args[0])
		os.Exit(2)
	}
	query := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})

	runner := ytdlp.NewRunner(cfg.YtdlpPath, logger)
	registry, err := provider.NewRegistry(
		youtube.New(runner, logger),
		soundcloud.New(runner, logger),
		spotify.New(logger),
	)
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}

	var search *searchcache.Store
	if cfg.SearchCachePath != "" {
		search, err = searchcache.New(cfg.SearchCachePath, cfg.SearchCacheTTL, logger)
		if err != nil {
			log.Fatalf("Failed to open search cache: %v", err)
		}
		defer search.Close()
	}

	eng, err := newEngine(cfg, registry, search, runner, logger)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer eng.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sc := make(chan os.Signal, 1)
		signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
		<-sc
		cancel()
	}()

	result, err := eng.Resolve(ctx, query, "cli", engine.HintExplicit)
	if err != nil {
		logger.Error("resolution failed",
			logging.Error(err),
			logging.String("kind", engine.ClassifyError(err).String()),
		)
		fmt.Fprintln(os.Stderr, engine.ClassifyError(err).Message())
		os.Exit(1)
	}

	if result.Playlist != nil {
		fmt.Fprintf(os.Stderr, "playlist: %s (%d items)\n", result.Playlist.Title, result.Playlist.Count)
	}
	for i, track := range result.Tracks {
		fmt.Fprintf(os.Stderr, "%2d. [%s] %s - %s (score %d)\n",
			i+1, track.Provider, track.Title, track.Author, track.Score)
	}

	stream, err := eng.Stream(ctx, "cli", result.Tracks)
	if err != nil {
		logger.Error("streaming failed",
			logging.Error(err),
			logging.String("kind", engine.ClassifyError(err).String()),
		)
		fmt.Fprintln(os.Stderr, engine.ClassifyError(err).Message())
		os.Exit(1)
	}
	defer stream.Close()

	out := os.Stdout
	if len(os.Args) > 2 {
		f, err := os.Create(os.Args[2])
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	written, err := io.Copy(out, stream.Body)
	if err != nil {
		logger.Error("stream copy failed", logging.Error(err))
	}
	logger.Info("done",
		logging.String("provider", stream.Provider),
		logging.String("type", stream.Type),
		logging.Bool("from_cache", stream.FromCache),
		logging.Int64("bytes", written),
	)
}

func newEngine(cfg *config.Config, registry *provider.Registry, search *searchcache.Store, runner *ytdlp.Runner, logger logging.Logger) (*engine.Engine, error) {
	fs := afero.NewOsFs()
	if search != nil {
		return engine.New(cfg.EngineConfig(), registry, fs, search, runner, logger)
	}
	return engine.New(cfg.EngineConfig(), registry, fs, nil, runner, logger)
}
