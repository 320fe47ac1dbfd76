// Package searchcache is a small SQLite-backed cache for ranked search
// results. Upstream searches are slow and rate-limited; repeating an
// identical query within the TTL serves the stored ranking instead.
package searchcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/resolver"
)

// Store caches ranked candidate lists keyed by normalized query text.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	logger logging.Logger
}

// New opens (or creates) the cache database at dbPath.
func New(dbPath string, ttl time.Duration, logger logging.Logger) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	if logger == nil {
		logger = logging.Default()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open search cache: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize search cache: %w", err)
	}

	return &Store{
		db:     db,
		ttl:    ttl,
		logger: logger.With(logging.String("component", "searchcache")),
	}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT UNIQUE NOT NULL,
		results TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_search_cache_expires ON search_cache(expires_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the cached candidates for key if present and unexpired.
func (s *Store) Get(key string) ([]resolver.Candidate, bool) {
	var payload string
	err := s.db.QueryRow(
		`SELECT results FROM search_cache WHERE query = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("search cache lookup failed", logging.Error(err))
		return nil, false
	}

	var candidates []resolver.Candidate
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		s.logger.Warn("corrupt search cache entry, dropping",
			logging.String("query", key),
			logging.Error(err),
		)
		s.db.Exec(`DELETE FROM search_cache WHERE query = ?`, key)
		return nil, false
	}
	return candidates, true
}

// Put stores ranked candidates under key with the configured TTL,
// replacing any previous entry.
func (s *Store) Put(key string, candidates []resolver.Candidate) error {
	payload, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO search_cache (query, results, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(query) DO UPDATE SET results = excluded.results, expires_at = excluded.expires_at`,
		key, string(payload), time.Now().UTC().Add(s.ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to store search results: %w", err)
	}
	return nil
}

// Prune deletes expired rows and returns how many were removed.
func (s *Store) Prune() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM search_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune search cache: %w", err)
	}
	removed, _ := result.RowsAffected()
	return removed, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
