package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	"github.com/Qiheena/playernix/pkg/logging"
)

// janitor periodically reconciles the cache directory against the index:
// any file on disk that the index does not track is an orphan and gets
// deleted. Downloads in flight write under tracked keys, so the sweep
// checks the inflight map too.
type janitor struct {
	manager *Manager
	cron    *cron.Cron
}

func startJanitor(m *Manager, schedule string) (*janitor, error) {
	j := &janitor{manager: m, cron: cron.New()}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	return j, nil
}

func (j *janitor) stop() {
	j.cron.Stop()
}

// sweep deletes every untracked file under the cache root.
func (j *janitor) sweep() {
	m := j.manager

	tracked := make(map[string]struct{})
	m.mu.Lock()
	for _, entry := range m.index {
		tracked[entry.Path] = struct{}{}
	}
	for key := range m.inflight {
		scope, trackID, ok := strings.Cut(key, "/")
		if ok {
			tracked[m.filePath(scope, trackID)] = struct{}{}
		}
	}
	m.mu.Unlock()

	removed := 0
	err := afero.Walk(m.fs, m.config.BaseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if _, ok := tracked[filepath.Clean(path)]; ok {
			return nil
		}
		if removeErr := m.fs.Remove(path); removeErr != nil {
			m.logger.Warn("janitor failed to remove orphan",
				logging.String("path", path),
				logging.Error(removeErr),
			)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		m.logger.Warn("janitor sweep failed", logging.Error(err))
		return
	}
	if removed > 0 {
		m.logger.Info("janitor removed orphan files", logging.Int("removed", removed))
	}
}
