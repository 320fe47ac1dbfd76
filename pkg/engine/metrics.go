package engine

import (
	"fmt"
	"sync"
)

// MetricsCollector keeps simple named counters for engine activity:
// searches, race outcomes per provider, cache traffic. Internal
// observability only; nothing is exported anywhere.
type MetricsCollector struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{counters: make(map[string]int64)}
}

func (c *MetricsCollector) inc(name string) {
	c.mu.Lock()
	c.counters[name]++
	c.mu.Unlock()
}

// RecordResolve counts one resolution by query kind.
func (c *MetricsCollector) RecordResolve(kind string) {
	c.inc("resolve." + kind)
}

// RecordRaceWin counts one committed race per winning provider.
func (c *MetricsCollector) RecordRaceWin(provider string) {
	c.inc("race.win." + provider)
}

// RecordRaceFailure counts one fully failed race.
func (c *MetricsCollector) RecordRaceFailure() {
	c.inc("race.failed")
}

// RecordCacheHit counts one playback served from the download cache.
func (c *MetricsCollector) RecordCacheHit() {
	c.inc("cache.hit")
}

// RecordCacheMiss counts one cache path that fell through to racing.
func (c *MetricsCollector) RecordCacheMiss() {
	c.inc("cache.miss")
}

// Snapshot returns a copy of all counters.
func (c *MetricsCollector) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out
}

// Get returns one counter's value.
func (c *MetricsCollector) Get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// String renders the snapshot for logs.
func (c *MetricsCollector) String() string {
	snapshot := c.Snapshot()
	return fmt.Sprintf("%v", snapshot)
}
