package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	ManagerOverallRecomputed      = "manager_overall_recomputed"
	ManagerOverallRecomputeFailed = "manager_overall_recompute_failed"
	DuplicateSubmissions          = "duplicate_submissions"
	CatalogCacheHits              = "catalog_cache_hits"
	CatalogCacheMisses            = "catalog_cache_misses"
	JobsDropped                   = "jobs_dropped"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	mu       sync.RWMutex
	counters map[string]*uint64
}

func New() *Collector {
	return &Collector{counters: map[string]*uint64{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// Inc bumps a named counter. A nil collector is a no-op.
func (c *Collector) Inc(name string) {
	if c == nil {
		return
	}
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		counter, ok = c.counters[name]
		if !ok {
			counter = new(uint64)
			c.counters[name] = counter
		}
		c.mu.Unlock()
	}
	atomic.AddUint64(counter, 1)
}

func (c *Collector) Count(name string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if counter, ok := c.counters[name]; ok {
		return atomic.LoadUint64(counter)
	}
	return 0
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.RLock()
	names := make([]string, 0, len(c.counters))
	for name := range c.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	counters := make(map[string]uint64, len(names))
	for _, name := range names {
		counters[name] = atomic.LoadUint64(c.counters[name])
	}
	c.mu.RUnlock()

	return map[string]any{
		"requestsTotal":    total,
		"errorsTotal":      errs,
		"rateLimitedTotal": limited,
		"avgDurationMs":    avg,
		"totalDurationMs":  totalMs,
		"counters":         counters,
	}
}
