package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// Counters aggregates hook events into process-wide totals.
// It implements PipelineHooks, CacheHooks and HTTPHooks and is safe for
// concurrent use.
type Counters struct {
	started time.Time

	images       atomic.Int64
	imageErrors  atomic.Int64
	imageNanos   atomic.Int64
	stacks       atomic.Int64
	stackErrors  atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	cacheWrites  atomic.Int64
	cacheBytes   atomic.Int64
	requests     atomic.Int64
	serverErrors atomic.Int64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{started: time.Now()}
}

// Stats is a point-in-time copy of Counters.
type Stats struct {
	Uptime       string `json:"uptime"`
	Images       int64  `json:"images"`
	ImageErrors  int64  `json:"image_errors"`
	ImageTimeMs  int64  `json:"image_time_ms"`
	Stacks       int64  `json:"stacks"`
	StackErrors  int64  `json:"stack_errors"`
	CacheHits    int64  `json:"cache_hits"`
	CacheMisses  int64  `json:"cache_misses"`
	CacheWrites  int64  `json:"cache_writes"`
	CacheBytes   int64  `json:"cache_bytes"`
	Requests     int64  `json:"requests"`
	ServerErrors int64  `json:"server_errors"`
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() Stats {
	return Stats{
		Uptime:       time.Since(c.started).Round(time.Second).String(),
		Images:       c.images.Load(),
		ImageErrors:  c.imageErrors.Load(),
		ImageTimeMs:  c.imageNanos.Load() / int64(time.Millisecond),
		Stacks:       c.stacks.Load(),
		StackErrors:  c.stackErrors.Load(),
		CacheHits:    c.cacheHits.Load(),
		CacheMisses:  c.cacheMisses.Load(),
		CacheWrites:  c.cacheWrites.Load(),
		CacheBytes:   c.cacheBytes.Load(),
		Requests:     c.requests.Load(),
		ServerErrors: c.serverErrors.Load(),
	}
}

func (c *Counters) OnImageStart(context.Context, string) {}

func (c *Counters) OnImageComplete(_ context.Context, _ string, _ bool, d time.Duration, err error) {
	c.images.Add(1)
	c.imageNanos.Add(int64(d))
	if err != nil {
		c.imageErrors.Add(1)
	}
}

func (c *Counters) OnStackComplete(_ context.Context, _, _, _ int, _ time.Duration, err error) {
	c.stacks.Add(1)
	if err != nil {
		c.stackErrors.Add(1)
	}
}

func (c *Counters) OnCacheHit(context.Context, string)  { c.cacheHits.Add(1) }
func (c *Counters) OnCacheMiss(context.Context, string) { c.cacheMisses.Add(1) }

func (c *Counters) OnCacheSet(_ context.Context, _ string, size int) {
	c.cacheWrites.Add(1)
	c.cacheBytes.Add(int64(size))
}

func (c *Counters) OnRequest(context.Context, string, string) { c.requests.Add(1) }

func (c *Counters) OnResponse(_ context.Context, _, _ string, status int, _ time.Duration) {
	if status >= 500 {
		c.serverErrors.Add(1)
	}
}

var (
	_ PipelineHooks = (*Counters)(nil)
	_ CacheHooks    = (*Counters)(nil)
	_ HTTPHooks     = (*Counters)(nil)
)
