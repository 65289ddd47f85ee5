package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Pipeline hooks
	p := NoopPipelineHooks{}
	p.OnImageStart(ctx, "a.png")
	p.OnImageComplete(ctx, "a.png", false, time.Second, nil)
	p.OnStackComplete(ctx, 2, 640, 960, time.Second, nil)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "image")
	c.OnCacheMiss(ctx, "image")
	c.OnCacheSet(ctx, "image", 1024)

	// HTTP hooks
	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "POST", "/v1/dog")
	h.OnResponse(ctx, "POST", "/v1/dog", 200, time.Second)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Pipeline() should return NoopPipelineHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	// Set custom hooks
	counters := NewCounters()
	SetPipelineHooks(counters)
	if Pipeline() != counters {
		t.Error("SetPipelineHooks should set custom hooks")
	}
	SetCacheHooks(counters)
	if Cache() != counters {
		t.Error("SetCacheHooks should set custom hooks")
	}
	SetHTTPHooks(counters)
	if HTTP() != counters {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() should restore NoopPipelineHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := NewCounters()
	SetPipelineHooks(custom)

	// Setting nil should be ignored
	SetPipelineHooks(nil)

	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) should be ignored")
	}

	Reset()
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	c := NewCounters()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.OnImageStart(ctx, "x")
			c.OnImageComplete(ctx, "x", false, time.Millisecond, nil)
			c.OnCacheMiss(ctx, "image")
		}()
	}
	wg.Wait()

	c.OnImageComplete(ctx, "bad", false, 0, errors.New("boom"))
	c.OnStackComplete(ctx, 10, 4, 40, time.Millisecond, nil)
	c.OnCacheHit(ctx, "image")
	c.OnCacheSet(ctx, "image", 512)
	c.OnRequest(ctx, "GET", "/healthz")
	c.OnResponse(ctx, "GET", "/healthz", 200, 0)
	c.OnResponse(ctx, "POST", "/v1/dog", 500, 0)

	s := c.Snapshot()
	if s.Images != 11 || s.ImageErrors != 1 {
		t.Errorf("images = %d (errors %d), want 11 (1)", s.Images, s.ImageErrors)
	}
	if s.ImageTimeMs != 10 {
		t.Errorf("ImageTimeMs = %d, want 10", s.ImageTimeMs)
	}
	if s.CacheMisses != 10 || s.CacheHits != 1 || s.CacheWrites != 1 || s.CacheBytes != 512 {
		t.Errorf("cache stats = %+v", s)
	}
	if s.Stacks != 1 || s.Requests != 1 || s.ServerErrors != 1 {
		t.Errorf("stats = %+v", s)
	}
}
