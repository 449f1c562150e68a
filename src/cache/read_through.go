package cache

import (
	"context"
	"time"

	"market-data-server/src/logger"

	"golang.org/x/sync/singleflight"
)

// -----------------------------------------------------------------------------

// Request describes one cache-aside read
type Request struct {
	Key      string
	DataType string
	Ticker   string
	TTL      time.Duration

	// Load reads the cached value from storage
	Load func(ctx context.Context) (interface{}, error)

	// Fetch calls the upstream, persists the result and returns it with its row count
	Fetch func(ctx context.Context) (interface{}, int, error)
}

// -----------------------------------------------------------------------------
// ReadThroughCache serves a value from storage while its metadata is valid
// and refetches otherwise. Concurrent misses on one key share one fetch.
// -----------------------------------------------------------------------------

type ReadThroughCache struct {
	Meta   *CacheMetadataStore
	Logger *logger.Logger

	// FetchTimeout bounds a shared fetch, which outlives any single caller
	FetchTimeout time.Duration

	group singleflight.Group
}

// DefaultFetchTimeout applies when FetchTimeout is unset
const DefaultFetchTimeout = time.Minute

// -----------------------------------------------------------------------------

func NewReadThroughCache(meta *CacheMetadataStore, log *logger.Logger) *ReadThroughCache {
	return &ReadThroughCache{Meta: meta, Logger: log, FetchTimeout: DefaultFetchTimeout}
}

// -----------------------------------------------------------------------------

// Get returns the value and whether it came from the cache. A caller that
// gives up only abandons its own wait; the shared fetch keeps running for
// the others.
func (c *ReadThroughCache) Get(ctx context.Context, req Request) (interface{}, bool, error) {
	if v, ok := c.cached(ctx, req); ok {
		c.Logger.Debug("[CACHE HIT] %s", req.Key)
		return v, true, nil
	}

	type result struct {
		value interface{}
		hit   bool
	}

	timeout := c.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	flightCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(req.Key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(flightCtx, timeout)
		defer cancel()

		// another flight may have filled it while we waited
		if v, ok := c.cached(fctx, req); ok {
			return result{value: v, hit: true}, nil
		}

		start := time.Now()
		value, count, err := req.Fetch(fctx)
		if err != nil {
			return nil, err
		}
		if err := c.Meta.Touch(fctx, req.Key, req.DataType, req.Ticker, req.TTL, count); err != nil {
			c.Logger.Warning("Failed to record cache metadata for %s: %v", req.Key, err)
		}
		c.Logger.Info("[CACHE MISS] %s | fetch: %v | rows: %d", req.Key, time.Since(start).Round(time.Millisecond), count)
		return result{value: value}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			c.Logger.Debug("Shared in-flight fetch for %s", req.Key)
		}
		r := res.Val.(result)
		return r.value, r.hit, nil
	}
}

// -----------------------------------------------------------------------------

func (c *ReadThroughCache) cached(ctx context.Context, req Request) (interface{}, bool) {
	if req.Load == nil || !c.Meta.IsValid(ctx, req.Key, req.TTL) {
		return nil, false
	}
	v, err := req.Load(ctx)
	if err != nil {
		c.Logger.Warning("Cached read for %s failed: %v", req.Key, err)
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}
