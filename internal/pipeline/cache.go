package pipeline

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/timing"
)

// DefaultCacheEntries bounds the Pass-1 cache when none is configured.
const DefaultCacheEntries = 64

// CacheKey identifies a Pass-1 result: the take and the preset it was
// processed with.
type CacheKey struct {
	TakeID      string
	Fingerprint string
}

func (k CacheKey) String() string { return k.TakeID + "@" + k.Fingerprint }

// Pass1Output is what Pass 1 produces for one take.
type Pass1Output struct {
	Buffer   *audio.Buffer
	Timing   *timing.Map
	Analyses []processor.Analysis
	// Input holds the measurements of the decoded source.
	Input    *processor.AudioMeasurements
	Metadata *audio.Metadata
}

func (o *Pass1Output) clone() *Pass1Output {
	c := *o
	c.Buffer = o.Buffer.Clone()
	c.Analyses = append([]processor.Analysis(nil), o.Analyses...)
	return &c
}

type cacheEntry struct {
	key CacheKey
	// stamp records the source file state; a changed file is a miss.
	stamp string
	out   *Pass1Output
}

// Cache holds recent Pass-1 results, least recently used evicted first.
// Concurrent requests for the same key share one computation. Buffers are
// copied in and out, so callers own what they receive.
type Cache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[CacheKey]*list.Element
	group   singleflight.Group
	flights map[string]*flight
}

// flight is one shared computation. Its context is detached from any single
// caller and cancelled only when every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCache returns a cache holding at most maxEntries results. Zero disables
// storage; concurrent requests are still de-duplicated.
func NewCache(maxEntries int) *Cache {
	return &Cache{
		max:     max(0, maxEntries),
		order:   list.New(),
		entries: make(map[CacheKey]*list.Element),
		flights: make(map[string]*flight),
	}
}

// Len returns the number of stored results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Get returns a copy of the stored result for key if its stamp matches.
func (c *Cache) Get(key CacheKey, stamp string) (*Pass1Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if e.stamp != stamp {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.out.clone(), true
}

// Put stores a copy of out.
func (c *Cache) Put(key CacheKey, stamp string, out *Pass1Output) {
	if c.max == 0 || out == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value = &cacheEntry{key: key, stamp: stamp, out: out.clone()}
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, stamp: stamp, out: out.clone()})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Do returns the cached result for key or runs compute once, however many
// callers ask at the same time. hit reports whether compute was skipped.
// A caller whose ctx ends stops waiting; the computation carries on for the
// others and is cancelled once no caller is left.
func (c *Cache) Do(ctx context.Context, key CacheKey, stamp string, compute func(context.Context) (*Pass1Output, error)) (out *Pass1Output, hit bool, err error) {
	if out, ok := c.Get(key, stamp); ok {
		return out, true, nil
	}
	id := key.String() + "#" + stamp
	f := c.join(ctx, id)
	defer c.leave(id, f)

	ch := c.group.DoChan(id, func() (any, error) {
		if out, ok := c.Get(key, stamp); ok {
			return out, nil
		}
		out, err := compute(f.ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, stamp, out)
		return out, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.(*Pass1Output).clone(), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *Cache) join(ctx context.Context, id string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[id]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[id] = f
	}
	f.waiters++
	return f
}

func (c *Cache) leave(id string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.waiters--; f.waiters > 0 {
		return
	}
	f.cancel()
	delete(c.flights, id)
	// a later caller must not join a computation whose context is gone
	c.group.Forget(id)
}
