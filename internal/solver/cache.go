package solver

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"refine/internal/pred"
)

// Cache stores verdicts by query key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (Verdict, bool)
	Put(key string, v Verdict)
}

// QueryKey identifies a query independently of fact order.
func QueryKey(goal *pred.Term, facts []*pred.Term) string {
	keys := make([]string, len(facts))
	for i, f := range facts {
		keys[i] = f.Canonical()
	}
	slices.Sort(keys)
	d := xxhash.New()
	_, _ = d.WriteString(goal.Canonical())
	for _, k := range keys {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(k)
	}
	var sum [8]byte
	return hex.EncodeToString(d.Sum(sum[:0]))
}

// Cached wraps a Decider with a verdict cache. Timeouts are never cached:
// they depend on load, not on the query.
type Cached struct {
	Decider Decider
	Cache   Cache
}

func (c Cached) Decide(ctx context.Context, goal *pred.Term, facts []*pred.Term) Verdict {
	if c.Cache == nil {
		return c.Decider.Decide(ctx, goal, facts)
	}
	key := QueryKey(goal, facts)
	if v, ok := c.Cache.Get(key); ok {
		return v
	}
	v := c.Decider.Decide(ctx, goal, facts)
	if v.Reason == nil || v.Reason.Category != CatTimeout {
		c.Cache.Put(key, v)
	}
	return v
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]Verdict
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]Verdict)}
}

func (c *MemoryCache) Get(key string) (Verdict, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *MemoryCache) Put(key string, v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = v
}

// Current schema version - increment when diskEntry changes
const diskCacheSchema uint16 = 1

type diskEntry struct {
	Schema  uint16  `msgpack:"schema"`
	Verdict Verdict `msgpack:"verdict"`
}

// DiskCache keeps verdicts as msgpack files, one per query, written through a
// temp file and an atomic rename.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// OpenDiskCache uses dir, or $XDG_CACHE_HOME/<app> when dir is empty.
func OpenDiskCache(dir, app string) (*DiskCache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, app)
	}
	if err := os.MkdirAll(filepath.Join(dir, "verdicts"), 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) pathFor(key string) string {
	return filepath.Join(c.dir, "verdicts", key+".mp")
}

// Get returns false for missing, unreadable or outdated entries.
func (c *DiskCache) Get(key string) (Verdict, bool) {
	if c == nil {
		return Verdict{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		return Verdict{}, false
	}
	var e diskEntry
	if err := msgpack.Unmarshal(data, &e); err != nil || e.Schema != diskCacheSchema {
		return Verdict{}, false
	}
	return e.Verdict, true
}

// Put stores v; write failures only cost a future cache miss.
func (c *DiskCache) Put(key string, v Verdict) {
	_ = c.Store(key, v)
}

// Store is Put with the error reported.
func (c *DiskCache) Store(key string, v Verdict) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := msgpack.NewEncoder(f).Encode(&diskEntry{Schema: diskCacheSchema, Verdict: v}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// DropAll removes every stored verdict.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.RemoveAll(filepath.Join(c.dir, "verdicts"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.MkdirAll(filepath.Join(c.dir, "verdicts"), 0o755)
}
