// Package cache provides the optional short-lived decision cache. Entries
// are keyed by a fingerprint of the normalized query, context snapshot,
// requester flags and the catalog/weights/breaker generation, so a cached
// decision is only ever served for an equivalent evaluation.
package cache

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
	"github.com/capgate-project/capgate/pkg/signals"
)

// EntryMeta is the bookkeeping view eviction policies operate on.
type EntryMeta struct {
	Key          string
	StoredAt     time.Time
	LastAccessAt time.Time
	HitCount     int64
}

type entry struct {
	meta      EntryMeta
	value     any
	expiresAt time.Time
}

// Stats reports cache effectiveness for the status API.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Evicted int64 `json:"evicted"`
	Expired int64 `json:"expired"`
}

// DecisionCache is a TTL cache safe for highly concurrent evaluation
// (target ≥1000 simultaneous readers).
type DecisionCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	policy  EvictionPolicy

	enabled    bool
	ttl        time.Duration
	maxEntries int

	hits    int64
	misses  int64
	evicted int64
	expired int64

	now func() time.Time
}

// New creates a cache from config. A disabled cache is a cheap no-op.
func New(cfg config.CacheConfig) *DecisionCache {
	return &DecisionCache{
		entries:    make(map[string]*entry),
		policy:     NewPolicy(cfg.EvictionPolicy),
		enabled:    cfg.Enabled,
		ttl:        time.Duration(cfg.TTLSeconds) * time.Second,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}
}

// IsEnabled returns whether the cache is active.
func (c *DecisionCache) IsEnabled() bool { return c.enabled }

// Fingerprint derives the cache key for a request under the current
// catalog/weights generation and breaker phase. Any input that can change
// the decision must feed the key.
func Fingerprint(req *signals.Request, catalogVersion string, weightsVersion int64, breakerPhase string) string {
	h := fnv.New64a()

	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}

	write(normalizeQuery(req.Query))
	write(strconv.FormatBool(req.Inexperienced))
	write(strconv.FormatBool(req.HighComplexity))

	env := req.Environment
	write(strconv.FormatBool(env.DirtyWorktree))
	write(strconv.FormatBool(env.MergeConflict))
	write(strconv.FormatBool(env.FailingTests))
	write(strconv.FormatBool(env.HasTestDir))
	write(strconv.FormatBool(env.HasSecurityDir))
	write(strconv.FormatBool(env.HasInfraDir))

	for _, entry := range req.History {
		write(normalizeQuery(entry.Query))
		write(strings.Join(entry.Categories, ","))
	}

	write(catalogVersion)
	write(strconv.FormatInt(weightsVersion, 10))
	write(breakerPhase)

	return strconv.FormatUint(h.Sum64(), 16)
}

// normalizeQuery lowercases and collapses whitespace so trivially different
// phrasings share a key.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Get returns the cached value for key, if present and fresh.
func (c *DecisionCache) Get(key string) (any, bool) {
	if !c.enabled {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		value := e.value
		c.mu.RUnlock()

		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			e.meta.LastAccessAt = c.now()
			e.meta.HitCount++
			c.hits++
		}
		c.mu.Unlock()

		metrics.RecordCacheOperation("get", "hit")
		return value, true
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if e, stale := c.entries[key]; stale && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.expired++
	}
	c.misses++
	c.mu.Unlock()

	metrics.RecordCacheOperation("get", "miss")
	return nil, false
}

// Put stores a value under key, evicting per policy when full.
func (c *DecisionCache) Put(key string, value any) {
	if !c.enabled {
		return
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.value = value
		existing.expiresAt = now.Add(c.ttl)
		existing.meta.StoredAt = now
		metrics.RecordCacheOperation("put", "update")
		return
	}

	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	c.entries[key] = &entry{
		meta:      EntryMeta{Key: key, StoredAt: now, LastAccessAt: now},
		value:     value,
		expiresAt: now.Add(c.ttl),
	}
	metrics.CacheEntriesGauge.Set(float64(len(c.entries)))
	metrics.RecordCacheOperation("put", "insert")
}

// evictLocked removes expired entries first, then asks the policy for a
// victim. Callers hold the write lock.
func (c *DecisionCache) evictLocked() {
	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			c.expired++
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}

	metas := make([]EntryMeta, 0, len(c.entries))
	for _, e := range c.entries {
		metas = append(metas, e.meta)
	}
	if victim := c.policy.SelectVictim(metas); victim >= 0 {
		delete(c.entries, metas[victim].Key)
		c.evicted++
		metrics.RecordCacheOperation("evict", "policy")
	}
}

// Stats returns a point-in-time view of cache effectiveness.
func (c *DecisionCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
		Expired: c.expired,
	}
}
