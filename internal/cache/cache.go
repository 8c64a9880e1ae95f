// Package cache implements the C5 result cache: a process-local, bounded
// cache keyed by (tool name, canonicalized parameters) with priority-class
// eviction and per-tool TTLs (spec §4.5).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codeintel-go/engine/internal/config"
)

// Priority classifies an entry's eviction preference. Normal-priority
// entries are evicted before High-priority ones when the cache is full;
// within a class, eviction is LRU.
type Priority int

const (
	// PriorityNormal is evicted before PriorityHigh.
	PriorityNormal Priority = iota
	// PriorityHigh survives longer under memory pressure (e.g. goto_definition,
	// which backs interactive navigation and is comparatively expensive to recompute).
	PriorityHigh
)

// entry is the value stored behind each cache key.
type entry struct {
	value      any
	expiresAt  time.Time
	priority   Priority
}

// Cache is the C5 result cache. Two LRU rings back the two priority
// classes; Get/Set/Invalidate are safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	normal *lru.Cache[string, *entry]
	high   *lru.Cache[string, *entry]
	ttl    map[string]time.Duration

	hits   int64
	misses int64
}

// New builds a Cache from the workspace's CacheConfig. Per-tool TTLs come
// directly from cfg; tools with no configured TTL default to 5 minutes.
func New(cfg config.CacheConfig) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	// Split capacity between classes so a flood of Normal-priority churn
	// cannot starve High-priority entries out of the cache entirely.
	normalCap := maxEntries
	highCap := maxEntries / 4
	if highCap < 16 {
		highCap = 16
	}

	normal, _ := lru.New[string, *entry](normalCap)
	high, _ := lru.New[string, *entry](highCap)

	return &Cache{
		normal: normal,
		high:   high,
		ttl: map[string]time.Duration{
			"text_search":       cfg.TextSearchTTL,
			"file_search":       cfg.TextSearchTTL,
			"recent_files":      cfg.RecentFilesTTL,
			"goto_definition":   cfg.GotoDefinitionTTL,
			"directory_search":  cfg.DirectorySearchTTL,
		},
	}
}

// priorityForTool assigns the eviction class for a tool's cache entries.
// goto_definition backs interactive navigation and is worth protecting;
// everything else is Normal.
func priorityForTool(tool string) Priority {
	if tool == "goto_definition" {
		return PriorityHigh
	}
	return PriorityNormal
}

// Key canonicalizes (tool, params) into a stable cache key: the params are
// marshaled with sorted map keys (via canonicalize) then SHA256-hashed
// alongside the tool name so unrelated tools never collide.
func Key(tool string, params any) string {
	canon := canonicalize(params)
	data, _ := json.Marshal(canon)
	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize recursively sorts map keys so two equivalent param structs
// (e.g. decoded from JSON in arbitrary key order) produce the same key.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(t)*2)
		for _, k := range keys {
			out = append(out, k, canonicalize(t[k]))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		// Round-trip through JSON to normalize structs into map[string]any
		// so field order never affects the key.
		data, err := json.Marshal(t)
		if err != nil {
			return t
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return t
		}
		if _, ok := generic.(map[string]any); ok {
			return canonicalize(generic)
		}
		return generic
	}
}

// Get looks up a cached value for (tool, key). Returns ok=false on miss or
// expiry; an expired entry is evicted from its class on lookup.
func (c *Cache) Get(tool, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ring := c.ringFor(priorityForTool(tool))
	e, ok := ring.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		ring.Remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under (tool, key) with the tool's configured TTL.
func (c *Cache) Set(tool, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttl[tool]
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	priority := priorityForTool(tool)
	c.ringFor(priority).Add(key, &entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
		priority:  priority,
	})
}

// Invalidate drops every cached entry in both classes. The refactor
// executor (C7) calls this after any apply step that mutates files, since
// cache keys are not indexed by path and a targeted invalidation would
// require scanning every entry's params anyway.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.normal.Purge()
	c.high.Purge()
}

// Stats reports cumulative hit/miss counts for diagnostics.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns cumulative hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

func (c *Cache) ringFor(p Priority) *lru.Cache[string, *entry] {
	if p == PriorityHigh {
		return c.high
	}
	return c.normal
}
