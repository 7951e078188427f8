// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultCacheCapacity bounds the number of retained resolution results.
const DefaultCacheCapacity = 64

// resultCache is a capacity-bounded FIFO cache keyed by canonicalized
// resolution input. Eviction drops the oldest entry first.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*Result
	// order tracks insertion order for FIFO eviction.
	order []string
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &resultCache{
		capacity: capacity,
		entries:  make(map[string]*Result, capacity),
	}
}

func (c *resultCache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[key]
	return res, ok
}

func (c *resultCache) put(key string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = res
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = res
	c.order = append(c.order, key)
}

func (c *resultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Result, c.capacity)
	c.order = nil
}

// cacheKey builds a canonical, order-independent encoding of the resolution
// input: sorted root ids, framework, strategy, policy flags, depth bound,
// sorted excludes, and sorted preferred-version pairs. Two calls with the
// same semantic input always produce the same key.
func cacheKey(roots []string, rctx Context) string {
	sortedRoots := append([]string(nil), roots...)
	sort.Strings(sortedRoots)

	excludes := make([]string, 0, len(rctx.Exclude))
	for id, excluded := range rctx.Exclude {
		if excluded {
			excludes = append(excludes, id)
		}
	}
	sort.Strings(excludes)

	preferred := make([]string, 0, len(rctx.Preferred))
	for id, rng := range rctx.Preferred {
		preferred = append(preferred, id+"@"+rng.String())
	}
	sort.Strings(preferred)

	var b strings.Builder
	b.WriteString(strings.Join(sortedRoots, ","))
	b.WriteByte('|')
	b.WriteString(rctx.Framework)
	b.WriteByte('|')
	b.WriteString(string(rctx.Strategy))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(rctx.AllowExperimental))
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(rctx.AllowDeprecated))
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(rctx.AllowConflicts))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(rctx.MaxDepth))
	b.WriteByte('|')
	b.WriteString(strings.Join(excludes, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(preferred, ","))
	return b.String()
}
