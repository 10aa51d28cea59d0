package decision

import (
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/watchangel/internal/watch/domain"
)

// Cached memoizes a Decider in an LRU keyed by RuleSet revision and inputs.
// It tracks hits, misses and evictions. A size <= 0 disables caching.
type Cached struct {
	next      Decider
	lru       *lru.Cache[string, domain.Decision]
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next Decider, size int) (*Cached, error) {
	c := &Cached{next: next}
	if size <= 0 {
		return c, nil
	}
	cache, err := lru.NewWithEvict(size, func(string, domain.Decision) {
		atomic.AddUint64(&c.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = cache
	return c, nil
}

func cacheKey(rs domain.RuleSet, title, channelName, sourceURL string) string {
	var b strings.Builder
	b.Grow(len(title) + len(channelName) + len(sourceURL) + 24)
	b.WriteString(strconv.FormatUint(rs.Revision(), 10))
	for _, s := range []string{title, channelName, sourceURL} {
		b.WriteByte(0)
		b.WriteString(s)
	}
	return b.String()
}

// Decide returns the memoized decision or computes and stores it.
func (c *Cached) Decide(rs domain.RuleSet, title, channelName, sourceURL string) domain.Decision {
	if c.lru == nil {
		return c.next.Decide(rs, title, channelName, sourceURL)
	}
	key := cacheKey(rs, title, channelName, sourceURL)
	if d, ok := c.lru.Get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return d
	}
	atomic.AddUint64(&c.misses, 1)
	d := c.next.Decide(rs, title, channelName, sourceURL)
	c.lru.Add(key, d)
	return d
}

// Len returns the number of cached decisions.
func (c *Cached) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *Cached) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Stats returns cumulative hit/miss/eviction counters.
func (c *Cached) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

var _ Decider = (*Cached)(nil)
