package watcher

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSeenCapacity bounds the ids remembered by a SeenSet.
const DefaultSeenCapacity = 10000

// seenFPRate is the target false-positive rate of the bloom prefilter.
const seenFPRate = 0.001

// SeenSet remembers the entry ids handled during this process lifetime.
// A bloom filter answers the common "never seen" case; an LRU holds the
// authoritative recent ids so memory stays bounded. An id evicted from
// the LRU is treated as unseen again.
type SeenSet struct {
	mu     sync.Mutex
	filter *bitsbloom.BloomFilter
	recent *lru.Cache[string, struct{}]
}

// NewSeenSet returns a SeenSet holding up to capacity ids.
func NewSeenSet(capacity int) (*SeenSet, error) {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	recent, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &SeenSet{
		filter: bitsbloom.NewWithEstimates(uint(capacity), seenFPRate),
		recent: recent,
	}, nil
}

// Contains reports whether id was added and is still remembered.
func (s *SeenSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.filter.TestString(id) {
		return false
	}
	return s.recent.Contains(id)
}

// Add remembers id and reports whether it was new.
func (s *SeenSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter.TestString(id) && s.recent.Contains(id) {
		return false
	}
	s.filter.AddString(id)
	s.recent.Add(id, struct{}{})
	return true
}

// Len returns the number of remembered ids.
func (s *SeenSet) Len() int {
	return s.recent.Len()
}
