package syncingengine

import lru "github.com/hashicorp/golang-lru"

// announceCache is the bounded LRU mapping block hash to opaque
// announcement-data bytes. It is purely advisory: eviction never causes
// a caller-visible failure.
type announceCache struct {
	cache *lru.Cache
}

// newAnnounceCache builds a cache sized to in_peers+out_peers, with a
// floor of 1 so a zero-peer engine still has a usable cache.
func newAnnounceCache(capacity int) *announceCache {
	if capacity < 1 {
		capacity = 1
	}
	c, err := lru.New(capacity)
	if err != nil {
		panic(err)
	}
	return &announceCache{cache: c}
}

func (a *announceCache) resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	c, err := lru.New(capacity)
	if err != nil {
		panic(err)
	}
	// Best-effort carry-over; losing entries on a resize is tolerable
	// since the cache is purely advisory.
	for _, key := range a.cache.Keys() {
		if v, ok := a.cache.Peek(key); ok {
			c.Add(key, v)
		}
	}
	a.cache = c
}

func (a *announceCache) put(hash BlockHash, data []byte) {
	if len(data) == 0 {
		return
	}
	a.cache.Add(hash, data)
}

func (a *announceCache) get(hash BlockHash) ([]byte, bool) {
	v, ok := a.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}
