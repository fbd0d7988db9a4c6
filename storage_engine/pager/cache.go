package pager

import (
	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"

	"PackageDB/errdefs"
	"PackageDB/types"
)

/*
Page read cache.
Reads of whole pages go through a ristretto cache keyed by physical page index.
Writes go straight to the file and then drop the cached page, so the cache never holds bytes
that differ from what is on disk. A nil *pageCache is a disabled cache; every method is a no-op.
*/

type pageCache struct {
	cache *ristretto.Cache[uint64, []byte]
}

func newPageCache(maxBytes int64, pageBytes int) (*pageCache, error) {
	if maxBytes <= 0 {
		return nil, nil
	}

	maxPages := maxBytes / int64(pageBytes)
	counters := maxPages * 10
	if counters < 100 {
		counters = 100
	}

	c, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, errors.Wrapf(errdefs.ErrValidation, "page cache: %v", err)
	}
	return &pageCache{cache: c}, nil
}

func (pc *pageCache) get(pg types.PageID) ([]byte, bool) {
	if pc == nil {
		return nil, false
	}
	data, ok := pc.cache.Get(uint64(pg))
	if ok {
		cacheHits.Inc()
	} else {
		cacheMisses.Inc()
	}
	return data, ok
}

func (pc *pageCache) put(pg types.PageID, data []byte) {
	if pc == nil {
		return
	}
	pc.cache.Set(uint64(pg), data, int64(len(data)))
	// make the set visible before any later invalidate can race with it
	pc.cache.Wait()
}

func (pc *pageCache) invalidate(pg types.PageID) {
	if pc == nil {
		return
	}
	pc.cache.Del(uint64(pg))
}

func (pc *pageCache) clear() {
	if pc == nil {
		return
	}
	pc.cache.Clear()
}

func (pc *pageCache) close() {
	if pc == nil {
		return
	}
	pc.cache.Close()
}

func (pc *pageCache) stats() (hits, misses uint64) {
	if pc == nil {
		return 0, 0
	}
	return pc.cache.Metrics.Hits(), pc.cache.Metrics.Misses()
}
