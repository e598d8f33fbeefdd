// Per-file LRU stores: dataset cache and row-count index. Both are
// mtime-validated; a stale entry is treated as absent and dropped. Neither
// store locks - the owning FileAccessor serializes access.

package storage

import (
	"container/list"
	"time"

	"github.com/tabserve/tabserve/internal/dataset"
)

type cacheEntry struct {
	key   string
	ds    *dataset.Dataset
	mtime time.Time
}

// cacheStore is an LRU map from selection key to (dataset, mtime).
// Recency is tracked with an intrusive list: front is most recent.
type cacheStore struct {
	maxEntries int
	ll         *list.List
	index      map[string]*list.Element
}

func newCacheStore(maxEntries int) *cacheStore {
	return &cacheStore{
		maxEntries: maxEntries,
		ll:         list.New(),
		index:      make(map[string]*list.Element),
	}
}

// get returns the cached dataset when the entry exists and its stored
// mtime matches the file's current mtime, bumping recency. A stale entry
// is evicted on sight.
func (c *cacheStore) get(key string, mtime time.Time) (*dataset.Dataset, bool) {
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if !e.mtime.Equal(mtime) {
		c.remove(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return e.ds, true
}

// put inserts or replaces an entry as most-recently-used, then evicts the
// least-recently-used entries while over capacity.
func (c *cacheStore) put(key string, ds *dataset.Dataset, mtime time.Time) {
	if el, ok := c.index[key]; ok {
		e := el.Value.(*cacheEntry)
		e.ds = ds
		e.mtime = mtime
		c.ll.MoveToFront(el)
	} else {
		c.index[key] = c.ll.PushFront(&cacheEntry{key: key, ds: ds, mtime: mtime})
	}
	for c.maxEntries > 0 && c.ll.Len() > c.maxEntries {
		c.remove(c.ll.Back())
	}
}

func (c *cacheStore) remove(el *list.Element) {
	c.ll.Remove(el)
	delete(c.index, el.Value.(*cacheEntry).key)
}

func (c *cacheStore) len() int { return c.ll.Len() }

func (c *cacheStore) clear() {
	c.ll.Init()
	c.index = make(map[string]*list.Element)
}

// bytes estimates the memory held by cached datasets.
func (c *cacheStore) bytes() int64 {
	var total int64
	for el := c.ll.Front(); el != nil; el = el.Next() {
		total += el.Value.(*cacheEntry).ds.EstimateBytes()
	}
	return total
}

type countEntry struct {
	key   string
	count int
	mtime time.Time
}

// rowCountIndex is the companion LRU for row counts, cached independently
// because counting is far cheaper than materializing rows.
type rowCountIndex struct {
	maxEntries int
	ll         *list.List
	index      map[string]*list.Element
}

func newRowCountIndex(maxEntries int) *rowCountIndex {
	return &rowCountIndex{
		maxEntries: maxEntries,
		ll:         list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (c *rowCountIndex) get(key string, mtime time.Time) (int, bool) {
	el, ok := c.index[key]
	if !ok {
		return 0, false
	}
	e := el.Value.(*countEntry)
	if !e.mtime.Equal(mtime) {
		c.ll.Remove(el)
		delete(c.index, key)
		return 0, false
	}
	c.ll.MoveToFront(el)
	return e.count, true
}

func (c *rowCountIndex) put(key string, count int, mtime time.Time) {
	if el, ok := c.index[key]; ok {
		e := el.Value.(*countEntry)
		e.count = count
		e.mtime = mtime
		c.ll.MoveToFront(el)
	} else {
		c.index[key] = c.ll.PushFront(&countEntry{key: key, count: count, mtime: mtime})
	}
	for c.maxEntries > 0 && c.ll.Len() > c.maxEntries {
		back := c.ll.Back()
		c.ll.Remove(back)
		delete(c.index, back.Value.(*countEntry).key)
	}
}

func (c *rowCountIndex) len() int { return c.ll.Len() }

func (c *rowCountIndex) clear() {
	c.ll.Init()
	c.index = make(map[string]*list.Element)
}
