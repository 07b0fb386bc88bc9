package cache

import (
	"container/list"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/store"
)

// ErrPutPending means another writer is already adding the key.
var ErrPutPending = errors.New("a put is already in progress for this key")

// LRU is a cache limited to a total size in bytes. When a new item needs
// room the least recently used items are evicted.
type LRU struct {
	// this is the place where cached items are stored
	s store.Store

	maxSize int64 // the most space we may use

	m       sync.Mutex // protects everything below
	size    int64      // bytes in use or reserved by open writers
	lru     *list.List // front is most recently used
	index   map[string]*list.Element
	pending map[string]bool
}

type entry struct {
	key  string
	size int64
}

// NewLRU returns a cache keeping at most maxSize bytes in s. The store may
// already have items in it; call Scan, inline or in a goroutine, to add
// them.
func NewLRU(s store.Store, maxSize int64) *LRU {
	return &LRU{
		s:       s,
		maxSize: maxSize,
		lru:     list.New(),
		index:   make(map[string]*list.Element),
		pending: make(map[string]bool),
	}
}

// Scan adds the items already in the store to the cache. Items that do not
// fit are deleted from the store.
func (c *LRU) Scan() {
	for key := range c.s.List() {
		if c.Contains(key) {
			continue
		}
		rc, size, err := c.s.Open(key)
		if err != nil {
			continue
		}
		rc.Close()
		if err := c.reserve(size); err != nil {
			c.s.Delete(key)
			continue
		}
		c.m.Lock()
		c.link(entry{key: key, size: size})
		c.m.Unlock()
	}
}

// Contains is true if key is in the cache. It does not change the usage
// order, and the key may be evicted before Get is called.
func (c *LRU) Contains(key string) bool {
	c.m.Lock()
	defer c.m.Unlock()
	_, ok := c.index[key]
	return ok
}

// Get returns a reader for key and marks it most recently used. If key is
// not in the cache the reader is nil.
func (c *LRU) Get(key string) (store.ReadAtCloser, int64, error) {
	c.m.Lock()
	e, ok := c.index[key]
	if ok {
		c.lru.MoveToFront(e)
	}
	c.m.Unlock()
	if !ok {
		return nil, 0, nil
	}
	rc, size, err := c.s.Open(key)
	if err != nil {
		// assume the copy is bad and forget it
		c.m.Lock()
		c.unlink(key)
		c.m.Unlock()
		c.s.Delete(key)
		return nil, 0, err
	}
	return rc, size, nil
}

// Put returns a writer that adds key to the cache when it is closed. Items
// are evicted as content is written. Putting a key already in the cache
// returns store.ErrKeyExists, and putting a key another writer is adding
// returns ErrPutPending.
func (c *LRU) Put(key string) (io.WriteCloser, error) {
	c.m.Lock()
	_, exists := c.index[key]
	pending := c.pending[key]
	if !exists && !pending {
		c.pending[key] = true
	}
	c.m.Unlock()
	if exists {
		return nil, store.ErrKeyExists
	}
	if pending {
		return nil, ErrPutPending
	}
	w, err := c.s.Create(key)
	if err != nil {
		c.m.Lock()
		delete(c.pending, key)
		c.m.Unlock()
		return nil, err
	}
	return &writer{parent: c, key: key, w: w}, nil
}

// Size returns the number of bytes the cache is using.
func (c *LRU) Size() int64 {
	c.m.Lock()
	defer c.m.Unlock()
	return c.size
}

func (c *LRU) save(w *writer) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.pending, w.key)
	c.link(entry{key: w.key, size: w.size})
}

func (c *LRU) discard(w *writer) {
	c.m.Lock()
	delete(c.pending, w.key)
	c.size -= w.size
	c.m.Unlock()
	c.s.Delete(w.key)
}

// reserve makes room for size more bytes, evicting items if needed to stay
// under maxSize. Nothing is reserved if there is an error.
func (c *LRU) reserve(size int64) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.size += size
	for c.size > c.maxSize {
		e := c.lru.Back()
		if e == nil {
			c.size -= size
			return ErrCacheFull
		}
		victim := e.Value.(entry)
		if err := c.s.Delete(victim.key); err != nil {
			c.size -= size
			return err
		}
		c.unlink(victim.key)
	}
	return nil
}

// link and unlink expect c.m to be held.

func (c *LRU) link(e entry) {
	c.index[e.key] = c.lru.PushFront(e)
}

func (c *LRU) unlink(key string) {
	e, ok := c.index[key]
	if !ok {
		return
	}
	c.size -= c.lru.Remove(e).(entry).size
	delete(c.index, key)
}
