// Package blockcache content-addresses compiled block modules. A hot
// in-memory LRU sits over a LevelDB store, so recompiling the same
// (block, options) input skips the code generator entirely and survives
// process restarts when a path is configured.
package blockcache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/wilsonzlin/aerojit/ir"
	"github.com/wilsonzlin/aerojit/log"
	"github.com/wilsonzlin/aerojit/tier1"
)

// Cache is safe for concurrent use. The LRU and LevelDB synchronize
// themselves; the mutex only guards the counters.
type Cache struct {
	hot *lru.Cache[Key, []byte]
	db  *leveldb.DB

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// Open creates a cache with hotEntries in-memory slots over a LevelDB
// store at path. An empty path uses in-memory storage.
func Open(path string, hotEntries int) (*Cache, error) {
	hot, err := lru.New[Key, []byte](hotEntries)
	if err != nil {
		return nil, fmt.Errorf("blockcache: lru: %w", err)
	}
	var db *leveldb.DB
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("blockcache: open store at %q: %w", path, err)
	}
	return &Cache{hot: hot, db: db}, nil
}

// Get returns the cached module bytes for key. A store hit is promoted
// into the hot tier.
func (c *Cache) Get(key Key) ([]byte, bool, error) {
	if mod, ok := c.hot.Get(key); ok {
		c.count(true)
		return mod, true, nil
	}
	mod, err := c.db.Get(key[:], nil)
	if err == leveldb.ErrNotFound {
		c.count(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blockcache: get %x: %w", key[:4], err)
	}
	c.hot.Add(key, mod)
	c.count(true)
	return mod, true, nil
}

// Put stores module bytes under key in both tiers.
func (c *Cache) Put(key Key, mod []byte) error {
	if err := c.db.Put(key[:], mod, nil); err != nil {
		return fmt.Errorf("blockcache: put %x: %w", key[:4], err)
	}
	c.hot.Add(key, mod)
	return nil
}

// Compile returns the cached module for (block, opts), compiling and
// storing it on a miss. Concurrent misses on the same key may compile
// twice; both produce identical bytes.
func (c *Cache) Compile(block *ir.Block, opts tier1.Options) ([]byte, error) {
	key := KeyOf(block, opts)
	mod, ok, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	if ok {
		log.Trace("blockcache hit", "rip", fmt.Sprintf("%#x", block.Entry))
		return mod, nil
	}
	mod, err = tier1.Compile(block, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Put(key, mod); err != nil {
		return nil, err
	}
	log.Trace("blockcache fill", "rip", fmt.Sprintf("%#x", block.Entry), "bytes", len(mod))
	return mod, nil
}

// Stats reports cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

// Close closes the persistent store.
func (c *Cache) Close() error { return c.db.Close() }
