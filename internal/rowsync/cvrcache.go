package rowsync

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// DefaultCVRCacheSize bounds the CVR cache. Eviction is safe: a client
// whose CVR fell out of the cache simply gets a full reset patch on its
// next pull.
const DefaultCVRCacheSize = 8192

// CVRCache holds the last-issued client view records, keyed by
// (clientGroupID, cvr version). It is an optimization layer only and is
// never treated as authoritative.
type CVRCache struct {
	lru *lru.Cache[string, *ClientViewRecord]
}

func NewCVRCache(size int) (*CVRCache, error) {
	if size <= 0 {
		size = DefaultCVRCacheSize
	}
	cache, err := lru.New[string, *ClientViewRecord](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating cvr cache")
	}
	return &CVRCache{lru: cache}, nil
}

func (c *CVRCache) Get(clientGroupID string, version int) (*ClientViewRecord, bool) {
	return c.lru.Get(cvrKey(clientGroupID, version))
}

func (c *CVRCache) Put(clientGroupID string, version int, cvr *ClientViewRecord) {
	c.lru.Add(cvrKey(clientGroupID, version), cvr)
}

func (c *CVRCache) Len() int {
	return c.lru.Len()
}

func cvrKey(clientGroupID string, version int) string {
	return fmt.Sprintf("%s/%d", clientGroupID, version)
}
