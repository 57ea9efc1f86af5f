package postproc

import (
	"github.com/dgraph-io/ristretto/v2"

	"costrules/core/types"
)

const cacheKeySeparator = "\x1e"

// derived is a memoized output of Operand.TagGroup
type derived struct {
	tg types.TagGroup
	ok bool
}

// tagGroupCache memoizes the tag group an operand derives from a bucket. The
// same bucket recurs in every hour of a pass, so the derivation runs once per
// bucket instead of once per hour. Every entry costs 1, so the cache holds up
// to maxEntries derivations. A nil cache disables memoization.
type tagGroupCache struct {
	c *ristretto.Cache[string, derived]
}

func newTagGroupCache(maxEntries int64) (*tagGroupCache, error) {
	if maxEntries <= 0 {
		return nil, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, derived]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &tagGroupCache{c: c}, nil
}

func (c *tagGroupCache) get(key string) (derived, bool) {
	if c == nil {
		return derived{}, false
	}
	return c.c.Get(key)
}

func (c *tagGroupCache) set(key string, d derived) {
	if c == nil {
		return
	}
	c.c.Set(key, d, 1)
}

func (c *tagGroupCache) clear() {
	if c == nil {
		return
	}
	c.c.Clear()
}

func (c *tagGroupCache) close() {
	if c == nil {
		return
	}
	c.c.Close()
}

func cacheKey(rule, operand, bucket string) string {
	return rule + cacheKeySeparator + operand + cacheKeySeparator + bucket
}
