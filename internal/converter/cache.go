package converter

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/harliandi/go-avif/pkg/avif"
	"github.com/harliandi/go-avif/pkg/metrics"
)

// resultCache memoises conversions of identical input under identical
// options. A nil *resultCache is a disabled cache.
type resultCache struct {
	lru *lru.Cache[string, *Result]
}

func newResultCache(size int) *resultCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[string, *Result](size)
	if err != nil {
		return nil
	}
	return &resultCache{lru: c}
}

// cacheKey combines the input hash, the options and the codec, since the
// same options give different bytes under a stand-in codec.
func cacheKey(inputHash uint64, opts avif.EncodingOptions, codecName string) string {
	return strconv.FormatUint(inputHash, 16) + "|" + codecName + "|" + opts.Key()
}

func (c *resultCache) get(key string) (*Result, bool) {
	if c == nil {
		return nil, false
	}
	r, ok := c.lru.Get(key)
	metrics.RecordCacheLookup(ok)
	return r, ok
}

func (c *resultCache) add(key string, r *Result) {
	if c == nil {
		return
	}
	c.lru.Add(key, r)
}

func (c *resultCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
