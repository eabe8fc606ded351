package main

import (
	"time"

	"github.com/gohugoio/httpcache"

	"github.com/ErikKalkoken/structurewatch/internal/memcache"
)

// responseCache stores HTTP responses for httpcache in memcache.
//
// All keys are namespaced with a prefix, e.g. "esi-" for ESI responses,
// so several clients can share one memcache.
// Entries are dropped after ttl even when the response would still be fresh,
// which bounds the memory used for responses that are never requested again.
// A ttl of 0 keeps entries until they are deleted.
type responseCache struct {
	mc     *memcache.Cache
	prefix string
	ttl    time.Duration
}

var _ httpcache.Cache = (*responseCache)(nil)

func newResponseCache(mc *memcache.Cache, prefix string, ttl time.Duration) *responseCache {
	return &responseCache{mc: mc, prefix: prefix, ttl: ttl}
}

func (rc *responseCache) Get(key string) ([]byte, bool) {
	return rc.mc.Get(rc.prefix + key)
}

func (rc *responseCache) Set(key string, b []byte) {
	rc.mc.Set(rc.prefix+key, b, rc.ttl)
}

func (rc *responseCache) Delete(key string) {
	rc.mc.Delete(rc.prefix + key)
}
