// Package cache provides a generic, concurrency-safe LRU map.
//
//	claims := cache.NewLRU[string, jwt.Claims](64)
//	c, err := claims.GetOrLoad(token, decode)
//
// Get, Put and Remove are O(1). An eviction callback can be installed with
// WithEvictCallback; it runs with the cache lock held and must not call back
// into the cache.
package cache
