package jwt

import "github.com/dmitrymomot/clientsync/pkg/cache"

// Inspector memoises decoded claims for recently seen tokens.
// It is safe for concurrent use.
type Inspector struct {
	claims *cache.LRU[string, Claims]
}

// NewInspector returns an Inspector that remembers up to capacity tokens.
// Capacities below 1 are raised to 1.
func NewInspector(capacity int) *Inspector {
	return &Inspector{claims: cache.NewLRU[string, Claims](capacity)}
}

// Inspect returns cached claims for token or decodes it with Inspect.
// Only successful decodes are cached.
func (i *Inspector) Inspect(token string) (Claims, error) {
	return i.claims.GetOrLoad(token, Inspect)
}

// Forget drops token from the memo.
func (i *Inspector) Forget(token string) {
	i.claims.Remove(token)
}

// Len returns the number of memoised tokens.
func (i *Inspector) Len() int {
	return i.claims.Len()
}
