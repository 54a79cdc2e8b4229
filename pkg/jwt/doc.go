// Package jwt inspects session credentials issued by the shop API.
//
// The client never holds the server's signing key, so tokens are decoded
// without signature verification: the goal is only to read the embedded
// expiry, subject and role in order to schedule refreshes and detect
// expiration locally. Authorisation is still enforced by the server on every
// request.
//
// Decoding is delegated to github.com/golang-jwt/jwt/v5 (ParseUnverified with
// MapClaims). Inspect is a pure function; Inspector adds a small LRU memo so
// the periodic session check does not re-decode the same token every minute.
//
//	claims, err := jwt.Inspect(token)
//	if errors.Is(err, jwt.ErrInvalidToken) {
//	    // malformed, or no exp claim
//	}
//	if claims.Expired(time.Now()) {
//	    // refresh or log out
//	}
package jwt
