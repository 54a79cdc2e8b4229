package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of token claims the client cares about.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer valid at now.
func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// TTL returns the remaining lifetime at now, never negative.
func (c Claims) TTL(now time.Time) time.Duration {
	return max(c.ExpiresAt.Sub(now), 0)
}

var parser = jwtlib.NewParser()

// Inspect decodes token and extracts its expiry, subject and role.
// The signature is not verified.
func Inspect(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	mc := jwtlib.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, mc); err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	if exp == nil {
		return Claims{}, ErrMissingExpiry
	}

	claims := Claims{
		Subject:   subject(mc),
		Role:      stringClaim(mc, "role"),
		ExpiresAt: exp.Time,
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	return claims, nil
}

// subject prefers the registered sub claim; some issuers put the user id
// under id or userId instead.
func subject(mc jwtlib.MapClaims) string {
	if sub, err := mc.GetSubject(); err == nil && sub != "" {
		return sub
	}
	for _, key := range []string{"id", "userId", "user_id"} {
		if v := stringClaim(mc, key); v != "" {
			return v
		}
	}
	return ""
}

func stringClaim(mc jwtlib.MapClaims, key string) string {
	v, ok := mc[key].(string)
	if !ok {
		return ""
	}
	return v
}
