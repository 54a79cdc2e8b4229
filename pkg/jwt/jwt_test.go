package jwt_test

import (
	"fmt"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clientsync/pkg/jwt"
)

func sign(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("server-only-secret"))
	require.NoError(t, err)
	return token
}

func TestInspect(t *testing.T) {
	t.Parallel()
	now := time.Now().Truncate(time.Second)

	t.Run("reads registered and custom claims", func(t *testing.T) {
		token := sign(t, jwtlib.MapClaims{
			"sub":  "user-1",
			"role": "customer",
			"iat":  now.Unix(),
			"exp":  now.Add(15 * time.Minute).Unix(),
		})

		claims, err := jwt.Inspect(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, "customer", claims.Role)
		assert.True(t, claims.ExpiresAt.Equal(now.Add(15*time.Minute)))
		assert.True(t, claims.IssuedAt.Equal(now))
		assert.False(t, claims.Expired(now))
		assert.Equal(t, 15*time.Minute, claims.TTL(now))
	})

	t.Run("falls back to id claim", func(t *testing.T) {
		token := sign(t, jwtlib.MapClaims{"id": "legacy-7", "exp": now.Add(time.Hour).Unix()})
		claims, err := jwt.Inspect(token)
		require.NoError(t, err)
		assert.Equal(t, "legacy-7", claims.Subject)
	})

	t.Run("expired token still decodes", func(t *testing.T) {
		token := sign(t, jwtlib.MapClaims{"sub": "user-1", "exp": now.Add(-time.Minute).Unix()})
		claims, err := jwt.Inspect(token)
		require.NoError(t, err)
		assert.True(t, claims.Expired(now))
		assert.Zero(t, claims.TTL(now))
	})

	t.Run("missing exp", func(t *testing.T) {
		token := sign(t, jwtlib.MapClaims{"sub": "user-1"})
		_, err := jwt.Inspect(token)
		assert.ErrorIs(t, err, jwt.ErrMissingExpiry)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	for _, raw := range []string{"", "not-a-token", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.e30"} {
		t.Run(fmt.Sprintf("malformed %q", raw), func(t *testing.T) {
			_, err := jwt.Inspect(raw)
			assert.ErrorIs(t, err, jwt.ErrInvalidToken)
		})
	}
}

func TestInspector(t *testing.T) {
	t.Parallel()
	exp := time.Now().Add(time.Hour).Unix()

	inspector := jwt.NewInspector(2)
	a := sign(t, jwtlib.MapClaims{"sub": "a", "exp": exp})
	b := sign(t, jwtlib.MapClaims{"sub": "b", "exp": exp})
	c := sign(t, jwtlib.MapClaims{"sub": "c", "exp": exp})

	for _, token := range []string{a, b, a, c} {
		_, err := inspector.Inspect(token)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inspector.Len())

	_, err := inspector.Inspect("garbage")
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	assert.Equal(t, 2, inspector.Len())

	inspector.Forget(a)
	assert.Equal(t, 1, inspector.Len())
}
