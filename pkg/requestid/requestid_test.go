package requestid_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clientsync/pkg/requestid"
)

func TestEnsure(t *testing.T) {
	t.Parallel()

	t.Run("keeps an existing id", func(t *testing.T) {
		t.Parallel()
		ctx := requestid.WithContext(context.Background(), "abc")
		ctx, id := requestid.Ensure(ctx)
		assert.Equal(t, "abc", id)
		assert.Equal(t, "abc", requestid.FromContext(ctx))
	})

	t.Run("generates a missing id", func(t *testing.T) {
		t.Parallel()
		ctx, id := requestid.Ensure(context.Background())
		assert.NotEmpty(t, id)
		assert.Equal(t, id, requestid.FromContext(ctx))
	})
}

func TestStamp(t *testing.T) {
	t.Parallel()

	ctx := requestid.WithContext(context.Background(), "from-ctx")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://shop/cart", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-ctx", requestid.Stamp(req))
	assert.Equal(t, "from-ctx", req.Header.Get(requestid.Header))

	req, err = http.NewRequest(http.MethodGet, "http://shop/cart", nil)
	require.NoError(t, err)
	req.Header.Set(requestid.Header, "preset")
	assert.Equal(t, "preset", requestid.Stamp(req))

	req, err = http.NewRequest(http.MethodGet, "http://shop/cart", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, requestid.Stamp(req))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := requestid.LoggerExtractor()
	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(requestid.WithContext(context.Background(), "r1"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "r1", attr.Value.String())
}
