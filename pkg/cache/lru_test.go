package cache_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clientsync/pkg/cache"
)

func TestLRU(t *testing.T) {
	t.Parallel()

	t.Run("evicts the least recently used key", func(t *testing.T) {
		t.Parallel()
		var evicted []string
		c := cache.NewLRU(2, cache.WithEvictCallback(func(k string, _ int) {
			evicted = append(evicted, k)
		}))

		c.Put("a", 1)
		c.Put("b", 2)
		_, ok := c.Get("a")
		require.True(t, ok)
		c.Put("c", 3)

		_, ok = c.Get("b")
		assert.False(t, ok)
		assert.Equal(t, []string{"b"}, evicted)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("put updates in place", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[string, int](2)
		c.Put("a", 1)
		c.Put("a", 5)
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 5, v)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("capacity is at least one", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[string, int](0)
		c.Put("a", 1)
		c.Put("b", 2)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("remove and clear", func(t *testing.T) {
		t.Parallel()
		var evicted int
		c := cache.NewLRU(4, cache.WithEvictCallback(func(string, int) { evicted++ }))
		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)

		assert.True(t, c.Remove("a"))
		assert.False(t, c.Remove("a"))
		c.Clear()
		assert.Zero(t, c.Len())
		assert.Equal(t, 3, evicted)
	})
}

func TestLRU_GetOrLoad(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](4)
	calls := 0
	load := func(k string) (int, error) {
		calls++
		if k == "bad" {
			return 0, errors.New("undecodable")
		}
		return len(k), nil
	}

	v, err := c.GetOrLoad("abc", load)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	v, err = c.GetOrLoad("abc", load)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, calls)

	_, err = c.GetOrLoad("bad", load)
	assert.Error(t, err)
	_, ok := c.Get("bad")
	assert.False(t, ok)
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[int, int](16)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				c.Put(g*100+i, i)
				c.Get(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, c.Len())
}
