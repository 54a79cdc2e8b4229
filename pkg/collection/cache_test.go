package collection_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clientsync/pkg/apierr"
	"github.com/dmitrymomot/clientsync/pkg/collection"
	"github.com/dmitrymomot/clientsync/pkg/logger"
)

func quietConfig() collection.Config {
	cfg := collection.DefaultConfig()
	cfg.RevalidateAfterMutation = false
	return cfg
}

func newCart(t *testing.T, remote collection.Remote[collection.Item], session collection.Session) *collection.Cache[collection.Item] {
	t.Helper()
	cart, err := collection.NewCart(remote, session,
		collection.WithConfig(quietConfig()),
		collection.WithLogger(logger.Discard()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cart.Close() })
	return cart
}

func refs(items []collection.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductRef)
	}
	return out
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := collection.NewCart(nil, newFakeSession("u1"))
	assert.ErrorIs(t, err, collection.ErrNilDependency)

	_, err = collection.NewWishlist(newFakeRemote(), nil)
	assert.ErrorIs(t, err, collection.ErrNilDependency)
}

func TestCache_Add(t *testing.T) {
	t.Parallel()

	t.Run("cart merges quantity per variant", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		cart := newCart(t, remote, newFakeSession("u1"))

		_, err := cart.Add(ctx, collection.Item{ProductRef: "sku-1", Quantity: 2}).Await(ctx)
		require.NoError(t, err)
		outcome, err := cart.Add(ctx, collection.Item{ProductRef: "sku-1", Quantity: 3}).Await(ctx)
		require.NoError(t, err)

		assert.Equal(t, collection.StatusOK, outcome.Status)
		require.Len(t, outcome.Snapshot.Items, 1)
		assert.Equal(t, 5, outcome.Snapshot.Items[0].Quantity)
		assert.Equal(t, "item-1", outcome.Snapshot.Items[0].ID)

		_, err = cart.Add(ctx, collection.Item{ProductRef: "sku-1", Variant: "red"}).Await(ctx)
		require.NoError(t, err)
		assert.Len(t, cart.Snapshot().Items, 2)
	})

	t.Run("view changes before the server responds", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		cart := newCart(t, remote, newFakeSession("u1"))
		gate := remote.hold()

		p := cart.Add(ctx, collection.Item{ProductRef: "sku-1"})
		snap := cart.Snapshot()
		assert.Equal(t, []string{"sku-1"}, refs(snap.Items))
		assert.Equal(t, 1, snap.Items[0].Quantity)
		assert.Equal(t, 1, snap.Pending)

		select {
		case <-p.Done():
			t.Fatal("mutation resolved before the server responded")
		default:
		}

		close(gate)
		outcome, err := p.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, outcome.Snapshot.Pending)
		assert.Equal(t, "item-1", outcome.Snapshot.Items[0].ID)
	})

	t.Run("wishlist add of existing product is a no-op", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		wishlist, err := collection.NewWishlist(remote, newFakeSession("u1"),
			collection.WithConfig(quietConfig()),
			collection.WithLogger(logger.Discard()),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = wishlist.Close() })

		_, err = wishlist.Add(ctx, collection.Item{ProductRef: "sku-1"}).Await(ctx)
		require.NoError(t, err)
		outcome, err := wishlist.Add(ctx, collection.Item{ProductRef: "sku-1", Quantity: 4}).Await(ctx)
		require.NoError(t, err)

		assert.Equal(t, collection.StatusOK, outcome.Status)
		assert.Len(t, outcome.Snapshot.Items, 1)
		assert.Equal(t, 1, remote.count("add"))
	})
}

func TestCache_Rollback(t *testing.T) {
	t.Parallel()

	t.Run("failure restores the confirmed state exactly", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		remote.seed("u1", collection.Item{ID: "item-9", ProductRef: "sku-9", Quantity: 2, Price: 1500})
		cart := newCart(t, remote, newFakeSession("u1"))
		require.NoError(t, cart.Revalidate(ctx))
		before := cart.Snapshot()

		remote.failNext("add", apierr.New(apierr.ErrServer, 500, "out of stock"))
		outcome, err := cart.Add(ctx, collection.Item{ProductRef: "sku-1"}).Await(ctx)

		require.ErrorIs(t, err, apierr.ErrServer)
		assert.Equal(t, collection.StatusRolledBack, outcome.Status)
		assert.Equal(t, "out of stock", outcome.Reason)
		assert.Equal(t, before.Items, cart.Snapshot().Items)
		assert.Equal(t, "out of stock", cart.Snapshot().LastError)
	})

	t.Run("queued mutations survive a failure", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		cart := newCart(t, remote, newFakeSession("u1"))
		gate := remote.hold()
		remote.failNext("add", apierr.FromTransport(context.DeadlineExceeded))

		first := cart.Add(ctx, collection.Item{ProductRef: "sku-1"})
		second := cart.Add(ctx, collection.Item{ProductRef: "sku-2"})
		assert.Equal(t, []string{"sku-1", "sku-2"}, refs(cart.Snapshot().Items))
		close(gate)

		outcome, err := first.Await(ctx)
		require.ErrorIs(t, err, apierr.ErrNetwork)
		assert.Equal(t, collection.StatusRolledBack, outcome.Status)
		assert.Equal(t, []string{"sku-2"}, refs(outcome.Snapshot.Items))

		outcome, err = second.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"sku-2"}, refs(outcome.Snapshot.Items))
	})
}

func TestCache_SequentialMutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := newFakeRemote()
	cart := newCart(t, remote, newFakeSession("u1"))
	gate := remote.hold()

	added := cart.Add(ctx, collection.Item{ProductRef: "sku-1"})
	removed := cart.Remove(ctx, "sku-1")
	assert.Empty(t, cart.Snapshot().Items)
	close(gate)

	_, err := added.Await(ctx)
	require.NoError(t, err)
	outcome, err := removed.Await(ctx)
	require.NoError(t, err)

	assert.Empty(t, outcome.Snapshot.Items)
	assert.Empty(t, remote.stored("u1"))
	assert.Equal(t, 1, remote.count("add"))
	assert.Equal(t, 1, remote.count("remove"))
}

func TestCache_UpdateQuantity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := newFakeRemote()
	cart := newCart(t, remote, newFakeSession("u1"))

	_, err := cart.Add(ctx, collection.Item{ProductRef: "sku-1"}).Await(ctx)
	require.NoError(t, err)

	outcome, err := cart.UpdateQuantity(ctx, "item-1", 4).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, outcome.Snapshot.Items[0].Quantity)

	outcome, err = cart.UpdateQuantity(ctx, "sku-1", 0).Await(ctx)
	require.NoError(t, err)
	assert.Empty(t, outcome.Snapshot.Items)
	assert.Equal(t, 1, remote.count("remove"))
	assert.Equal(t, 1, remote.count("update"))
}

func TestCache_Variants(t *testing.T) {
	t.Parallel()

	addBoth := func(t *testing.T, cart *collection.Cache[collection.Item]) {
		t.Helper()
		ctx := context.Background()
		for _, size := range []string{"S", "M"} {
			_, err := cart.Add(ctx, collection.Item{ProductRef: "shirt", Variant: size, Quantity: 1}).Await(ctx)
			require.NoError(t, err)
		}
		require.Len(t, cart.Snapshot().Items, 2)
	}

	t.Run("removing one variant keeps the other", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		cart := newCart(t, remote, newFakeSession("u1"))
		addBoth(t, cart)

		outcome, err := cart.Remove(ctx, "shirt#S").Await(ctx)
		require.NoError(t, err)
		require.Len(t, outcome.Snapshot.Items, 1)
		assert.Equal(t, "M", outcome.Snapshot.Items[0].Variant)

		stored := remote.stored("u1")
		require.Len(t, stored, 1)
		assert.Equal(t, "M", stored[0].Variant)
		assert.Equal(t, 1, remote.count("remove"))
	})

	t.Run("updating one variant leaves the other untouched", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		cart := newCart(t, remote, newFakeSession("u1"))
		addBoth(t, cart)

		_, err := cart.UpdateQuantity(ctx, "shirt#M", 5).Await(ctx)
		require.NoError(t, err)

		quantities := map[string]int{}
		for _, it := range remote.stored("u1") {
			quantities[it.Variant] = it.Quantity
		}
		assert.Equal(t, map[string]int{"S": 1, "M": 5}, quantities)

		_, err = cart.UpdateQuantity(ctx, "shirt#M", 0).Await(ctx)
		require.NoError(t, err)
		require.Len(t, cart.Snapshot().Items, 1)
		assert.Equal(t, "S", cart.Snapshot().Items[0].Variant)
	})
}

func TestCache_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := newFakeRemote()
	remote.seed("u1", collection.Item{ID: "item-1", ProductRef: "sku-1", Quantity: 1})
	cart := newCart(t, remote, newFakeSession("u1"))
	require.NoError(t, cart.Revalidate(ctx))
	before := cart.Snapshot()

	tests := []struct {
		name string
		op   collection.Op[collection.Item]
	}{
		{"negative quantity", collection.AddItem(collection.Item{ProductRef: "sku-2", Quantity: -1})},
		{"empty product reference", collection.AddItem(collection.Item{Quantity: 1})},
		{"unknown item on update", collection.SetQuantity[collection.Item]("item-404", 2)},
		{"unknown item on remove", collection.RemoveItem[collection.Item]("item-404")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := cart.Apply(ctx, tt.op)
			require.ErrorIs(t, err, collection.ErrValidation)
			assert.Equal(t, collection.StatusRejected, outcome.Status)
			assert.NotEmpty(t, outcome.Reason)
		})
	}

	assert.Equal(t, before, cart.Snapshot())
	assert.Zero(t, remote.count("add"))
	assert.Zero(t, remote.count("update"))
	assert.Zero(t, remote.count("remove"))
}

func TestCache_NotFoundDropsItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := newFakeRemote()
	remote.seed("u1", collection.Item{ID: "item-1", ProductRef: "sku-1", Quantity: 1})
	cart := newCart(t, remote, newFakeSession("u1"))
	require.NoError(t, cart.Revalidate(ctx))

	remote.seed("u1")
	outcome, err := cart.UpdateQuantity(ctx, "item-1", 3).Await(ctx)

	require.ErrorIs(t, err, apierr.ErrNotFound)
	assert.Equal(t, collection.StatusDropped, outcome.Status)
	assert.Empty(t, outcome.Snapshot.Items)
}

func TestCache_UnauthorizedInvalidatesSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := newFakeRemote()
	session := newFakeSession("u1")
	cart := newCart(t, remote, session)

	remote.failNext("add", apierr.New(apierr.ErrUnauthorized, 401, "session expired"))
	outcome, err := cart.Add(ctx, collection.Item{ProductRef: "sku-1"}).Await(ctx)

	require.ErrorIs(t, err, apierr.ErrUnauthorized)
	assert.Equal(t, collection.StatusRolledBack, outcome.Status)
	assert.Empty(t, outcome.Snapshot.Items)
	assert.Eventually(t, func() bool { return session.invalidations() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, remote.count("add"))

	_, err = cart.Add(ctx, collection.Item{ProductRef: "sku-1"}).Await(ctx)
	assert.ErrorIs(t, err, collection.ErrUnauthenticated)
}

func TestCache_OwnerChange(t *testing.T) {
	t.Parallel()

	t.Run("in-flight result is discarded", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		session := newFakeSession("u1")
		cart := newCart(t, remote, session)
		gate := remote.hold()

		p := cart.Add(ctx, collection.Item{ProductRef: "sku-1"})
		session.login("u2")
		close(gate)

		outcome, err := p.Await(ctx)
		require.ErrorIs(t, err, collection.ErrOwnerChanged)
		assert.Equal(t, collection.StatusDiscarded, outcome.Status)
		assert.Equal(t, "u2", outcome.Snapshot.Owner)
		assert.Empty(t, outcome.Snapshot.Items)
	})

	t.Run("queued mutations are dropped on logout", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		session := newFakeSession("u1")
		cart := newCart(t, remote, session)
		gate := remote.hold()

		first := cart.Add(ctx, collection.Item{ProductRef: "sku-1"})
		second := cart.Add(ctx, collection.Item{ProductRef: "sku-2"})
		require.Eventually(t, func() bool { return remote.count("add") == 1 }, time.Second, 5*time.Millisecond)
		session.logout()
		cart.Reset()
		close(gate)

		_, err := second.Await(ctx)
		assert.ErrorIs(t, err, collection.ErrOwnerChanged)
		_, err = first.Await(ctx)
		assert.ErrorIs(t, err, collection.ErrOwnerChanged)
		assert.Empty(t, cart.Snapshot().Items)
		assert.Equal(t, 1, remote.count("add"))
	})

	t.Run("no owner", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		session := newFakeSession("u1")
		session.logout()
		cart := newCart(t, newFakeRemote(), session)

		outcome, err := cart.Add(ctx, collection.Item{ProductRef: "sku-1"}).Await(ctx)
		require.ErrorIs(t, err, collection.ErrUnauthenticated)
		assert.Equal(t, collection.StatusRejected, outcome.Status)
		assert.ErrorIs(t, cart.Revalidate(ctx), collection.ErrUnauthenticated)
	})
}

func TestCache_Revalidate(t *testing.T) {
	t.Parallel()

	t.Run("new subscriber triggers a fetch", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		remote := newFakeRemote()
		remote.seed("u1", collection.Item{ID: "item-1", ProductRef: "sku-1", Quantity: 1})
		cart := newCart(t, remote, newFakeSession("u1"))

		sub := cart.Subscribe(ctx)
		for {
			select {
			case msg, ok := <-sub.Receive(ctx):
				require.True(t, ok)
				if !msg.Data.Stale {
					assert.Equal(t, []string{"sku-1"}, refs(msg.Data.Items))
					return
				}
			case <-ctx.Done():
				t.Fatal("no confirmed snapshot received")
			}
		}
	})

	t.Run("concurrent calls share one fetch", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		cart := newCart(t, remote, newFakeSession("u1"))
		gate := remote.hold()

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = cart.Revalidate(ctx)
			}()
		}
		require.Eventually(t, func() bool { return remote.count("list") == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		close(gate)
		wg.Wait()

		assert.Equal(t, 1, remote.count("list"))
		assert.False(t, cart.Snapshot().Stale)
	})

	t.Run("fetch does not overwrite a pending mutation", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		remote := newFakeRemote()
		cart := newCart(t, remote, newFakeSession("u1"))
		gate := remote.hold()

		fetched := make(chan error, 1)
		go func() { fetched <- cart.Revalidate(ctx) }()
		require.Eventually(t, func() bool { return remote.count("list") == 1 }, time.Second, 5*time.Millisecond)

		p := cart.Add(ctx, collection.Item{ProductRef: "sku-1"})
		close(gate)
		require.NoError(t, <-fetched)
		_, err := p.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"sku-1"}, refs(cart.Snapshot().Items))
	})
}

func TestCache_Close(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cart, err := collection.NewCart(newFakeRemote(), newFakeSession("u1"), collection.WithLogger(logger.Discard()))
	require.NoError(t, err)

	require.NoError(t, cart.Close())
	require.NoError(t, cart.Close())

	_, err = cart.Add(ctx, collection.Item{ProductRef: "sku-1"}).Await(ctx)
	assert.ErrorIs(t, err, collection.ErrClosed)
}

func TestTotals(t *testing.T) {
	t.Parallel()
	count, subtotal := collection.Totals([]collection.Item{
		{ProductRef: "a", Quantity: 2, Price: 250},
		{ProductRef: "b", Quantity: 1, Price: 1000},
	})
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(1500), subtotal)

	assert.Equal(t, "a#red", collection.CartKey(collection.Item{ProductRef: "a", Variant: "red"}))
	assert.Equal(t, "a", collection.WishlistKey(collection.Item{ProductRef: "a", Variant: "red"}))
}
