// Package collection keeps an optimistic, per-user mirror of a remote
// collection such as a shopping cart or a wishlist.
//
// A Cache holds two copies of the data: the last state confirmed by the
// server and the visible view, which is the confirmed state with queued
// mutations applied on top. Mutate validates an Op, applies it to the view
// right away and queues it. A single worker sends queued mutations to the
// server in order; each response replaces the confirmed state, and a failure
// restores it exactly before re-applying the mutations still queued.
//
// Failures are classified with package apierr:
//
//   - unauthorized: rolled back, the session is invalidated, never retried
//   - not found: the stale entry is dropped from the view and the collection
//     is fetched again
//   - validation, server, network: rolled back and reported in
//     Snapshot.LastError
//
// The cache is bound to the session's current owner. When the user logs out
// or another user logs in, queued mutations are discarded and responses that
// arrive for the previous owner are ignored.
//
// Basic usage:
//
//	cart, err := collection.NewCart(remote.NewItemAPI(client, "/cart"), sessionManager)
//	if err != nil {
//		return err
//	}
//	defer cart.Close()
//
//	outcome, err := cart.Add(ctx, collection.Item{ProductRef: "sku-1", Quantity: 2}).Await(ctx)
//
// Policy decides what an entry's identity is and how repeated adds combine;
// CartPolicy sums quantities per product variant while WishlistPolicy keeps
// one entry per product.
package collection
