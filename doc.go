// Package clientsync keeps a shop client's session, cart, wishlist and
// realtime notifications consistent with the server.
//
// A Client owns one session manager and binds every other component to it:
// API calls carry the session's bearer token and refresh it through the
// renewal endpoint, the cart and wishlist caches key their state by the
// signed-in user and are cleared when the session ends, and the
// notification channel is connected only while a user is signed in.
//
// Basic usage:
//
//	cfg, err := clientsync.LoadConfig()
//	if err != nil {
//		return err
//	}
//	client, err := clientsync.New(ctx, cfg, clientsync.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if err := client.Start(ctx); err != nil {
//		return err
//	}
//	if err := client.Session().Login(ctx, token); err != nil {
//		return err
//	}
//	outcome, err := client.Cart().Add(ctx, collection.Item{ProductRef: "sku-1", Quantity: 1}).Await(ctx)
//
// Each component can also be used on its own from the pkg/ directory.
package clientsync
