// Package notify keeps a realtime channel to the notification service
// while a session is signed in.
//
// A Channel follows the session: it connects when the session becomes
// Authenticated, stays connected through Refreshing, and disconnects on
// Anonymous or Expired. On every (re)connect it emits
//
//	{"event":"joinRoom","data":{"roomId":"<user id>"}}
//
// and reconnects with capped exponential backoff and jitter when the
// connection drops.
//
// Handlers are registered per event kind and run in registration order on
// a single delivery goroutine per connection. A panicking or failing
// handler is logged and does not affect the others.
//
//	ch, _ := notify.New(notify.NewWebsocketTransport(cfg, notify.WithTokenSource(mgr)), mgr)
//	var unread notify.UnreadCounter
//	ch.On(notify.KindNotification, unread.Handler())
//	ch.Start(ctx)
//	defer ch.Close()
package notify
