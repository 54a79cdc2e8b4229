// Package broadcast provides typed in-process fan-out.
//
// A MemoryBroadcaster delivers every broadcast value to all current
// subscribers through buffered channels. Broadcast never blocks: when a
// subscriber's buffer is full the configured Overflow policy decides whether
// the new value (DropNewest) or the oldest buffered value (DropOldest) is
// discarded. DropOldest suits state streams where only the latest value
// matters, such as session state changes or collection snapshots.
//
//	b := broadcast.NewMemoryBroadcaster[string](broadcast.WithOverflow(broadcast.DropOldest))
//	defer b.Close()
//
//	sub := b.Subscribe(ctx) // removed automatically when ctx is done
//	_ = b.Broadcast(ctx, "hello")
//	msg := <-sub.Receive(ctx)
package broadcast
