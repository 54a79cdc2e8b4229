package broadcast

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("broadcast: broadcaster is closed")

// Message wraps a broadcast value with its sequence number.
type Message[T any] struct {
	Seq  uint64
	Data T
}

// Subscriber receives messages from a Broadcaster.
type Subscriber[T any] interface {
	// ID uniquely identifies the subscription.
	ID() string

	// Receive returns the delivery channel. It is closed when the
	// subscription ends.
	Receive(ctx context.Context) <-chan Message[T]

	// Dropped returns how many messages were discarded on overflow.
	Dropped() uint64

	// Close ends the subscription. It is idempotent.
	Close() error
}

// Broadcaster sends values to all subscribers without blocking.
type Broadcaster[T any] interface {
	Subscribe(ctx context.Context) Subscriber[T]
	Broadcast(ctx context.Context, data T) error
	Close() error
}

// Overflow selects what is discarded when a subscriber buffer is full.
type Overflow int

const (
	// DropNewest discards the value being broadcast.
	DropNewest Overflow = iota
	// DropOldest discards the oldest buffered value to make room.
	DropOldest
)
