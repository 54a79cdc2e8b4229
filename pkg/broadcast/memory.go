package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Option configures a MemoryBroadcaster.
type Option func(*config)

type config struct {
	bufferSize int
	overflow   Overflow
}

// WithBufferSize sets the per-subscriber buffer. Minimum 1.
func WithBufferSize(size int) Option {
	return func(c *config) {
		c.bufferSize = max(size, 1)
	}
}

// WithOverflow sets the overflow policy.
func WithOverflow(policy Overflow) Option {
	return func(c *config) {
		c.overflow = policy
	}
}

// MemoryBroadcaster is an in-memory Broadcaster. All methods are safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	cfg         config
	mu          sync.RWMutex
	subscribers map[string]*subscriber[T]
	closed      bool
	seq         atomic.Uint64
	wg          sync.WaitGroup
}

// NewMemoryBroadcaster creates a broadcaster with a default buffer of 16.
func NewMemoryBroadcaster[T any](opts ...Option) *MemoryBroadcaster[T] {
	cfg := config{bufferSize: 16, overflow: DropNewest}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryBroadcaster[T]{
		cfg:         cfg,
		subscribers: make(map[string]*subscriber[T]),
	}
}

// Subscribe registers a subscriber that is removed when ctx is done.
// After Close it returns an already closed subscriber.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := &subscriber[T]{
		id:       uuid.NewString(),
		ch:       make(chan Message[T], b.cfg.bufferSize),
		overflow: b.cfg.overflow,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub.id] = sub
	sub.detach = func() { b.remove(sub.id) }

	if ctx.Done() != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done():
			}
		}()
	}

	return sub
}

// Broadcast delivers data to every subscriber.
func (b *MemoryBroadcaster[T]) Broadcast(ctx context.Context, data T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := Message[T]{Seq: b.seq.Add(1), Data: data}
	for _, sub := range b.subscribers {
		sub.send(msg)
	}
	return nil
}

// Subscribers returns the number of active subscribers.
func (b *MemoryBroadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscribers. Idempotent.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscriber[T], 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	clear(b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.wg.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

type subscriber[T any] struct {
	id       string
	ch       chan Message[T]
	overflow Overflow
	dropped  atomic.Uint64
	detach   func()

	mu       sync.Mutex
	closed   bool
	closedCh chan struct{}
	initOnce sync.Once
}

func (s *subscriber[T]) ID() string { return s.id }

func (s *subscriber[T]) Receive(ctx context.Context) <-chan Message[T] { return s.ch }

func (s *subscriber[T]) Dropped() uint64 { return s.dropped.Load() }

func (s *subscriber[T]) done() <-chan struct{} {
	s.initOnce.Do(func() { s.closedCh = make(chan struct{}) })
	return s.closedCh
}

func (s *subscriber[T]) Close() error {
	s.done()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	close(s.closedCh)
	detach := s.detach
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	return nil
}

func (s *subscriber[T]) send(msg Message[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- msg:
		return
	default:
	}

	if s.overflow == DropNewest {
		s.dropped.Add(1)
		return
	}

	// Make room by discarding the oldest buffered message. Only this method
	// sends, and it holds the lock, so the retry cannot fail unless a
	// receiver already freed the slot.
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}
