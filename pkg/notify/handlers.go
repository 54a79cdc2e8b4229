package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// UnreadCounter counts notifications received since the last Reset.
type UnreadCounter struct {
	n atomic.Int64
}

// Handler returns a handler that increments the counter.
func (u *UnreadCounter) Handler() Handler {
	return func(context.Context, Event) error {
		u.n.Add(1)
		return nil
	}
}

func (u *UnreadCounter) Count() int64 { return u.n.Load() }

// Reset marks everything as read.
func (u *UnreadCounter) Reset() { u.n.Store(0) }

// Sound plays a cue per notification on its own goroutine. When the
// queue is full the cue is dropped so delivery never waits on playback.
type Sound struct {
	play    func(Notification)
	queue   chan Notification
	dropped atomic.Uint64
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSound starts a player with room for buffer pending cues.
func NewSound(play func(Notification), buffer int) *Sound {
	if buffer <= 0 {
		buffer = 8
	}
	s := &Sound{
		play:  play,
		queue: make(chan Notification, buffer),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// Handler returns a non-blocking notification handler.
func (s *Sound) Handler() Handler {
	return func(_ context.Context, ev Event) error {
		n, err := ev.Notification()
		if err != nil {
			return err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return nil
		}
		select {
		case s.queue <- n:
		default:
			s.dropped.Add(1)
		}
		return nil
	}
}

// Dropped returns how many cues were skipped.
func (s *Sound) Dropped() uint64 { return s.dropped.Load() }

// Close stops the player after the queued cues are played.
func (s *Sound) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Sound) loop() {
	defer close(s.done)
	for n := range s.queue {
		if s.play != nil {
			s.play(n)
		}
	}
}
