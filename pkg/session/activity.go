package session

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dmitrymomot/clientsync/pkg/kvstore"
	"github.com/dmitrymomot/clientsync/pkg/logger"
)

// Signal is a user interaction that counts as activity.
type Signal string

const (
	SignalPointerMove Signal = "pointermove"
	SignalKeyPress    Signal = "keypress"
	SignalTouch       Signal = "touch"
	SignalScroll      Signal = "scroll"
	SignalFocus       Signal = "focus"
	SignalResize      Signal = "resize"
)

// Valid reports whether s is a recognized activity signal.
func (s Signal) Valid() bool {
	switch s {
	case SignalPointerMove, SignalKeyPress, SignalTouch, SignalScroll, SignalFocus, SignalResize:
		return true
	}
	return false
}

// Touch records activity. Unknown signals and signals received without an
// active session are ignored.
func (m *Manager) Touch(sig Signal) {
	if !sig.Valid() {
		return
	}
	now := m.clock.Now()

	m.mu.Lock()
	if m.closed || !m.fsm.Is(Authenticated, Refreshing) {
		m.mu.Unlock()
		return
	}
	if now.After(m.lastActive) {
		m.lastActive = now
	}
	persist := now.Sub(m.lastPersisted) >= m.config.ActivityUpdateThreshold
	if persist {
		m.lastPersisted = now
	}
	epoch := m.epoch
	m.mu.Unlock()

	if persist {
		m.queueActivityUpdate(activityUpdate{at: now, epoch: epoch})
	}
}

// TrackActivity feeds signals into Touch until ctx is done or signals is closed.
func (m *Manager) TrackActivity(ctx context.Context, signals <-chan Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.Touch(sig)
		}
	}
}

// activityUpdate represents a recorded activity of one session
type activityUpdate struct {
	at    time.Time
	epoch uint64
}

// queueActivityUpdate queues an activity timestamp for persistence
func (m *Manager) queueActivityUpdate(update activityUpdate) {
	select {
	case m.activityChan <- update:
	default:
		// Channel full, drop update (prevents blocking hot paths)
	}
}

// activityWorker persists activity timestamps so a restart can apply the inactivity timeout
func (m *Manager) activityWorker() {
	defer m.wg.Done()
	for {
		select {
		case update := <-m.activityChan:
			m.persistActivity(update)
		case <-m.done:
			// Drain remaining updates for graceful shutdown
			for {
				select {
				case update := <-m.activityChan:
					m.persistActivity(update)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) persistActivity(update activityUpdate) {
	ctx := context.Background()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != update.epoch || m.token == "" {
		return
	}
	if err := m.store.Set(ctx, kvstore.KeyLastActive, strconv.FormatInt(update.at.UnixMilli(), 10)); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to persist activity", logger.Error(err))
	}
}

func parseActivity(v string) (time.Time, bool) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
