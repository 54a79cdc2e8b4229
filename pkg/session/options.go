package session

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/clientsync/pkg/kvstore"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfig sets custom configuration
func WithConfig(config Config) Option {
	return func(m *Manager) {
		m.config = config
	}
}

// WithStore sets the durable store for the credential and identity
func WithStore(store kvstore.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithInspector sets the token inspector
func WithInspector(inspector Inspector) Option {
	return func(m *Manager) {
		m.inspector = inspector
	}
}

// WithRefresher sets the credential refresher
func WithRefresher(refresher Refresher) Option {
	return func(m *Manager) {
		m.refresher = refresher
	}
}

// WithClock replaces the wall clock used for activity and expiry checks
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithInactivityTimeout sets the inactivity timeout
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.config.InactivityTimeout = d
	}
}

// WithRefreshInterval sets the refresh interval
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.config.RefreshInterval = d
	}
}

// WithCheckInterval sets how often the periodic check runs
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.config.CheckInterval = d
	}
}
