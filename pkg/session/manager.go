package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/clientsync/pkg/apierr"
	"github.com/dmitrymomot/clientsync/pkg/broadcast"
	"github.com/dmitrymomot/clientsync/pkg/jwt"
	"github.com/dmitrymomot/clientsync/pkg/kvstore"
	"github.com/dmitrymomot/clientsync/pkg/logger"
	"github.com/dmitrymomot/clientsync/pkg/statemachine"
)

// Refresher exchanges the out-of-band renewal credential for a new token
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Inspector decodes credentials without verifying them
type Inspector interface {
	Inspect(token string) (jwt.Claims, error)
	Forget(token string)
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Identity is the authenticated user as known to the client
type Identity struct {
	UserID string
	Role   string
	Name   string
	Email  string
}

// Session is a point-in-time view of the session
type Session struct {
	Token           string
	IsAuthenticated bool
	LastActiveAt    time.Time
	ExpiresAt       time.Time
	State           State
	Identity        Identity
}

// StateChange describes a committed transition.
type StateChange struct {
	From     State
	To       State
	Reason   Reason
	Message  string // user-facing failure message, if any
	Err      error
	Identity Identity // identity at the time of the change
	Redirect string   // set on every transition to Anonymous
}

// Manager owns the client's authentication state
type Manager struct {
	config    Config
	store     kvstore.Store
	inspector Inspector
	refresher Refresher
	clock     Clock
	logger    *slog.Logger

	fsm          *statemachine.Machine[State, event]
	changes      *broadcast.MemoryBroadcaster[StateChange]
	refreshGroup singleflight.Group

	mu             sync.Mutex
	token          string
	claims         jwt.Claims
	identity       Identity
	lastActive     time.Time
	lastPersisted  time.Time
	lastRefresh    time.Time
	epoch          uint64
	restorePending bool // renewing a stored credential that was never handed out
	started        bool
	closed         bool
	stopChecker    context.CancelFunc

	activityChan chan activityUpdate
	done         chan struct{}
	wg           sync.WaitGroup
}

// New creates a new session manager with the given options
func New(opts ...Option) *Manager {
	m := &Manager{
		config:       DefaultConfig(),
		activityChan: make(chan activityUpdate, 16),
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.config = m.config.withDefaults()
	if m.store == nil {
		m.store = kvstore.NewMemoryStore()
	}
	if m.inspector == nil {
		m.inspector = jwt.NewInspector(64)
	}
	if m.clock == nil {
		m.clock = ClockFunc(time.Now)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(logger.Component("session"))
	m.fsm = newMachine(m.logger)
	m.changes = broadcast.NewMemoryBroadcaster[StateChange](
		broadcast.WithBufferSize(32),
		broadcast.WithOverflow(broadcast.DropOldest),
	)

	m.wg.Add(1)
	go m.activityWorker()

	return m
}

// Start restores a durable session. A valid stored token is adopted, an
// expired one gets a single refresh attempt, and no token leaves the manager
// Anonymous.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true

	token, err := kvstore.Lookup(ctx, m.store, kvstore.KeyToken)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: restore token: %w", err)
	}
	if token == "" {
		m.mu.Unlock()
		return nil
	}

	claims, err := m.inspector.Inspect(token)
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "discarding invalid stored token", logger.Error(err))
		err = m.store.Remove(ctx, kvstore.IdentityKeys...)
		m.mu.Unlock()
		return err
	}

	now := m.clock.Now()
	m.token = token
	m.claims = claims
	m.identity = m.restoreIdentityLocked(ctx, claims)
	m.lastActive = now
	if v, _ := kvstore.Lookup(ctx, m.store, kvstore.KeyLastActive); v != "" {
		if at, ok := parseActivity(v); ok && at.Before(now) {
			m.lastActive = at
		}
	}
	m.lastPersisted = m.lastActive

	if claims.Expired(now) {
		m.mu.Unlock()
		if err := m.Refresh(ctx); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "stored session could not be renewed", logger.Error(err))
			var clearErr error
			m.mu.Lock()
			if m.fsm.Is(Anonymous) && m.token != "" {
				clearErr = m.clearLocked(ctx)
			}
			m.mu.Unlock()
			return clearErr
		}
		return nil
	}

	m.lastRefresh = now
	if !claims.IssuedAt.IsZero() && claims.IssuedAt.Before(now) {
		m.lastRefresh = claims.IssuedAt
	}
	if err := m.fsm.Fire(ctx, eventLogin, nil); err != nil {
		m.mu.Unlock()
		return err
	}
	m.epoch++
	m.startCheckerLocked()
	change := m.changeLocked(Anonymous, Authenticated, ReasonRestored, nil)
	m.mu.Unlock()

	m.publish(ctx, change)
	return m.Check(ctx)
}

// Login adopts token. It fails with ErrInvalidToken when the token cannot be
// decoded or has no expiry and with ErrTokenExpired when it is already
// expired; in both cases the state is left unchanged.
func (m *Manager) Login(ctx context.Context, token string) error {
	claims, err := m.inspector.Inspect(token)
	if err != nil {
		return err
	}
	now := m.clock.Now()
	if claims.Expired(now) {
		return ErrTokenExpired
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	identity := Identity{UserID: claims.Subject, Role: claims.Role}
	if err := m.persistLocked(ctx, token, identity, now); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: persist: %w", err)
	}

	from := m.fsm.Current()
	if err := m.fsm.Fire(ctx, eventLogin, nil); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.token != "" && m.token != token {
		m.inspector.Forget(m.token)
	}
	m.token = token
	m.claims = claims
	m.identity = identity
	m.restorePending = false
	m.lastActive, m.lastPersisted, m.lastRefresh = now, now, now
	m.epoch++
	m.startCheckerLocked()
	change := m.changeLocked(from, Authenticated, ReasonLogin, nil)
	m.mu.Unlock()

	m.publish(ctx, change)
	return nil
}

// Logout clears the durable identity and returns to Anonymous. It is
// idempotent; only a call that ends a session emits a state change.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	var changes []StateChange
	if from := m.fsm.Current(); from != Anonymous {
		if err := m.fsm.Fire(ctx, eventLogout, nil); err != nil {
			m.fsm.Reset()
		}
		changes = append(changes, m.changeLocked(from, Anonymous, ReasonLogout, nil))
	}
	err := m.clearLocked(ctx)
	m.mu.Unlock()

	m.publish(ctx, changes...)
	return err
}

// Refresh renews the credential. Concurrent calls share the in-flight
// request. A failure surfaces the server message and ends the session; a
// credential for a different user or role ends it as well.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.refresher == nil {
		m.mu.Unlock()
		return ErrNoRefresher
	}
	if m.token == "" {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}

	from := m.fsm.Current()
	if err := m.fsm.Fire(ctx, eventRefresh, restoring(from == Anonymous)); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: cannot refresh while %s: %w", from, err)
	}
	if from == Anonymous {
		m.epoch++
		m.restorePending = true
	}
	epoch := m.epoch
	prev := m.identity
	oldToken := m.token
	change := m.changeLocked(from, Refreshing, ReasonRefresh, nil)
	m.mu.Unlock()
	m.publish(ctx, change)

	start := m.clock.Now()
	callCtx, cancel := context.WithTimeout(ctx, m.config.RefreshTimeout)
	token, err := m.refresher.Refresh(callCtx)
	cancel()

	var claims jwt.Claims
	if err == nil {
		claims, err = m.inspector.Inspect(token)
	}
	if err == nil && claims.Expired(m.clock.Now()) {
		err = ErrTokenExpired
	}

	reason := ReasonRefreshFailed
	if err == nil {
		switch {
		case claims.Subject != "" && prev.UserID != "" && claims.Subject != prev.UserID:
			err, reason = ErrIdentityChanged, ReasonRoleChanged
		case claims.Role != prev.Role:
			err, reason = ErrRoleChanged, ReasonRoleChanged
		}
	}

	m.mu.Lock()
	if m.epoch != epoch || !m.fsm.Is(Refreshing) {
		m.mu.Unlock()
		m.logger.LogAttrs(ctx, slog.LevelInfo, "refresh result discarded", logger.Error(err))
		return ErrSessionChanged
	}

	if err != nil {
		changes := m.terminateLocked(ctx, reason, err)
		m.mu.Unlock()
		m.publish(ctx, changes...)
		m.logger.LogAttrs(ctx, slog.LevelWarn, "session refresh failed",
			logger.UserID(prev.UserID),
			slog.String("reason", string(reason)),
			logger.Error(err),
		)
		if errors.Is(err, ErrRoleChanged) || errors.Is(err, ErrIdentityChanged) {
			return err
		}
		return errors.Join(ErrRefreshFailed, err)
	}

	now := m.clock.Now()
	if err := m.store.Set(ctx, kvstore.KeyToken, token); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to persist refreshed token", logger.Error(err))
	}
	if claims.Subject == "" {
		claims.Subject = prev.UserID
	}
	m.inspector.Forget(oldToken)
	m.token = token
	m.claims = claims
	m.restorePending = false
	m.lastActive, m.lastPersisted, m.lastRefresh = now, now, now
	if err := m.fsm.Fire(ctx, eventRefreshed, nil); err != nil {
		m.mu.Unlock()
		return err
	}
	m.startCheckerLocked()
	change = m.changeLocked(Refreshing, Authenticated, ReasonRefreshed, nil)
	m.mu.Unlock()

	m.publish(ctx, change)
	m.logger.LogAttrs(ctx, slog.LevelDebug, "session refreshed",
		logger.UserID(prev.UserID),
		logger.Duration(now.Sub(start)),
	)
	return nil
}

// Check runs one periodic evaluation: an expired credential or an inactivity
// timeout ends the session, otherwise a credential older than the refresh
// interval is refreshed. It does nothing unless the state is Authenticated.
func (m *Manager) Check(ctx context.Context) error {
	now := m.clock.Now()

	m.mu.Lock()
	if m.closed || !m.fsm.Is(Authenticated) {
		m.mu.Unlock()
		return nil
	}

	var reason Reason
	switch {
	case m.claims.Expired(now):
		reason = ReasonTokenExpired
	case now.Sub(m.lastActive) > m.config.InactivityTimeout:
		reason = ReasonInactivity
	}
	if reason != "" {
		changes := m.terminateLocked(ctx, reason, nil)
		m.mu.Unlock()
		m.publish(ctx, changes...)
		return nil
	}

	due := now.Sub(m.lastRefresh) >= m.config.RefreshInterval
	active := !m.config.RefreshOnlyWhenActive || m.lastActive.After(m.lastRefresh)
	canRefresh := m.refresher != nil
	m.mu.Unlock()

	if due && active && canRefresh {
		return m.Refresh(ctx)
	}
	return nil
}

// Invalidate ends the session after the server rejected its credential.
// While a stored credential is being renewed no request carries it, so a
// rejection cannot be about it and is ignored.
func (m *Manager) Invalidate(ctx context.Context, cause error) {
	m.mu.Lock()
	if m.restorePending {
		m.mu.Unlock()
		m.logger.LogAttrs(ctx, slog.LevelDebug, "ignoring rejection during session restore", logger.Error(cause))
		return
	}
	changes := m.terminateLocked(ctx, ReasonUnauthorized, cause)
	m.mu.Unlock()

	if len(changes) > 0 {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "session invalidated", logger.Error(cause))
	}
	m.publish(ctx, changes...)
}

// SetProfile stores profile fields of the authenticated user.
func (m *Manager) SetProfile(ctx context.Context, name, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked() {
		return ErrNotAuthenticated
	}
	if err := m.store.Set(ctx, kvstore.KeyProfileName, name); err != nil {
		return err
	}
	if err := m.store.Set(ctx, kvstore.KeyProfileEmail, email); err != nil {
		return err
	}
	m.identity.Name, m.identity.Email = name, email
	return nil
}

// State returns the current state.
func (m *Manager) State() State {
	return m.fsm.Current()
}

// IsAuthenticated reports whether there is an unexpired credential.
func (m *Manager) IsAuthenticated() bool {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked() && !m.claims.Expired(now)
}

// Token returns the current bearer credential, or "" without a session.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked() {
		return ""
	}
	return m.token
}

// Identity returns the authenticated user, ok is false without a session.
func (m *Manager) Identity() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked() {
		return Identity{}, false
	}
	return m.identity, true
}

// Owner returns the user id and an epoch that changes whenever a session
// begins or ends.
func (m *Manager) Owner() (string, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked() || m.identity.UserID == "" {
		return "", m.epoch, false
	}
	return m.identity.UserID, m.epoch, true
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Session {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{State: m.fsm.Current()}
	if !m.activeLocked() {
		return s
	}
	s.Token = m.token
	s.IsAuthenticated = !m.claims.Expired(now)
	s.LastActiveAt = m.lastActive
	s.ExpiresAt = m.claims.ExpiresAt
	s.Identity = m.identity
	return s
}

// Subscribe streams state changes until ctx is done.
func (m *Manager) Subscribe(ctx context.Context) broadcast.Subscriber[StateChange] {
	return m.changes.Subscribe(ctx)
}

// Close stops the periodic check and the activity worker.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopCheckerLocked()
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
	return m.changes.Close()
}

// activeLocked reports whether the credential may be handed out. A stored
// credential under renewal is not: it is expired and its owner unconfirmed.
func (m *Manager) activeLocked() bool {
	return m.token != "" && !m.restorePending && m.fsm.Is(Authenticated, Refreshing)
}

// terminateLocked moves an active session through Expired to Anonymous and
// clears the durable identity.
func (m *Manager) terminateLocked(ctx context.Context, reason Reason, cause error) []StateChange {
	var changes []StateChange
	identity := m.identity
	switch from := m.fsm.Current(); from {
	case Authenticated, Refreshing:
		ev := eventExpire
		if from == Refreshing {
			ev = eventRefreshFailed
		}
		if err := m.fsm.Fire(ctx, ev, nil); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "unexpected transition failure", logger.Error(err))
		}
		changes = append(changes, m.changeLocked(from, Expired, reason, cause))
	case Expired:
	default:
		return nil
	}

	if err := m.clearLocked(ctx); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelError, "failed to clear session", logger.Error(err))
	}
	if err := m.fsm.Fire(ctx, eventClear, nil); err != nil {
		m.fsm.Reset()
	}
	final := m.changeLocked(Expired, Anonymous, reason, cause)
	final.Identity = identity
	return append(changes, final)
}

// clearLocked removes every durable identity key and forgets the session.
func (m *Manager) clearLocked(ctx context.Context) error {
	err := m.store.Remove(ctx, kvstore.IdentityKeys...)
	if m.token != "" {
		m.inspector.Forget(m.token)
		m.epoch++
	}
	m.token = ""
	m.restorePending = false
	m.claims = jwt.Claims{}
	m.identity = Identity{}
	m.lastActive, m.lastPersisted, m.lastRefresh = time.Time{}, time.Time{}, time.Time{}
	m.stopCheckerLocked()
	return err
}

func (m *Manager) persistLocked(ctx context.Context, token string, identity Identity, now time.Time) error {
	if err := m.store.Remove(ctx, kvstore.IdentityKeys...); err != nil {
		return err
	}
	values := []struct{ key, value string }{
		{kvstore.KeyToken, token},
		{kvstore.KeyUserID, identity.UserID},
		{kvstore.KeyRole, identity.Role},
		{kvstore.KeyLastActive, strconv.FormatInt(now.UnixMilli(), 10)},
	}
	for _, v := range values {
		if v.value == "" {
			continue
		}
		if err := m.store.Set(ctx, v.key, v.value); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) restoreIdentityLocked(ctx context.Context, claims jwt.Claims) Identity {
	lookup := func(key string) string {
		v, err := kvstore.Lookup(ctx, m.store, key)
		if err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to read stored identity", slog.String("key", key), logger.Error(err))
		}
		return v
	}
	id := Identity{
		UserID: claims.Subject,
		Role:   claims.Role,
		Name:   lookup(kvstore.KeyProfileName),
		Email:  lookup(kvstore.KeyProfileEmail),
	}
	if id.UserID == "" {
		id.UserID = lookup(kvstore.KeyUserID)
	}
	if id.Role == "" {
		id.Role = lookup(kvstore.KeyRole)
	}
	return id
}

func (m *Manager) changeLocked(from, to State, reason Reason, cause error) StateChange {
	c := StateChange{
		From:     from,
		To:       to,
		Reason:   reason,
		Err:      cause,
		Identity: m.identity,
	}
	if cause != nil {
		c.Message = apierr.Message(cause)
	}
	if to == Anonymous {
		c.Redirect = m.config.LoginPath
	}
	return c
}

func (m *Manager) publish(ctx context.Context, changes ...StateChange) {
	for _, c := range changes {
		_ = m.changes.Broadcast(ctx, c)
	}
}

func (m *Manager) startCheckerLocked() {
	if m.stopChecker != nil || m.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopChecker = cancel
	m.wg.Add(1)
	go m.runChecker(ctx)
}

func (m *Manager) stopCheckerLocked() {
	if m.stopChecker != nil {
		m.stopChecker()
		m.stopChecker = nil
	}
}

// runChecker evaluates the session every CheckInterval until cancelled.
func (m *Manager) runChecker(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Check(ctx); err != nil {
				m.logger.LogAttrs(ctx, slog.LevelDebug, "periodic check failed", logger.Error(err))
			}
		}
	}
}
