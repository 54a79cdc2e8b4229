package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clientsync/pkg/broadcast"
	"github.com/dmitrymomot/clientsync/pkg/kvstore"
	"github.com/dmitrymomot/clientsync/pkg/logger"
	"github.com/dmitrymomot/clientsync/pkg/session"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRefresher struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
	gate  chan struct{}
}

func (r *fakeRefresher) respond(token string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token, r.err = token, err
}

func (r *fakeRefresher) hold() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	return r.gate
}

func (r *fakeRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRefresher) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	r.calls++
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token, r.err
}

func token(t *testing.T, sub, role string, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwtlib.MapClaims{
		"sub": sub,
		"iat": iat.Unix(),
		"exp": iat.Add(ttl).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("server-only-secret"))
	require.NoError(t, err)
	return signed
}

func noExpiryToken(t *testing.T, sub string) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": sub}).SignedString([]byte("server-only-secret"))
	require.NoError(t, err)
	return signed
}

type fixture struct {
	mgr       *session.Manager
	clock     *fakeClock
	store     *kvstore.MemoryStore
	refresher *fakeRefresher
	changes   broadcast.Subscriber[session.StateChange]
}

func setup(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:     &fakeClock{now: t0},
		store:     kvstore.NewMemoryStore(),
		refresher: &fakeRefresher{},
	}
	base := []session.Option{
		session.WithClock(f.clock),
		session.WithStore(f.store),
		session.WithRefresher(f.refresher),
		session.WithLogger(logger.Discard()),
		// keep the background check out of the way; tests call Check
		session.WithCheckInterval(time.Hour),
	}
	f.mgr = session.New(append(base, opts...)...)
	f.changes = f.mgr.Subscribe(context.Background())
	t.Cleanup(func() { _ = f.mgr.Close() })
	return f
}

// drain returns the state changes published so far.
func (f *fixture) drain() []session.StateChange {
	var out []session.StateChange
	for {
		select {
		case msg, ok := <-f.changes.Receive(context.Background()):
			if !ok {
				return out
			}
			out = append(out, msg.Data)
		default:
			return out
		}
	}
}

func (f *fixture) stored(t *testing.T, key string) string {
	t.Helper()
	v, err := kvstore.Lookup(context.Background(), f.store, key)
	require.NoError(t, err)
	return v
}

func transitions(changes []session.StateChange) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, string(c.From)+"->"+string(c.To))
	}
	return out
}
