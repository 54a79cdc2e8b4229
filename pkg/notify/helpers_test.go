package notify_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clientsync/pkg/broadcast"
	"github.com/dmitrymomot/clientsync/pkg/logger"
	"github.com/dmitrymomot/clientsync/pkg/notify"
	"github.com/dmitrymomot/clientsync/pkg/notify/notifytest"
	"github.com/dmitrymomot/clientsync/pkg/session"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type fakeSession struct {
	mu      sync.Mutex
	state   session.State
	user    string
	epoch   uint64
	changes *broadcast.MemoryBroadcaster[session.StateChange]
}

func newFakeSession(state session.State, user string) *fakeSession {
	return &fakeSession{
		state:   state,
		user:    user,
		changes: broadcast.NewMemoryBroadcaster[session.StateChange](broadcast.WithBufferSize(16)),
	}
}

func (f *fakeSession) set(state session.State, user string) {
	f.mu.Lock()
	from := f.state
	f.state, f.user = state, user
	f.epoch++
	f.mu.Unlock()
	_ = f.changes.Broadcast(context.Background(), session.StateChange{From: from, To: state})
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Owner() (string, uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := f.user != "" && (f.state == session.Authenticated || f.state == session.Refreshing)
	if !ok {
		return "", f.epoch, false
	}
	return f.user, f.epoch, true
}

func (f *fakeSession) Subscribe(ctx context.Context) broadcast.Subscriber[session.StateChange] {
	return f.changes.Subscribe(ctx)
}

func (f *fakeSession) Token() string {
	if _, _, ok := f.Owner(); !ok {
		return ""
	}
	return "tok-" + f.user
}

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.got)
}

type fixture struct {
	server  *notifytest.Server
	session *fakeSession
	ch      *notify.Channel
}

func setup(t *testing.T, state session.State, user string) *fixture {
	t.Helper()

	srv := notifytest.New(t)
	sess := newFakeSession(state, user)

	cfg := notify.DefaultConfig()
	cfg.URL = srv.WebsocketURL()
	cfg.PingInterval = 0
	cfg.ReconnectBase = 5 * time.Millisecond
	cfg.ReconnectMax = 20 * time.Millisecond

	transport := notify.NewWebsocketTransport(cfg,
		notify.WithTokenSource(sess),
		notify.WithTransportLogger(logger.Discard()),
	)
	ch, err := notify.New(transport, sess,
		notify.WithConfig(cfg),
		notify.WithLogger(logger.Discard()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	return &fixture{server: srv, session: sess, ch: ch}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ch.Start(context.Background()))
}

func (f *fixture) awaitJoined(t *testing.T, room string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.server.Joined(room) == 1 && f.ch.Connected()
	}, waitFor, tick)
}

func (f *fixture) notify(room, msg string) int {
	return f.server.Publish(room, "", notify.KindNotification,
		notify.Notification{Type: notify.TypeInfo, Message: msg})
}
