package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/clientsync/pkg/broadcast"
	"github.com/dmitrymomot/clientsync/pkg/logger"
	"github.com/dmitrymomot/clientsync/pkg/session"
)

// Handler reacts to a server event. Handlers for one connection run one
// at a time in arrival order, so they must not block.
type Handler func(ctx context.Context, ev Event) error

// HandlerID identifies a registration for Off.
type HandlerID string

// Session is the lifecycle source the channel follows.
type Session interface {
	State() session.State
	Owner() (userID string, epoch uint64, ok bool)
	Subscribe(ctx context.Context) broadcast.Subscriber[session.StateChange]
}

type registration struct {
	id HandlerID
	fn Handler
}

// Channel keeps one connection to the notification service open while a
// session is Authenticated or Refreshing and dispatches events to handlers.
type Channel struct {
	cfg       Config
	transport Transport
	session   Session
	logger    *slog.Logger

	hmu      sync.RWMutex
	handlers map[string][]registration

	mu         sync.Mutex
	started    bool
	closed     bool
	cancel     context.CancelFunc
	activeUser string
	stopConn   context.CancelFunc
	conn       Conn
	wg         sync.WaitGroup
}

// Option configures a Channel.
type Option func(*Channel)

func WithConfig(cfg Config) Option {
	return func(c *Channel) {
		c.cfg = cfg
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a channel. It does not connect until Start.
func New(transport Transport, sess Session, opts ...Option) (*Channel, error) {
	if transport == nil || sess == nil {
		return nil, ErrNilDependency
	}
	c := &Channel{
		cfg:       DefaultConfig(),
		transport: transport,
		session:   sess,
		logger:    slog.Default(),
		handlers:  make(map[string][]registration),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg = c.cfg.withDefaults()
	c.logger = c.logger.With(logger.Component("notify"))
	return c, nil
}

// On registers h for events of kind. Handlers run in registration order.
func (c *Channel) On(kind string, h Handler) (HandlerID, error) {
	if kind == "" {
		return "", ErrEmptyKind
	}
	if h == nil {
		return "", ErrNilHandler
	}
	id := HandlerID(uuid.NewString())

	c.hmu.Lock()
	c.handlers[kind] = append(c.handlers[kind], registration{id: id, fn: h})
	c.hmu.Unlock()
	return id, nil
}

// OnNotification registers a handler for decoded notification payloads.
func (c *Channel) OnNotification(fn func(ctx context.Context, n Notification) error) (HandlerID, error) {
	if fn == nil {
		return "", ErrNilHandler
	}
	return c.On(KindNotification, func(ctx context.Context, ev Event) error {
		n, err := ev.Notification()
		if err != nil {
			return err
		}
		return fn(ctx, n)
	})
}

// Off removes a registration. It reports whether one was found.
func (c *Channel) Off(kind string, id HandlerID) bool {
	c.hmu.Lock()
	defer c.hmu.Unlock()

	regs := c.handlers[kind]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		out := make([]registration, 0, len(regs)-1)
		out = append(out, regs[:i]...)
		out = append(out, regs[i+1:]...)
		if len(out) == 0 {
			delete(c.handlers, kind)
		} else {
			c.handlers[kind] = out
		}
		return true
	}
	return false
}

// Start begins following the session. It returns immediately; connecting
// happens in the background.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	sub := c.session.Subscribe(runCtx)
	c.wg.Add(1)
	go c.follow(runCtx, sub)
	c.mu.Unlock()

	c.reconcile(runCtx)
	return nil
}

// Connected reports whether a connection is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close disconnects and stops following the session.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.disconnectLocked()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Channel) follow(ctx context.Context, sub broadcast.Subscriber[session.StateChange]) {
	defer c.wg.Done()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Receive(ctx):
			if !ok {
				return
			}
			c.reconcile(ctx)
		}
	}
}

// reconcile brings the connection in line with the current session.
func (c *Channel) reconcile(ctx context.Context) {
	state := c.session.State()
	userID, _, ok := c.session.Owner()
	want := ok && (state == session.Authenticated || state == session.Refreshing)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || ctx.Err() != nil {
		return
	}
	if want && c.activeUser == userID {
		return
	}
	if c.activeUser != "" {
		c.logger.LogAttrs(ctx, slog.LevelInfo, "disconnecting",
			logger.UserID(c.activeUser), slog.String("state", string(state)))
	}
	c.disconnectLocked()
	if !want {
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	c.stopConn = cancel
	c.activeUser = userID
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.maintain(connCtx, userID)
	}()
}

func (c *Channel) disconnectLocked() {
	if c.stopConn != nil {
		c.stopConn()
		c.stopConn = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.activeUser = ""
}

func (c *Channel) backoff() retry.Backoff {
	b := retry.NewExponential(c.cfg.ReconnectBase)
	if c.cfg.ReconnectJitter > 0 {
		b = retry.WithJitterPercent(c.cfg.ReconnectJitter, b)
	}
	return retry.WithCappedDuration(c.cfg.ReconnectMax, b)
}

// maintain connects, joins the user's room and serves events, reconnecting
// with a fresh backoff whenever the connection drops.
func (c *Channel) maintain(ctx context.Context, userID string) {
	for ctx.Err() == nil {
		var conn Conn
		attempt := 0
		err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
			attempt++
			cn, err := c.connect(ctx, userID)
			if err != nil {
				c.logger.LogAttrs(ctx, slog.LevelWarn, "connect failed",
					logger.UserID(userID), logger.RetryCount(attempt), logger.Error(err))
				return retry.RetryableError(err)
			}
			conn = cn
			return nil
		})
		if err != nil || conn == nil {
			return
		}
		if !c.attach(ctx, conn) {
			return
		}

		c.logger.LogAttrs(ctx, slog.LevelInfo, "connected", logger.UserID(userID))
		c.serve(ctx, conn, userID)
		c.detach(conn)
	}
}

func (c *Channel) connect(ctx context.Context, userID string) (Conn, error) {
	conn, err := c.transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Emit(ctx, KindJoinRoom, joinRoom{RoomID: userID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: join room: %w", err)
	}
	return conn, nil
}

func (c *Channel) attach(ctx context.Context, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *Channel) detach(conn Conn) {
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// serve is the single delivery loop of one connection.
func (c *Channel) serve(ctx context.Context, conn Conn, userID string) {
	events := conn.Receive()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.TargetUserID != "" && ev.TargetUserID != userID {
				continue
			}
			c.dispatch(ctx, ev)
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, ev Event) {
	c.hmu.RLock()
	regs := c.handlers[ev.Kind]
	c.hmu.RUnlock()

	for _, r := range regs {
		if err := c.invoke(ctx, r.fn, ev); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "handler failed",
				logger.Kind(ev.Kind), slog.String("handler_id", string(r.id)), logger.Error(err))
		}
	}
}

func (c *Channel) invoke(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: handler panic: %v", r)
		}
	}()
	return h(ctx, ev)
}
