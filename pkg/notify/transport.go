package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/clientsync/pkg/logger"
)

// Conn is a live connection to the notification service.
type Conn interface {
	// Emit sends a client event.
	Emit(ctx context.Context, kind string, data any) error

	// Receive delivers server events in arrival order. The channel is
	// closed when the connection ends.
	Receive() <-chan Event

	// Done is closed when the connection ends.
	Done() <-chan struct{}

	// Close terminates the connection. It is idempotent.
	Close() error
}

// Transport opens connections.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// TokenSource supplies the bearer credential sent on the handshake.
type TokenSource interface {
	Token() string
}

// WebsocketTransport connects over a websocket exchanging JSON frames of
// the form {"event": kind, "data": payload, "to": userID}.
type WebsocketTransport struct {
	cfg    Config
	dialer *websocket.Dialer
	tokens TokenSource
	logger *slog.Logger
}

// TransportOption configures a WebsocketTransport.
type TransportOption func(*WebsocketTransport)

func WithDialer(d *websocket.Dialer) TransportOption {
	return func(t *WebsocketTransport) {
		if d != nil {
			t.dialer = d
		}
	}
}

func WithTokenSource(ts TokenSource) TransportOption {
	return func(t *WebsocketTransport) {
		t.tokens = ts
	}
}

func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *WebsocketTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewWebsocketTransport creates a websocket transport for cfg.URL.
func NewWebsocketTransport(cfg Config, opts ...TransportOption) *WebsocketTransport {
	cfg = cfg.withDefaults()
	t := &WebsocketTransport{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.dialer == nil {
		t.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	t.logger = t.logger.With(logger.Component("notify.transport"))
	return t
}

// Connect dials the service.
func (t *WebsocketTransport) Connect(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if t.tokens != nil {
		if token := t.tokens.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	ws, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("notify: dial %s: %w", t.cfg.URL, err)
	}

	c := &wsConn{
		ws:     ws,
		cfg:    t.cfg,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		logger: t.logger,
	}
	ws.SetReadLimit(t.cfg.ReadLimit)
	if t.cfg.PingInterval > 0 {
		ws.SetReadDeadline(time.Now().Add(2 * t.cfg.PingInterval))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(2 * t.cfg.PingInterval))
		})
		go c.pingLoop()
	}
	go c.readLoop()
	return c, nil
}

type wsConn struct {
	ws     *websocket.Conn
	cfg    Config
	events chan Event
	done   chan struct{}
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) Receive() <-chan Event  { return c.events }
func (c *wsConn) Done() <-chan struct{} { return c.done }

func (c *wsConn) Emit(ctx context.Context, kind string, data any) error {
	if kind == "" {
		return ErrEmptyKind
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	f := frame{Event: kind}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("notify: encode %s: %w", kind, err)
		}
		f.Data = raw
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteJSON(f); err != nil {
		c.Close()
		return fmt.Errorf("notify: emit %s: %w", kind, err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) readLoop() {
	defer close(c.events)
	defer c.Close()

	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.logger.Warn("malformed frame", logger.Error(err))
				continue
			}
			select {
			case <-c.done:
			default:
				c.logger.LogAttrs(context.Background(), slog.LevelDebug, "connection lost", logger.Error(err))
			}
			return
		}
		if f.Event == "" {
			continue
		}

		ev := Event{Kind: f.Event, Payload: f.Data, TargetUserID: f.To}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			if err != nil {
				c.Close()
				return
			}
		}
	}
}
