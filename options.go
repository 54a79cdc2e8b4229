package clientsync

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/clientsync/pkg/kvstore"
	"github.com/dmitrymomot/clientsync/pkg/notify"
	"github.com/dmitrymomot/clientsync/pkg/session"
)

type options struct {
	logger     *slog.Logger
	store      kvstore.Store
	httpClient *http.Client
	transport  notify.Transport
	clock      session.Clock
}

// Option configures a Client.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStore sets the durable session store. It takes precedence over the
// Redis configuration.
func WithStore(s kvstore.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithNotifyTransport replaces the websocket transport.
func WithNotifyTransport(t notify.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

func WithClock(c session.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}
