package clientsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/clientsync/pkg/broadcast"
	"github.com/dmitrymomot/clientsync/pkg/collection"
	"github.com/dmitrymomot/clientsync/pkg/jwt"
	"github.com/dmitrymomot/clientsync/pkg/kvstore"
	"github.com/dmitrymomot/clientsync/pkg/logger"
	"github.com/dmitrymomot/clientsync/pkg/notify"
	"github.com/dmitrymomot/clientsync/pkg/remote"
	"github.com/dmitrymomot/clientsync/pkg/requestid"
	"github.com/dmitrymomot/clientsync/pkg/session"
)

var ErrClosed = errors.New("clientsync: client is closed")

// Client wires the session manager, the cart and wishlist caches and the
// notification channel around one shared session.
type Client struct {
	cfg    Config
	logger *slog.Logger

	redis    *redis.Client
	api      *remote.Client
	session  *session.Manager
	cart     *collection.Cache[collection.Item]
	wishlist *collection.Cache[collection.Item]
	channel  *notify.Channel

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds every component. When cfg.Redis.ConnectionURL is set and no
// store is given, the session is persisted in Redis.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewFromConfig(cfg.Log,
			logger.WithContextExtractors(requestid.LoggerExtractor()))
	}

	c := &Client{cfg: cfg, logger: o.logger.With(logger.Component("clientsync"))}

	store := o.store
	if store == nil {
		if cfg.Redis.ConnectionURL != "" {
			rdb, err := kvstore.ConnectRedis(ctx, cfg.Redis)
			if err != nil {
				return nil, err
			}
			c.redis = rdb
			store = kvstore.NewRedisStore(rdb, kvstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
		} else {
			store = kvstore.NewMemoryStore()
		}
	}

	// The API client reads the bearer token from the session manager, which
	// is created below and uses the API client to refresh.
	var mgr *session.Manager
	apiOpts := []remote.Option{
		remote.WithLogger(o.logger),
		remote.WithTokenSource(remote.TokenFunc(func() string { return mgr.Token() })),
	}
	if o.httpClient != nil {
		apiOpts = append(apiOpts, remote.WithHTTPClient(o.httpClient))
	}
	api, err := remote.New(cfg.API, apiOpts...)
	if err != nil {
		c.closeRedis()
		return nil, err
	}
	c.api = api

	sessOpts := []session.Option{
		session.WithStore(store),
		session.WithInspector(jwt.NewInspector(64)),
		session.WithRefresher(remote.NewSessionRefresher(api)),
		session.WithLogger(o.logger),
	}
	if o.clock != nil {
		sessOpts = append(sessOpts, session.WithClock(o.clock))
	}
	mgr = session.NewFromConfig(cfg.Session, sessOpts...)
	c.session = mgr

	apiCfg := api.Config()
	c.cart, err = collection.NewCart(remote.NewItemAPI(api, apiCfg.CartPath), mgr,
		collection.WithConfig(cfg.Cart), collection.WithLogger(o.logger))
	if err != nil {
		return nil, errors.Join(err, c.Close())
	}
	c.wishlist, err = collection.NewWishlist(remote.NewItemAPI(api, apiCfg.WishlistPath), mgr,
		collection.WithConfig(cfg.Wishlist), collection.WithLogger(o.logger))
	if err != nil {
		return nil, errors.Join(err, c.Close())
	}

	if cfg.NotificationsEnabled {
		transport := o.transport
		if transport == nil {
			transport = notify.NewWebsocketTransport(cfg.Notify,
				notify.WithTokenSource(mgr),
				notify.WithTransportLogger(o.logger),
			)
		}
		c.channel, err = notify.New(transport, mgr,
			notify.WithConfig(cfg.Notify), notify.WithLogger(o.logger))
		if err != nil {
			return nil, errors.Join(err, c.Close())
		}
	}

	return c, nil
}

// Start restores the stored session and begins following it.
func (c *Client) Start(ctx context.Context) error {
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

	if err := c.session.Start(ctx); err != nil {
		return fmt.Errorf("clientsync: restore session: %w", err)
	}
	if c.channel != nil {
		if err := c.channel.Start(runCtx); err != nil {
			return err
		}
	}
	return nil
}

// follow clears the collection views when the session ends.
func (c *Client) follow(ctx context.Context, sub broadcast.Subscriber[session.StateChange]) {
	defer c.wg.Done()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Receive(ctx):
			if !ok {
				return
			}
			if msg.Data.To != session.Anonymous {
				continue
			}
			c.logger.LogAttrs(ctx, slog.LevelDebug, "session ended, clearing collections",
				slog.String("reason", string(msg.Data.Reason)))
			c.cart.Reset()
			c.wishlist.Reset()
		}
	}
}

func (c *Client) Session() *session.Manager { return c.session }

func (c *Client) Cart() *collection.Cache[collection.Item] { return c.cart }

func (c *Client) Wishlist() *collection.Cache[collection.Item] { return c.wishlist }

// Notifications returns the realtime channel, or nil when disabled.
func (c *Client) Notifications() *notify.Channel { return c.channel }

// API returns the request layer shared by all components.
func (c *Client) API() *remote.Client { return c.api }

// Close stops every component. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()

	var errs []error
	if c.channel != nil {
		errs = append(errs, c.channel.Close())
	}
	if c.cart != nil {
		errs = append(errs, c.cart.Close())
	}
	if c.wishlist != nil {
		errs = append(errs, c.wishlist.Close())
	}
	if c.session != nil {
		errs = append(errs, c.session.Close())
	}
	errs = append(errs, c.closeRedis())
	return errors.Join(errs...)
}

func (c *Client) closeRedis() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
