package clientsync

import (
	"github.com/dmitrymomot/clientsync/pkg/collection"
	"github.com/dmitrymomot/clientsync/pkg/config"
	"github.com/dmitrymomot/clientsync/pkg/kvstore"
	"github.com/dmitrymomot/clientsync/pkg/logger"
	"github.com/dmitrymomot/clientsync/pkg/notify"
	"github.com/dmitrymomot/clientsync/pkg/remote"
	"github.com/dmitrymomot/clientsync/pkg/session"
)

// Config aggregates the configuration of every component.
type Config struct {
	Session  session.Config
	API      remote.Config
	Cart     collection.Config `envPrefix:"CART_"`
	Wishlist collection.Config `envPrefix:"WISHLIST_"`
	Notify   notify.Config
	Redis    kvstore.RedisConfig
	Log      logger.Config

	// NotificationsEnabled turns the realtime channel on.
	NotificationsEnabled bool `env:"NOTIFY_ENABLED" envDefault:"true"`
}

// DefaultConfig returns the defaults of every component.
func DefaultConfig() Config {
	return Config{
		Session:              session.DefaultConfig(),
		API:                  remote.DefaultConfig(),
		Cart:                 collection.DefaultConfig(),
		Wishlist:             collection.DefaultConfig(),
		Notify:               notify.DefaultConfig(),
		Redis:                kvstore.RedisConfig{KeyPrefix: "clientsync:"},
		Log:                  logger.Config{Env: logger.EnvDevelopment, Service: "clientsync"},
		NotificationsEnabled: true,
	}
}

// LoadConfig reads Config from the environment and an optional .env file.
func LoadConfig(opts ...config.Option) (Config, error) {
	var cfg Config
	if err := config.Load(&cfg, opts...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
