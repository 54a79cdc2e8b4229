package notify

import "time"

// Config holds notification channel settings.
type Config struct {
	URL              string        `env:"NOTIFY_URL" envDefault:"ws://localhost:8080/ws"`
	HandshakeTimeout time.Duration `env:"NOTIFY_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WriteTimeout     time.Duration `env:"NOTIFY_WRITE_TIMEOUT" envDefault:"10s"`
	PingInterval     time.Duration `env:"NOTIFY_PING_INTERVAL" envDefault:"30s"`
	ReadLimit        int64         `env:"NOTIFY_READ_LIMIT" envDefault:"65536"`

	// Reconnect backoff: exponential from ReconnectBase, capped at
	// ReconnectMax, with ReconnectJitter percent of jitter.
	ReconnectBase   time.Duration `env:"NOTIFY_RECONNECT_BASE" envDefault:"500ms"`
	ReconnectMax    time.Duration `env:"NOTIFY_RECONNECT_MAX" envDefault:"30s"`
	ReconnectJitter uint64        `env:"NOTIFY_RECONNECT_JITTER_PERCENT" envDefault:"20"`
}

func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8080/ws",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadLimit:        64 << 10,
		ReconnectBase:    500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		ReconnectJitter:  20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = def.ReadLimit
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = def.ReconnectBase
	}
	if c.ReconnectMax < c.ReconnectBase {
		c.ReconnectMax = max(def.ReconnectMax, c.ReconnectBase)
	}
	return c
}
