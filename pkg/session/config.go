package session

import "time"

// Config holds session manager configuration
type Config struct {
	// InactivityTimeout ends the session when no activity was recorded for this long
	InactivityTimeout time.Duration `env:"SESSION_INACTIVITY_TIMEOUT" envDefault:"30m"`

	// RefreshInterval is the credential age after which the periodic check refreshes it
	RefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"14m"`

	CheckInterval  time.Duration `env:"SESSION_CHECK_INTERVAL" envDefault:"60s"`
	RefreshTimeout time.Duration `env:"SESSION_REFRESH_TIMEOUT" envDefault:"15s"`

	// ActivityUpdateThreshold is the minimum time between persisted activity timestamps
	ActivityUpdateThreshold time.Duration `env:"SESSION_ACTIVITY_UPDATE_THRESHOLD" envDefault:"1m"`

	// RefreshOnlyWhenActive skips the periodic refresh unless there was activity
	// since the previous one. An idle credential is then left to age out, so
	// the session ends on the inactivity timeout, or on the embedded expiry
	// when the credential lives shorter than that. Set it to false to refresh
	// purely on credential age.
	RefreshOnlyWhenActive bool `env:"SESSION_REFRESH_ONLY_WHEN_ACTIVE" envDefault:"true"`

	// LoginPath is sent with every transition to Anonymous
	LoginPath string `env:"SESSION_LOGIN_PATH" envDefault:"/login"`
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		InactivityTimeout:       30 * time.Minute,
		RefreshInterval:         14 * time.Minute,
		CheckInterval:           60 * time.Second,
		RefreshTimeout:          15 * time.Second,
		ActivityUpdateThreshold: time.Minute,
		RefreshOnlyWhenActive:   true,
		LoginPath:               "/login",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = def.InactivityTimeout
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = def.RefreshInterval
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = def.RefreshTimeout
	}
	if c.LoginPath == "" {
		c.LoginPath = def.LoginPath
	}
	return c
}

// NewFromConfig creates a new Manager from the provided Config.
func NewFromConfig(cfg Config, opts ...Option) *Manager {
	configOpts := []Option{
		WithConfig(cfg),
	}

	configOpts = append(configOpts, opts...)

	return New(configOpts...)
}
