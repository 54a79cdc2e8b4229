package collection

import "time"

// Config holds cache settings.
type Config struct {
	QueueSize               int           `env:"COLLECTION_QUEUE_SIZE" envDefault:"64"`
	RevalidateAfterMutation bool          `env:"COLLECTION_REVALIDATE_AFTER_MUTATION" envDefault:"true"`
	RevalidateTimeout       time.Duration `env:"COLLECTION_REVALIDATE_TIMEOUT" envDefault:"15s"`
}

func DefaultConfig() Config {
	return Config{
		QueueSize:               64,
		RevalidateAfterMutation: true,
		RevalidateTimeout:       15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.RevalidateTimeout <= 0 {
		c.RevalidateTimeout = def.RevalidateTimeout
	}
	return c
}
