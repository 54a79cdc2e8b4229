// Package config loads typed configuration structs from the process
// environment.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: an optional
// set of .env files is read once per process, then env.Parse fills any struct
// annotated with `env` / `envDefault` tags. Each configuration type (plus
// prefix) is parsed only once; later calls are served from an in-memory cache.
//
// # Usage
//
//	type APIConfig struct {
//	    BaseURL string        `env:"API_BASE_URL,required"`
//	    Timeout time.Duration `env:"API_TIMEOUT" envDefault:"15s"`
//	}
//
//	var cfg APIConfig
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Nested structs may share a prefix:
//
//	var cfg clientsync.Config
//	config.MustLoad(&cfg, config.WithPrefix("SHOP_"))
//
// # Errors
//
//   - ErrParsingConfig   – env.Parse rejected the environment.
//   - ErrNilPointer      – a nil pointer was passed to Load.
//   - ErrConfigNotLoaded – the cache lost the entry (should not happen).
//
// Tests can call Reset to drop cached values after changing the environment.
package config
