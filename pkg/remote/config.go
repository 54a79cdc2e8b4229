package remote

import "time"

// Config holds request layer configuration.
type Config struct {
	BaseURL      string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	Timeout      time.Duration `env:"API_TIMEOUT" envDefault:"15s"`
	UserAgent    string        `env:"API_USER_AGENT" envDefault:"clientsync/1.0"`
	RefreshPath  string        `env:"API_REFRESH_PATH" envDefault:"/session/refresh"`
	CartPath     string        `env:"API_CART_PATH" envDefault:"/cart"`
	WishlistPath string        `env:"API_WISHLIST_PATH" envDefault:"/wishlist"`
}

// DefaultConfig returns the configuration used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:8080",
		Timeout:      15 * time.Second,
		UserAgent:    "clientsync/1.0",
		RefreshPath:  "/session/refresh",
		CartPath:     "/cart",
		WishlistPath: "/wishlist",
	}
}
