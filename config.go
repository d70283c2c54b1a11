package zeacore

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds client construction settings. Values are taken from
// environment variables with the prefix "ZEACORE_", e.g.
// ZEACORE_BASE_URL=https://api.example.com ZEACORE_API_KEY=... .
type Config struct {
	BaseURL string `envconfig:"BASE_URL"`
	APIKey  string `envconfig:"API_KEY"`

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	// CacheMaxAge is the default staleness horizon for cached records;
	// CacheCap bounds the number of cached entries.
	CacheMaxAge time.Duration `envconfig:"CACHE_MAX_AGE" default:"30s"`
	CacheCap    int           `envconfig:"CACHE_CAP" default:"4096"`
}

// LoadConfig populates Config from environment variables (prefix ZEACORE_).
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("ZEACORE", &c)
}
