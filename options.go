package zeacore

// Functional options applied during construction in New. Options must be
// deterministic and side-effect free; transport-related options are installed
// beneath the API-key wrapper.

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnishRamachandran/zeacore-go/internal/cache"
)

// Option configures a Client during construction in New.
type Option func(*Client) error

// WithHTTPTimeout sets the underlying http.Client Timeout used by the SDK.
//
// Prefer per-request context deadlines where possible; this timeout is a
// coarse safety net bounding the total time spent on a single HTTP request.
// The value must be greater than zero.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.http.Timeout = d
		return nil
	}
}

// WithDebugLogging wraps the client's transport so each request/response is
// logged when enabled is true. Not for production: dumps include headers and
// bodies.
func WithDebugLogging(enabled bool) Option {
	return func(c *Client) error {
		if enabled {
			base := c.http.Transport
			if base == nil {
				base = http.DefaultTransport
			}
			c.http.Transport = &debugTransport{base: base}
		}
		return nil
	}
}

// WithLogger routes SDK logs through the given zerolog logger. The default
// discards them.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) error {
		c.log = log
		return nil
	}
}

// WithCache sizes the entity cache: capacity bounds the number of cached
// records, maxAge is the default staleness horizon. Zero values select the
// built-in defaults.
func WithCache(capacity int, maxAge time.Duration) Option {
	return func(c *Client) error {
		c.cache = cache.New(capacity, maxAge)
		return nil
	}
}

// WithMaxAge overrides the staleness horizon for one entity type.
func WithMaxAge(entityType string, d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("max age must be > 0")
		}
		c.cache.SetMaxAge(entityType, d)
		return nil
	}
}

// WithStore substitutes the remote access port. Intended for tests and for
// backends that are not PostgREST-shaped.
func WithStore(store RemoteStore) Option {
	return func(c *Client) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		c.store = store
		return nil
	}
}

// WithWriteQueue tunes the asynchronous write queue.
func WithWriteQueue(cfg WriteQueueConfig) Option {
	return func(c *Client) error {
		c.queueCfg = cfg
		return nil
	}
}

// WithoutWriteQueue disables the asynchronous write queue; AddComment and
// other fire-and-forget writes return an error when it is disabled.
func WithoutWriteQueue() Option {
	return func(c *Client) error {
		c.noQueue = true
		return nil
	}
}
