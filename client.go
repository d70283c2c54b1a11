// Package zeacore is the Go client SDK for the ZeaCore SaaS-management
// platform. It is a thin, cached read-model layer over the hosted backend:
// listings and detail views are composed from normalized rows by a declared
// relation set, refreshed when stale, served from last-known data when the
// backend is unreachable, and invalidated on session changes.
package zeacore

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnishRamachandran/zeacore-go/internal/bridge"
	"github.com/AnishRamachandran/zeacore-go/internal/cache"
	"github.com/AnishRamachandran/zeacore-go/internal/reconcile"
	"github.com/AnishRamachandran/zeacore-go/internal/remote"
	"github.com/AnishRamachandran/zeacore-go/internal/writequeue"
)

// --------------------------------------------------------------------
// Client core
// --------------------------------------------------------------------

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger

	store  remote.Store
	cache  *cache.Store
	rec    *reconcile.Reconciler
	bridge *bridge.Bridge
	queue  *writequeue.Executor

	queueCfg writequeue.Config
	noQueue  bool

	// Session identity, maintained by Notify. The resolved customer link is
	// memoized per identity, mirroring how the portal held it in view state.
	mu     sync.Mutex
	userID string
	email  string
	link   *CustomerLink
	linked bool // link has been resolved for the current identity

	closedOnce uint32
}

// New constructs a Client for the given backend baseURL and API key.
// Additional options can be provided via functional arguments.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		panic("baseURL cannot be empty")
	}
	if apiKey == "" {
		panic("apiKey cannot be empty")
	}

	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
		cache:   cache.New(0, 0),
	}

	// Auto-enable debug via env variable without changing code.
	if debugLoggingRequested() {
		opts = append(opts, WithDebugLogging(true))
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			panic(err)
		}
	}

	// Wrap the transport so every request carries the API key.
	c.wrapTransportWithAPIKey()

	if c.store == nil {
		c.store = remote.NewREST(c.http, c.baseURL)
	}
	c.rec = reconcile.New(c.store, c.cache, c.log)
	c.bridge = bridge.New(c.rec, c.log)
	if !c.noQueue {
		cfg := c.queueCfg
		if cfg.ErrorHandler == nil {
			cfg.ErrorHandler = c.handleAsyncWriteError
		}
		c.queue = writequeue.New(cfg, c.log)
	}
	return c
}

// NewFromEnv constructs a Client from ZEACORE_-prefixed environment
// variables.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithHTTPTimeout(cfg.HTTPTimeout),
		WithCache(cfg.CacheCap, cfg.CacheMaxAge),
	}
	return New(cfg.BaseURL, cfg.APIKey, append(base, opts...)...), nil
}

// wrapTransportWithAPIKey wraps the HTTP client's transport so every request
// carries the apikey and Authorization headers the backend expects.
func (c *Client) wrapTransportWithAPIKey() {
	baseTransport := c.http.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	c.http.Transport = &apiKeyTransport{base: baseTransport, apiKey: c.apiKey}
}

// apiKeyTransport adds backend authentication headers to each request.
type apiKeyTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone so the caller's request is not mutated.
	cloned := req.Clone(req.Context())
	cloned.Header.Set("apikey", t.apiKey)
	cloned.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(cloned)
}

// Close stops the background write queue (if any). Safe to call multiple
// times.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapUint32(&c.closedOnce, 0, 1) {
		return nil
	}
	if c.queue != nil {
		c.queue.Stop()
	}
	return nil
}

// --------------------------------------------------------------------
// Session & notifications
// --------------------------------------------------------------------

// Notify feeds one upstream session event into the SDK: identity changes
// flush every cache (including the memoized customer link) and wake all
// watchers so views re-obtain under the new identity.
func (c *Client) Notify(ev SessionEvent) {
	c.mu.Lock()
	switch ev.Kind {
	case SignedIn:
		c.userID, c.email = ev.UserID, ev.Email
		c.link, c.linked = nil, false
	case SignedOut:
		c.userID, c.email = "", ""
		c.link, c.linked = nil, false
	}
	c.mu.Unlock()

	c.bridge.OnUpstreamChange(ev)
}

// Run consumes session events from feed until it closes or ctx is done.
// Typically started in its own goroutine next to the auth client.
func (c *Client) Run(ctx context.Context, feed <-chan SessionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			c.Notify(ev)
		}
	}
}

// Watch registers interest in an entity type (id "" for the whole type). The
// subscription's channel signals when the watched data should be re-obtained;
// Cancel is idempotent and guarantees no delivery afterwards.
func (c *Client) Watch(entityType, id string) *Subscription {
	return c.bridge.Watch(entityType, id)
}

// --------------------------------------------------------------------
// Cache control
// --------------------------------------------------------------------

// Invalidate drops one cached record so the next obtainment refetches it.
func (c *Client) Invalidate(entityType, id string) { c.rec.Invalidate(entityType, id) }

// InvalidateType drops all cached records of one entity type.
func (c *Client) InvalidateType(entityType string) { c.rec.InvalidateType(entityType) }

// InvalidateAll drops the whole cache.
func (c *Client) InvalidateAll() { c.rec.InvalidateAll() }

// --------------------------------------------------------------------
// Generic composition surface
// --------------------------------------------------------------------

// Obtain composes the view model for one record with the given relations.
// maxAge <= 0 selects the configured staleness horizon.
func (c *Client) Obtain(ctx context.Context, entityType, id string, relations []Relation, maxAge time.Duration) (ViewModel, Status, error) {
	return c.rec.Obtain(ctx, entityType, id, relations, maxAge)
}

// ObtainList composes one view model per record matching filter.
func (c *Client) ObtainList(ctx context.Context, entityType string, filter Filter, relations []Relation, maxAge time.Duration) ([]ViewModel, Status, error) {
	return c.rec.ObtainList(ctx, entityType, filter, relations, maxAge)
}

// Insert creates a record and installs it in the cache.
func (c *Client) Insert(ctx context.Context, entityType string, attrs map[string]any) (Record, error) {
	rec, err := c.rec.Insert(ctx, entityType, attrs)
	if err == nil {
		c.bridge.NotifyMutation(entityType, rec.ID)
	}
	return rec, err
}

// Update patches a record and refreshes its cache entry.
func (c *Client) Update(ctx context.Context, entityType, id string, patch map[string]any) (Record, error) {
	rec, err := c.rec.Update(ctx, entityType, id, patch)
	if err == nil {
		c.bridge.NotifyMutation(entityType, id)
	}
	return rec, err
}

// --------------------------------------------------------------------
// Asynchronous write plumbing
// --------------------------------------------------------------------

// AwaitSync blocks until all previously enqueued asynchronous writes for the
// given key (e.g. a ticket id) have been executed, by submitting a no-op
// barrier job behind them.
func (c *Client) AwaitSync(ctx context.Context, key string) error {
	if c.queue == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.queue.Barrier(ctx, key)
}

// asyncWriteError carries the affected entity type through the write queue's
// error handler for metrics attribution.
type asyncWriteError struct {
	entity string
	err    error
}

func (e *asyncWriteError) Error() string { return e.err.Error() }
func (e *asyncWriteError) Unwrap() error { return e.err }

func (c *Client) handleAsyncWriteError(err error) {
	entityType := "unknown"
	var awe *asyncWriteError
	if errors.As(err, &awe) {
		entityType = awe.entity
	}
	writesFailedTotal.WithLabelValues(entityType).Inc()
	c.log.Error().Err(err).Str("entity", entityType).Msg("asynchronous write abandoned")
}
