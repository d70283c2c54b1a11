package zeacore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_PanicsOnMissingArgs(t *testing.T) {
	for _, tc := range []struct {
		name    string
		baseURL string
		apiKey  string
	}{
		{"empty baseURL", "", "key"},
		{"empty apiKey", "https://api.example.com", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			New(tc.baseURL, tc.apiKey)
		})
	}
}

func TestNew_InvalidOptionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for invalid timeout")
		}
	}()
	New("https://api.example.com", "key", WithHTTPTimeout(-time.Second))
}

func TestRequestsCarryAuthHeaders(t *testing.T) {
	var gotAPIKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAPIKey = req.Header.Get("apikey")
		gotAuth = req.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key")
	defer c.Close()

	if _, _, err := c.ObtainList(context.Background(), EntityTicket, Filter{}, nil, 0); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if gotAPIKey != "secret-key" {
		t.Fatalf("apikey header = %q", gotAPIKey)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
}

func TestTransportWrapping_DoesNotMutateCallerRequest(t *testing.T) {
	tr := &apiKeyTransport{apiKey: "k", base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("apikey") != "k" {
			t.Errorf("inner request missing apikey header")
		}
		rec := httptest.NewRecorder()
		rec.WriteString("{}")
		return rec.Result(), nil
	})}

	outer, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	if _, err := tr.RoundTrip(outer); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if outer.Header.Get("apikey") != "" {
		t.Fatal("caller's request was mutated")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestDebugEnvEnablesTransportDump(t *testing.T) {
	t.Setenv("ZEACORE_DEBUG", "true")

	c := New("https://api.example.com", "key")
	defer c.Close()

	// The API-key wrapper is outermost; the debug transport sits beneath it.
	akt, ok := c.http.Transport.(*apiKeyTransport)
	if !ok {
		t.Fatalf("outer transport = %T", c.http.Transport)
	}
	if _, ok := akt.base.(*debugTransport); !ok {
		t.Fatalf("inner transport = %T, want *debugTransport", akt.base)
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	t.Setenv("ZEACORE_DEBUG", "")
	t.Setenv("DEBUG", "")

	c := New("https://api.example.com", "key")
	defer c.Close()

	akt := c.http.Transport.(*apiKeyTransport)
	if _, ok := akt.base.(*debugTransport); ok {
		t.Fatal("debug transport installed without the env variable")
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("ZEACORE_BASE_URL", "https://api.example.com")
	t.Setenv("ZEACORE_API_KEY", "secret")
	t.Setenv("ZEACORE_HTTP_TIMEOUT", "5s")
	t.Setenv("ZEACORE_CACHE_MAX_AGE", "10s")
	t.Setenv("ZEACORE_CACHE_CAP", "64")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BaseURL != "https://api.example.com" || cfg.APIKey != "secret" {
		t.Fatalf("config: %+v", cfg)
	}
	if cfg.HTTPTimeout != 5*time.Second || cfg.CacheMaxAge != 10*time.Second || cfg.CacheCap != 64 {
		t.Fatalf("config: %+v", cfg)
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("ZEACORE_BASE_URL", "https://api.example.com")
	t.Setenv("ZEACORE_API_KEY", "secret")

	c, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	defer c.Close()
	if c.baseURL != "https://api.example.com" {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
	if c.http.Timeout != 30*time.Second {
		t.Fatalf("timeout default not applied: %v", c.http.Timeout)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := New("https://api.example.com", "key")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestAwaitSync_NoQueueIsNoop(t *testing.T) {
	c := New("https://api.example.com", "key", WithoutWriteQueue())
	defer c.Close()
	if err := c.AwaitSync(context.Background(), "any"); err != nil {
		t.Fatalf("AwaitSync: %v", err)
	}
}

func TestAwaitSync_FlushesEnqueuedWrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`[{"id":"cm1","ticket_id":"t1"}]`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	defer c.Close()

	ack, err := c.AddComment(context.Background(), "t1", "u1", "hello", false)
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if ack.Status != "queued" || ack.ID == "" {
		t.Fatalf("ack: %+v", ack)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.AwaitSync(ctx, "t1"); err != nil {
		t.Fatalf("AwaitSync: %v", err)
	}
}

func TestAddComment_QueueDisabled(t *testing.T) {
	c := New("https://api.example.com", "key", WithoutWriteQueue())
	defer c.Close()
	if _, err := c.AddComment(context.Background(), "t1", "u1", "hi", false); err == nil {
		t.Fatal("expected error with the write queue disabled")
	}
}

func TestNotify_ClearsIdentityAndLinkMemo(t *testing.T) {
	c := New("https://api.example.com", "key", WithoutWriteQueue())
	defer c.Close()

	c.Notify(SessionEvent{Kind: SignedIn, UserID: "u1", Email: "u1@example.test"})
	c.mu.Lock()
	if c.userID != "u1" || c.email != "u1@example.test" {
		t.Fatalf("identity not set: %q %q", c.userID, c.email)
	}
	c.link, c.linked = &CustomerLink{CustomerID: "c1"}, true
	c.mu.Unlock()

	c.Notify(SessionEvent{Kind: SignedOut})
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" || c.linked || c.link != nil {
		t.Fatal("sign-out must clear identity and link memo")
	}
}

func TestLink_NoSession(t *testing.T) {
	c := New("https://api.example.com", "key", WithoutWriteQueue())
	defer c.Close()

	link, err := c.Link(context.Background())
	if err != nil || link != nil {
		t.Fatalf("link=%+v err=%v, want nil/nil without a session", link, err)
	}
}

func TestAsyncWriteError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &asyncWriteError{entity: EntityTicketComment, err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("unwrap broken")
	}
	if err.Error() != "boom" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestWorstStatus(t *testing.T) {
	if got := worstStatus(StatusReady, StatusDegraded, StatusReady); got != StatusDegraded {
		t.Fatalf("got %v", got)
	}
	if got := worstStatus(StatusReady, StatusFailed, StatusDegraded); got != StatusFailed {
		t.Fatalf("got %v", got)
	}
	if got := worstStatus(); got != StatusReady {
		t.Fatalf("got %v", got)
	}
}
