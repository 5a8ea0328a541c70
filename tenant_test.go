package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-session"
)

func TestResolveTenantID(t *testing.T) {
	tests := []struct {
		name     string
		rawURL   string
		appHost  string
		expected string
	}{
		{"subdomain", "https://acme.app.example.com/chat", "app.example.com", "acme"},
		{"subdomain case folded", "https://ACME.App.Example.com/chat", "app.example.com", "acme"},
		{"base host falls back to path", "https://app.example.com/acme/chat", "app.example.com", "acme"},
		{"nested subdomain ignored", "https://a.b.app.example.com/acme/chat", "app.example.com", "acme"},
		{"reserved subdomain ignored", "https://system-admin.app.example.com/acme/chat", "app.example.com", "acme"},
		{"path segment", "/acme/chat", "app.example.com", "acme"},
		{"reserved path segment", "/system-admin/dashboard", "app.example.com", ""},
		{"auth segment", "/login", "app.example.com", ""},
		{"root", "/", "app.example.com", ""},
		{"empty", "", "app.example.com", ""},
		{"no app host", "https://acme.app.example.com/beta/chat", "", "beta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, session.ResolveTenantID(tt.rawURL, tt.appHost))
		})
	}
}

// fixedSession is a SessionSource pinned to one snapshot.
type fixedSession struct {
	mu   sync.Mutex
	snap session.Snapshot
}

func (s *fixedSession) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fixedSession) set(snap session.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func authenticatedSession() *fixedSession {
	return &fixedSession{snap: session.Snapshot{
		State:    session.StateAuthenticated,
		Identity: testIdentity(),
	}}
}

// gatedTenantAPI lets a test hold a fetch open and release it later.
type gatedTenantAPI struct {
	mu      sync.Mutex
	gates   map[string]chan *session.TenantMetadata
	started chan string
}

func newGatedTenantAPI() *gatedTenantAPI {
	return &gatedTenantAPI{
		gates:   map[string]chan *session.TenantMetadata{},
		started: make(chan string, 8),
	}
}

func (g *gatedTenantAPI) gate(id string) chan *session.TenantMetadata {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.gates[id]; !ok {
		g.gates[id] = make(chan *session.TenantMetadata, 1)
	}
	return g.gates[id]
}

func (g *gatedTenantAPI) Tenant(ctx context.Context, id string) (*session.TenantMetadata, error) {
	gate := g.gate(id)
	g.started <- id
	select {
	case meta := <-gate:
		return meta, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedTenantAPI) PublicTenant(ctx context.Context, id string) (*session.PublicTenantInfo, error) {
	return nil, errors.New("not implemented")
}

func waitForTenant(t *testing.T, r *session.TenantResolver, check func(session.TenantContext) bool) session.TenantContext {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		tc := r.Context()
		if check(tc) {
			return tc
		}
		select {
		case <-deadline:
			t.Fatalf("tenant context never settled: %+v", tc)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTenantResolverFetchesWhenGateOpens(t *testing.T) {
	api := newGatedTenantAPI()
	sess := authenticatedSession()
	resolver := session.NewTenantResolver(api, sess,
		session.WithResolverLogger(silentLogger{}),
		session.WithAppHost("app.example.com"),
	)

	resolver.SetLocation(context.Background(), "/acme/chat")

	require.Equal(t, "acme", <-api.started)
	assert.True(t, resolver.Context().Loading)

	api.gate("acme") <- &session.TenantMetadata{ID: "acme", Name: "Acme Corp"}

	tc := waitForTenant(t, resolver, func(tc session.TenantContext) bool {
		return tc.Tenant != nil
	})
	assert.Equal(t, "Acme Corp", tc.Tenant.Name)
	assert.False(t, tc.Loading)
}

func TestTenantResolverGatesOnSessionAndRoute(t *testing.T) {
	api := newGatedTenantAPI()
	sess := &fixedSession{snap: session.Snapshot{State: session.StateUnauthenticated}}
	resolver := session.NewTenantResolver(api, sess, session.WithResolverLogger(silentLogger{}))

	// Unauthenticated: id resolves, metadata fetch does not start.
	resolver.SetLocation(context.Background(), "/acme/chat")
	tc := resolver.Context()
	assert.Equal(t, "acme", tc.TenantID)
	assert.Nil(t, tc.Tenant)
	assert.False(t, tc.Loading)
	select {
	case id := <-api.started:
		t.Fatalf("unexpected fetch for %q", id)
	default:
	}

	// Auth route: still no fetch even when authenticated.
	sess.set(session.Snapshot{State: session.StateAuthenticated, Identity: testIdentity()})
	resolver.SetLocation(context.Background(), "/acme/login")
	select {
	case id := <-api.started:
		t.Fatalf("unexpected fetch for %q on auth route", id)
	default:
	}

	// Leaving the auth route opens the gate.
	resolver.SetLocation(context.Background(), "/acme/chat")
	require.Equal(t, "acme", <-api.started)
}

func TestTenantResolverLastRequestWins(t *testing.T) {
	api := newGatedTenantAPI()
	resolver := session.NewTenantResolver(api, authenticatedSession(),
		session.WithResolverLogger(silentLogger{}))

	resolver.SetLocation(context.Background(), "/acme/chat")
	require.Equal(t, "acme", <-api.started)

	// Navigate away while the first fetch is still in flight.
	resolver.SetLocation(context.Background(), "/globex/chat")
	require.Equal(t, "globex", <-api.started)

	// Resolve the fetches out of order: the newer one first, then the stale one.
	api.gate("globex") <- &session.TenantMetadata{ID: "globex", Name: "Globex"}
	tc := waitForTenant(t, resolver, func(tc session.TenantContext) bool {
		return tc.Tenant != nil
	})
	require.Equal(t, "Globex", tc.Tenant.Name)

	api.gate("acme") <- &session.TenantMetadata{ID: "acme", Name: "Acme Corp"}

	// The stale completion is discarded; the context still belongs to globex.
	time.Sleep(50 * time.Millisecond)
	tc = resolver.Context()
	assert.Equal(t, "globex", tc.TenantID)
	assert.Equal(t, "Globex", tc.Tenant.Name)
}

func TestTenantResolverChangeInvalidatesMetadata(t *testing.T) {
	api := newGatedTenantAPI()
	resolver := session.NewTenantResolver(api, authenticatedSession(),
		session.WithResolverLogger(silentLogger{}))

	resolver.SetLocation(context.Background(), "/acme/chat")
	require.Equal(t, "acme", <-api.started)
	api.gate("acme") <- &session.TenantMetadata{ID: "acme", Name: "Acme Corp"}
	waitForTenant(t, resolver, func(tc session.TenantContext) bool { return tc.Tenant != nil })

	// Switching tenants drops the old metadata immediately.
	resolver.SetLocation(context.Background(), "/globex/chat")
	tc := resolver.Context()
	assert.Equal(t, "globex", tc.TenantID)
	assert.Nil(t, tc.Tenant)
	require.Equal(t, "globex", <-api.started)

	// Same-tenant navigation reuses the metadata without refetching.
	api.gate("globex") <- &session.TenantMetadata{ID: "globex", Name: "Globex"}
	waitForTenant(t, resolver, func(tc session.TenantContext) bool { return tc.Tenant != nil })
	resolver.SetLocation(context.Background(), "/globex/settings")
	select {
	case id := <-api.started:
		t.Fatalf("unexpected refetch for %q", id)
	default:
	}
	assert.NotNil(t, resolver.Context().Tenant)
}

// erroringTenantAPI fails every metadata fetch.
type erroringTenantAPI struct{}

func (erroringTenantAPI) Tenant(context.Context, string) (*session.TenantMetadata, error) {
	return nil, session.ErrNetwork
}

func (erroringTenantAPI) PublicTenant(context.Context, string) (*session.PublicTenantInfo, error) {
	return nil, session.ErrNetwork
}

func TestTenantResolverSurfacesFetchError(t *testing.T) {
	resolver := session.NewTenantResolver(erroringTenantAPI{}, authenticatedSession(),
		session.WithResolverLogger(silentLogger{}))

	resolver.SetLocation(context.Background(), "/acme/chat")

	tc := waitForTenant(t, resolver, func(tc session.TenantContext) bool {
		return !tc.Loading && tc.Err != nil
	})
	assert.True(t, session.IsNetworkError(tc.Err))
	assert.Nil(t, tc.Tenant)
}

func TestTenantResolverSubscribe(t *testing.T) {
	api := newGatedTenantAPI()
	resolver := session.NewTenantResolver(api, authenticatedSession(),
		session.WithResolverLogger(silentLogger{}))

	var mu sync.Mutex
	var resolved []string
	unsubscribe := resolver.Subscribe(func(tc session.TenantContext) {
		if tc.Tenant != nil {
			mu.Lock()
			resolved = append(resolved, tc.Tenant.ID)
			mu.Unlock()
		}
	})
	defer unsubscribe()

	resolver.SetLocation(context.Background(), "/acme/chat")
	require.Equal(t, "acme", <-api.started)
	api.gate("acme") <- &session.TenantMetadata{ID: "acme", Name: "Acme Corp"}

	waitForTenant(t, resolver, func(tc session.TenantContext) bool { return tc.Tenant != nil })

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, resolved, "acme")
}
