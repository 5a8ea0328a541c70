package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TenantContext is the derived tenant state for the current URL. Tenant is
// populated only once the session is authenticated and the route is not an
// auth-bootstrap route.
type TenantContext struct {
	TenantID string
	Tenant   *TenantMetadata
	Loading  bool
	Err      error
}

// ResolveTenantID derives a tenant identifier from a URL: the subdomain
// label when the host is a subdomain of appHost, else the first path
// segment when it is not reserved, else "".
func ResolveTenantID(rawURL, appHost string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if host := u.Hostname(); host != "" && appHost != "" {
		host = strings.ToLower(host)
		base := strings.ToLower(appHost)
		if host != base && strings.HasSuffix(host, "."+base) {
			label := strings.TrimSuffix(host, "."+base)
			if label != "" && !strings.Contains(label, ".") && !isReservedSegment(label) {
				return label
			}
		}
	}

	segment := firstSegment(u.Path)
	if isReservedSegment(segment) {
		return ""
	}
	return segment
}

// TenantResolver maintains the TenantContext for the current location.
// Metadata fetches are last-request-wins: each fetch carries a generation,
// and a completion whose generation has been superseded is discarded so a
// stale tenant can never overwrite a newer one.
type TenantResolver struct {
	mu       sync.Mutex
	api      TenantAPI
	session  SessionSource
	appHost  string
	logger   Logger
	activity ActivitySink

	location   string
	path       string
	tenantID   string
	tenant     *TenantMetadata
	loading    bool
	err        error
	generation uint64

	subscribers map[int]func(TenantContext)
	nextSub     int
}

// TenantResolverOption customizes resolver construction.
type TenantResolverOption func(*TenantResolver)

// WithResolverLogger overrides the resolver logger.
func WithResolverLogger(logger Logger) TenantResolverOption {
	return func(r *TenantResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAppHost sets the base application host used for subdomain matching.
func WithAppHost(appHost string) TenantResolverOption {
	return func(r *TenantResolver) {
		r.appHost = appHost
	}
}

// WithResolverActivitySink sets the sink used to record tenant resolutions.
func WithResolverActivitySink(sink ActivitySink) TenantResolverOption {
	return func(r *TenantResolver) {
		r.activity = normalizeActivitySink(sink)
	}
}

// NewTenantResolver creates a resolver bound to a session source.
func NewTenantResolver(api TenantAPI, session SessionSource, opts ...TenantResolverOption) *TenantResolver {
	r := &TenantResolver{
		api:         api,
		session:     session,
		logger:      defLogger{},
		activity:    noopActivitySink{},
		subscribers: map[int]func(TenantContext){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Context returns the current TenantContext snapshot.
func (r *TenantResolver) Context() TenantContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contextLocked()
}

// Subscribe registers fn to run on every tenant context change and returns
// the unsubscribe function.
func (r *TenantResolver) Subscribe(fn func(TenantContext)) func() {
	if fn == nil {
		return func() {}
	}

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
}

// SetLocation re-runs tenant resolution for a navigation event. A changed
// tenant id invalidates any previously fetched metadata; metadata is never
// reused across tenants.
func (r *TenantResolver) SetLocation(ctx context.Context, rawURL string) {
	id := ResolveTenantID(rawURL, r.appHost)

	var path string
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	r.mu.Lock()
	r.location = rawURL
	r.path = path
	if id != r.tenantID {
		r.tenantID = id
		r.tenant = nil
		r.err = nil
		r.loading = false
		r.generation++ // retire any in-flight fetch for the previous id
	}
	r.mu.Unlock()

	r.Recheck(ctx)
}

// Recheck re-evaluates the fetch gate. Call it when the session state
// changes (wire it through Engine.Subscribe) or after SetLocation.
// Metadata is fetched only when the session is authenticated, the route is
// not an auth-bootstrap route, and a tenant id is resolved.
func (r *TenantResolver) Recheck(ctx context.Context) {
	snap := r.session.Snapshot()

	r.mu.Lock()
	if r.tenantID == "" || r.tenant != nil || r.loading {
		r.mu.Unlock()
		return
	}
	if !snap.Authenticated() || IsAuthRoute(r.path) {
		r.mu.Unlock()
		return
	}

	r.loading = true
	r.err = nil
	r.generation++
	gen := r.generation
	id := r.tenantID
	r.mu.Unlock()
	r.notify()

	go r.fetch(ctx, id, gen)
}

func (r *TenantResolver) fetch(ctx context.Context, id string, gen uint64) {
	tenant, err := r.api.Tenant(ctx, id)

	r.mu.Lock()
	if gen != r.generation {
		// A newer tenant id or fetch superseded this one.
		r.mu.Unlock()
		r.logger.Debug("discarding stale tenant fetch for %q", id)
		return
	}

	r.loading = false
	if err != nil {
		r.err = err
		r.mu.Unlock()
		r.logger.Warn("tenant fetch for %q failed: %v", id, err)
		r.notify()
		return
	}

	r.tenant = tenant
	r.mu.Unlock()
	r.logger.Debug("tenant %q resolved", id)

	if err := normalizeActivitySink(r.activity).Record(ctx, ActivityEvent{
		EventType:  ActivityEventTenantResolved,
		Metadata:   map[string]any{"tenant_id": id},
		OccurredAt: time.Now(),
	}); err != nil {
		r.logger.Warn("activity sink error during tenant resolution: %v", err)
	}

	r.notify()
}

func (r *TenantResolver) contextLocked() TenantContext {
	tc := TenantContext{
		TenantID: r.tenantID,
		Loading:  r.loading,
		Err:      r.err,
	}
	if r.tenant != nil {
		dup := *r.tenant
		tc.Tenant = &dup
	}
	return tc
}

func (r *TenantResolver) notify() {
	r.mu.Lock()
	tc := r.contextLocked()
	fns := make([]func(TenantContext), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(tc)
	}
}
