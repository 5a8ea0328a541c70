package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine owns the session state machine. It is the only writer to the
// CredentialStore; every other component consumes Snapshot values. Safe for
// concurrent use: all mutation happens under one mutex, subscriber
// callbacks run outside it.
type Engine struct {
	mu          sync.Mutex
	api         TokenAPI
	store       CredentialStore
	transitions map[State]map[State]struct{}

	state    State
	identity *Identity
	cred     *Credential

	sessionID   string
	now         func() time.Time
	logger      Logger
	activity    ActivitySink
	subscribers map[int]func(Snapshot)
	nextSub     int
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithEngineLogger overrides the engine logger.
func WithEngineLogger(logger Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEngineClock injects a custom clock (useful for tests).
func WithEngineClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithEngineActivitySink sets the ActivitySink used to publish auth events.
func WithEngineActivitySink(sink ActivitySink) EngineOption {
	return func(e *Engine) {
		e.activity = normalizeActivitySink(sink)
	}
}

// NewEngine returns a session engine in the uninitialized state.
func NewEngine(api TokenAPI, store CredentialStore, opts ...EngineOption) *Engine {
	e := &Engine{
		api:   api,
		store: store,
		transitions: map[State]map[State]struct{}{
			StateUninitialized: {
				StateInitializing: {},
			},
			StateInitializing: {
				StateAuthenticated:   {},
				StateUnauthenticated: {},
			},
			StateUnauthenticated: {
				StateAuthenticated: {},
			},
			StateAuthenticated: {
				StateRefreshing:      {},
				StateUnauthenticated: {},
			},
			StateRefreshing: {
				StateAuthenticated: {},
				StateLoggedOut:     {},
			},
			StateLoggedOut: {
				StateAuthenticated: {},
			},
		},
		state:       StateUninitialized,
		sessionID:   uuid.New().String(),
		now:         time.Now,
		logger:      defLogger{},
		activity:    noopActivitySink{},
		subscribers: map[int]func(Snapshot){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	return e
}

// Credential returns a copy of the current credential for bearer headers.
// Wire it into the token client through WithCredentialSource.
func (e *Engine) Credential() *Credential {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cred.Clone()
}

// Snapshot implements SessionSource.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers fn to run on every state change and returns the
// unsubscribe function. Callbacks run outside the engine lock.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// Init resolves any stored credential into a settled session state. It runs
// at most once per process: once the session has left the uninitialized
// state, later calls are no-ops.
//
// The returned redirect is the login path appropriate for currentPath when
// initialization settles unauthenticated with a dead credential and the
// current route is not already an auth route. Navigation is the caller's
// effect layer's job.
func (e *Engine) Init(ctx context.Context, currentPath string) (redirect string, err error) {
	e.mu.Lock()
	if e.state != StateUninitialized {
		e.mu.Unlock()
		return "", nil
	}
	if err := e.transitionLocked(StateInitializing); err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.mu.Unlock()
	e.notify()

	cred, loadErr := e.store.Load(ctx)
	if loadErr != nil {
		e.logger.Warn("credential load failed: %v", loadErr)
	}
	if cred == nil || cred.AccessToken == "" {
		e.settle(ctx, StateUnauthenticated, nil, nil)
		return "", nil
	}

	e.setCredential(cred)

	// A visibly expired access token skips the doomed profile call and goes
	// straight to the single refresh attempt.
	if !tokenExpired(cred.AccessToken, e.now()) {
		identity, profileErr := e.api.Profile(ctx)
		if profileErr == nil {
			e.settle(ctx, StateAuthenticated, identity, cred)
			return "", nil
		}
		if !IsSessionExpired(profileErr) {
			// Transient network or server-side failure, not a verdict on the
			// credential: keep it stored for the next start.
			e.logger.Warn("profile fetch failed during init: %v", profileErr)
			e.settle(ctx, StateUnauthenticated, nil, cred)
			return "", profileErr
		}
	}

	identity, cred, refreshErr := e.refreshOnce(ctx, cred)
	if refreshErr != nil {
		e.forceUnauthenticated(ctx, StateUnauthenticated, "refresh failed during init: %v", refreshErr)
		return e.loginRedirect(currentPath), nil
	}

	e.settle(ctx, StateAuthenticated, identity, cred)
	return "", nil
}

// Login authenticates and establishes a session. The returned error is
// surfaced to the caller for user display; it is never retried here.
func (e *Engine) Login(ctx context.Context, username, password, tenantID string) (Snapshot, error) {
	e.mu.Lock()
	switch e.state {
	case StateUnauthenticated, StateLoggedOut:
	default:
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, ErrInvalidTransition.WithMetadata(map[string]any{
			"from":   snap.State,
			"reason": "login requires an unauthenticated session",
		})
	}
	e.mu.Unlock()

	cred, identity, err := e.api.Login(ctx, LoginRequest{
		Username: username,
		Password: password,
		TenantID: tenantID,
	})
	if err != nil {
		e.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return e.Snapshot(), err
	}

	e.validateIdentity(identity)

	if saveErr := e.store.Save(ctx, cred); saveErr != nil {
		e.logger.Warn("credential save failed: %v", saveErr)
	}

	e.mu.Lock()
	e.cred = cred
	e.identity = identity
	from := e.state
	if err := e.transitionLocked(StateAuthenticated); err != nil {
		e.mu.Unlock()
		return e.Snapshot(), err
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emitTransition(ctx, ActivityEventLoginSuccess, identity.ID, from, StateAuthenticated, map[string]any{
		"username":  username,
		"tenant_id": tenantID,
	})
	e.notify()

	return snap, nil
}

// Logout tears down the session. The server-side revocation is best-effort;
// local credentials are cleared unconditionally. Idempotent: calling it on
// an already-unauthenticated session is a no-op that still leaves the store
// empty.
func (e *Engine) Logout(ctx context.Context) error {
	e.mu.Lock()
	refreshToken := ""
	if e.cred != nil {
		refreshToken = e.cred.RefreshToken
	}
	wasAuthenticated := e.state == StateAuthenticated
	userID := ""
	if e.identity != nil {
		userID = e.identity.ID
	}
	e.mu.Unlock()

	if refreshToken != "" {
		// The client swallows network failures here.
		_ = e.api.Logout(ctx, refreshToken)
	}

	if err := e.store.Clear(ctx); err != nil {
		e.logger.Warn("credential clear failed: %v", err)
	}

	e.mu.Lock()
	e.cred = nil
	e.identity = nil
	from := e.state
	if wasAuthenticated {
		if err := e.transitionLocked(StateUnauthenticated); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.mu.Unlock()

	if wasAuthenticated {
		e.emitTransition(ctx, ActivityEventLogout, userID, from, StateUnauthenticated, nil)
		e.notify()
	}

	return nil
}

// RefreshSession silently re-authenticates an expired access token. At most
// one refresh attempt is made; failure is terminal and forces logout.
func (e *Engine) RefreshSession(ctx context.Context) (Snapshot, error) {
	e.mu.Lock()
	if e.state != StateAuthenticated {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, ErrInvalidTransition.WithMetadata(map[string]any{
			"from":   snap.State,
			"reason": "refresh requires an authenticated session",
		})
	}
	cred := e.cred.Clone()
	userID := ""
	if e.identity != nil {
		userID = e.identity.ID
	}
	if err := e.transitionLocked(StateRefreshing); err != nil {
		e.mu.Unlock()
		return e.Snapshot(), err
	}
	e.mu.Unlock()
	e.notify()

	identity, newCred, err := e.refreshOnce(ctx, cred)
	if err != nil {
		if clearErr := e.store.Clear(ctx); clearErr != nil {
			e.logger.Warn("credential clear failed: %v", clearErr)
		}
		e.mu.Lock()
		e.cred = nil
		e.identity = nil
		from := e.state
		transitionErr := e.transitionLocked(StateLoggedOut)
		snap := e.snapshotLocked()
		e.mu.Unlock()
		if transitionErr != nil {
			return snap, transitionErr
		}
		e.emitTransition(ctx, ActivityEventForcedLogout, userID, from, StateLoggedOut, map[string]any{
			"error": err.Error(),
		})
		e.notify()
		return snap, ErrRefreshExpired
	}

	e.mu.Lock()
	e.cred = newCred
	e.identity = identity
	from := e.state
	transitionErr := e.transitionLocked(StateAuthenticated)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	if transitionErr != nil {
		return snap, transitionErr
	}

	e.emitTransition(ctx, ActivityEventRefreshSuccess, identity.ID, from, StateAuthenticated, nil)
	e.notify()

	return snap, nil
}

// refreshOnce performs the single allowed refresh plus the follow-up profile
// fetch. Any failure along the way is terminal for the stored credential.
func (e *Engine) refreshOnce(ctx context.Context, cred *Credential) (*Identity, *Credential, error) {
	newCred, err := e.api.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		e.emit(ctx, ActivityEventRefreshFailure, "", map[string]any{"error": err.Error()})
		return nil, nil, err
	}

	if saveErr := e.store.Save(ctx, newCred); saveErr != nil {
		e.logger.Warn("credential save failed: %v", saveErr)
	}
	e.setCredential(newCred)

	identity, err := e.api.Profile(ctx)
	if err != nil {
		return nil, nil, err
	}

	e.validateIdentity(identity)
	return identity, newCred, nil
}

// loginRedirect derives the post-forced-logout redirect, skipping it when
// the user is already on an auth route.
func (e *Engine) loginRedirect(currentPath string) string {
	if currentPath == "" || IsAuthRoute(currentPath) {
		return ""
	}
	return LoginPathFor(currentPath)
}

// forceUnauthenticated clears credentials and settles the session.
func (e *Engine) forceUnauthenticated(ctx context.Context, to State, format string, args ...any) {
	e.logger.Warn(format, args...)
	if err := e.store.Clear(ctx); err != nil {
		e.logger.Warn("credential clear failed: %v", err)
	}
	e.settle(ctx, to, nil, nil)
}

// settle moves the initializing session to its final state and notifies.
func (e *Engine) settle(ctx context.Context, to State, identity *Identity, cred *Credential) {
	e.validateIdentity(identity)

	e.mu.Lock()
	from := e.state
	e.identity = identity
	e.cred = cred
	if err := e.transitionLocked(to); err != nil {
		e.logger.Error("settle transition rejected: %v", err)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	userID := ""
	if identity != nil {
		userID = identity.ID
	}
	e.emitTransition(ctx, ActivityEventSessionInitialized, userID, from, to, nil)
	e.notify()
}

func (e *Engine) setCredential(cred *Credential) {
	e.mu.Lock()
	e.cred = cred
	e.mu.Unlock()
}

// validateIdentity checks the tenant affiliation invariant: every role
// except maintainer belongs to a tenant, maintainers never do.
func (e *Engine) validateIdentity(identity *Identity) {
	if identity == nil {
		return
	}
	if identity.Role == RoleMaintainer && identity.TenantID != "" {
		e.logger.Warn("maintainer identity %s carries tenant_id %q", identity.ID, identity.TenantID)
	}
	if identity.Role != RoleMaintainer && identity.TenantID == "" {
		e.logger.Warn("identity %s with role %s is missing tenant_id", identity.ID, identity.Role)
	}
}

func (e *Engine) transitionLocked(to State) error {
	if e.state == to {
		return nil
	}
	if allowed, ok := e.transitions[e.state]; ok {
		if _, exists := allowed[to]; exists {
			e.state = to
			return nil
		}
	}
	return ErrInvalidTransition.WithMetadata(map[string]any{
		"from": e.state,
		"to":   to,
	})
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		State:    e.state,
		Identity: e.identity.Clone(),
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	snap := e.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (e *Engine) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	e.emitTransition(ctx, eventType, userID, "", "", metadata)
}

func (e *Engine) emitTransition(ctx context.Context, eventType ActivityEventType, userID string, from, to State, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		SessionID:  e.sessionID,
		UserID:     userID,
		FromState:  from,
		ToState:    to,
		Metadata:   metadata,
		OccurredAt: e.now(),
	}

	if err := normalizeActivitySink(e.activity).Record(ctx, event); err != nil {
		e.logger.Warn("activity sink record error: %v", err)
	}
}
