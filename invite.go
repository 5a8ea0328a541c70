package session

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// TokenState enumerates the per-token lifecycle of an invite or reset flow.
type TokenState string

const (
	// TokenStateAbsent means no token was found in the URL.
	TokenStateAbsent TokenState = "absent"
	// TokenStateValidating means the token is being resolved.
	TokenStateValidating TokenState = "validating"
	// TokenStateValid means the token resolved to an invite.
	TokenStateValid TokenState = "valid"
	// TokenStateExpired means the token has expired.
	TokenStateExpired TokenState = "expired"
	// TokenStateUsed means the single-use token was already consumed.
	TokenStateUsed TokenState = "already_used"
	// TokenStateInvalid means the token is malformed or unknown.
	TokenStateInvalid TokenState = "invalid"
)

// usedTokenRedirectDelay is the grace period before a consumed token
// redirects to login, so the user can read the message.
const usedTokenRedirectDelay = 3 * time.Second

// ExtractToken reads an invite/reset token from a URL. The fragment is
// checked first since it never reaches server logs; the query parameter is
// the fallback.
func ExtractToken(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if u.Fragment != "" {
		if values, err := url.ParseQuery(u.Fragment); err == nil {
			if token := values.Get("token"); token != "" {
				return token
			}
		}
	}

	return u.Query().Get("token")
}

// InviteFlow drives account activation from an invite link: it validates
// the token, handles the cross-tenant redirect for maintainer-issued links,
// and finishes with acceptance plus best-effort auto-login.
type InviteFlow struct {
	mu            sync.Mutex
	api           InviteAPI
	login         LoginService
	nav           Navigator
	logger        Logger
	activity      ActivitySink
	redirectDelay time.Duration

	state   TokenState
	token   string
	path    string
	info    *InviteInfo
	stopped bool
	timer   *time.Timer
}

// InviteFlowOption customizes flow construction.
type InviteFlowOption func(*InviteFlow)

// WithInviteLogger overrides the flow logger.
func WithInviteLogger(logger Logger) InviteFlowOption {
	return func(f *InviteFlow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithInviteActivitySink sets the sink used to emit invite events.
func WithInviteActivitySink(sink ActivitySink) InviteFlowOption {
	return func(f *InviteFlow) {
		f.activity = normalizeActivitySink(sink)
	}
}

// WithRedirectDelay overrides the used-token redirect grace period.
func WithRedirectDelay(d time.Duration) InviteFlowOption {
	return func(f *InviteFlow) {
		if d >= 0 {
			f.redirectDelay = d
		}
	}
}

// NewInviteFlow creates an invite flow. login may be nil to skip the
// auto-login after acceptance; nav may be nil when the caller handles
// redirects through the returned state instead.
func NewInviteFlow(api InviteAPI, login LoginService, nav Navigator, opts ...InviteFlowOption) *InviteFlow {
	f := &InviteFlow{
		api:           api,
		login:         login,
		nav:           normalizeNavigator(nav),
		logger:        defLogger{},
		activity:      noopActivitySink{},
		redirectDelay: usedTokenRedirectDelay,
		state:         TokenStateAbsent,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	return f
}

// State returns the current token state.
func (f *InviteFlow) State() TokenState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Info returns the invite details once the token has validated.
func (f *InviteFlow) Info() *InviteInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.info == nil {
		return nil
	}
	dup := *f.info
	return &dup
}

// Start extracts and validates the token from the current URL, returning
// the settled token state. A transport failure is not a verdict on the
// token: the state returns to absent and the error surfaces so the caller
// can show a transient notice and retry. A flow that has been stopped never
// applies the validation result.
func (f *InviteFlow) Start(ctx context.Context, rawURL string) (TokenState, error) {
	token := ExtractToken(rawURL)

	var path string
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return f.state, nil
	}
	f.token = token
	f.path = path
	if token == "" {
		f.state = TokenStateAbsent
		f.mu.Unlock()
		return TokenStateAbsent, nil
	}
	f.state = TokenStateValidating
	f.mu.Unlock()

	info, err := f.api.ValidateInviteToken(ctx, token)

	f.mu.Lock()
	if f.stopped {
		// Navigated away mid-validation; drop the result.
		f.mu.Unlock()
		return f.state, nil
	}

	var startErr error
	switch {
	case err == nil:
		f.state = TokenStateValid
		f.info = info
	case IsNetworkError(err):
		f.state = TokenStateAbsent
		startErr = err
	case HasTextCode(err, TextCodeTokenAlreadyUsed):
		f.state = TokenStateUsed
	case HasTextCode(err, TextCodeTokenExpired):
		f.state = TokenStateExpired
	default:
		f.state = TokenStateInvalid
	}
	state := f.state
	f.mu.Unlock()

	switch state {
	case TokenStateValid:
		f.redirectToTokenTenant(info)
	case TokenStateUsed:
		f.scheduleLoginRedirect(path)
	}

	return state, startErr
}

// redirectToTokenTenant handles maintainer-issued invite links whose path
// does not embed the tenant: the browser is sent to the token's true tenant
// path carrying the token forward.
func (f *InviteFlow) redirectToTokenTenant(info *InviteInfo) {
	if info == nil || info.TenantID == "" {
		return
	}

	f.mu.Lock()
	routed := firstSegment(f.path)
	token := f.token
	f.mu.Unlock()

	if isReservedSegment(routed) || routed != info.TenantID {
		f.nav.Navigate("/" + info.TenantID + "/invite#token=" + url.QueryEscape(token))
	}
}

// scheduleLoginRedirect delays the used-token redirect so the message stays
// readable, and cancels it if the flow is stopped first.
func (f *InviteFlow) scheduleLoginRedirect(path string) {
	target := LoginPathFor(path)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.timer = time.AfterFunc(f.redirectDelay, func() {
		f.mu.Lock()
		stopped := f.stopped
		f.mu.Unlock()
		if !stopped {
			f.nav.Navigate(target)
		}
	})
}

// Accept activates the invited account with its initial password, then
// attempts the auto-login. Account creation and auto-login are independent
// outcomes: a failed auto-login is logged, never reported as flow failure.
func (f *InviteFlow) Accept(ctx context.Context, password string) error {
	f.mu.Lock()
	if f.state != TokenStateValid || f.info == nil {
		state := f.state
		f.mu.Unlock()
		return ErrTokenInvalid.WithMetadata(map[string]any{
			"state": state,
		})
	}
	token := f.token
	info := *f.info
	f.mu.Unlock()

	if err := f.api.AcceptInvite(ctx, token, password); err != nil {
		return err
	}

	if err := normalizeActivitySink(f.activity).Record(ctx, ActivityEvent{
		EventType:  ActivityEventInviteAccepted,
		Metadata:   map[string]any{"username": info.Username, "tenant_id": info.TenantID},
		OccurredAt: time.Now(),
	}); err != nil {
		f.logger.Warn("activity sink error during invite acceptance: %v", err)
	}

	if f.login != nil {
		if _, err := f.login.Login(ctx, info.Username, password, info.TenantID); err != nil {
			f.logger.Warn("auto-login after invite acceptance failed: %v", err)
		}
	}

	return nil
}

// Stop cancels the flow: pending validation results are dropped and any
// scheduled redirect is cancelled. Call it when the user navigates away.
func (f *InviteFlow) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
