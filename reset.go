package session

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// ResetFlow drives password recovery: requesting a reset token by email and
// confirming the new password with the mailed token.
type ResetFlow struct {
	mu       sync.Mutex
	api      PasswordResetAPI
	logger   Logger
	activity ActivitySink

	state   TokenState
	token   string
	stopped bool
}

// ResetFlowOption customizes flow construction.
type ResetFlowOption func(*ResetFlow)

// WithResetLogger overrides the flow logger.
func WithResetLogger(logger Logger) ResetFlowOption {
	return func(f *ResetFlow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithResetActivitySink sets the sink used to emit reset events.
func WithResetActivitySink(sink ActivitySink) ResetFlowOption {
	return func(f *ResetFlow) {
		f.activity = normalizeActivitySink(sink)
	}
}

// NewResetFlow creates a password reset flow.
func NewResetFlow(api PasswordResetAPI, opts ...ResetFlowOption) *ResetFlow {
	f := &ResetFlow{
		api:      api,
		logger:   defLogger{},
		activity: noopActivitySink{},
		state:    TokenStateAbsent,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	return f
}

// State returns the current token state.
func (f *ResetFlow) State() TokenState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Request asks the backend to mail a reset token. tenantID is empty for
// maintainer accounts.
func (f *ResetFlow) Request(ctx context.Context, email, tenantID string) error {
	return f.api.RequestPasswordReset(ctx, email, tenantID)
}

// Load reads the reset token from the current URL without contacting the
// backend; reset tokens validate implicitly on confirmation.
func (f *ResetFlow) Load(rawURL string) TokenState {
	token := ExtractToken(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return f.state
	}

	f.token = token
	if token == "" {
		f.state = TokenStateAbsent
	} else {
		f.state = TokenStateValid
	}
	return f.state
}

// Confirm submits the new password. Token failures surface as distinct
// expired/used/invalid states so the UI never collapses them into a
// generic failure.
func (f *ResetFlow) Confirm(ctx context.Context, newPassword string) error {
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()

	if token == "" {
		return ErrTokenInvalid
	}

	err := f.api.ResetPassword(ctx, token, newPassword)

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return err
	}
	switch {
	case err == nil:
		f.state = TokenStateValid
	case IsNetworkError(err):
		// Transport failure is not a verdict on the token; keep the state
		// so the caller can retry.
	case HasTextCode(err, TextCodeTokenAlreadyUsed):
		f.state = TokenStateUsed
	case HasTextCode(err, TextCodeTokenExpired):
		f.state = TokenStateExpired
	default:
		f.state = TokenStateInvalid
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}

	if sinkErr := normalizeActivitySink(f.activity).Record(ctx, ActivityEvent{
		EventType:  ActivityEventPasswordReset,
		OccurredAt: time.Now(),
	}); sinkErr != nil {
		f.logger.Warn("activity sink error during password reset: %v", sinkErr)
	}

	return nil
}

// Stop cancels the flow; later results are not applied.
func (f *ResetFlow) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

// ResetRedirectPath derives the login page to return to after a completed
// reset, based on the page the token landed on.
func ResetRedirectPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/" + PathSystemAdmin + "/login"
	}
	return LoginPathFor(u.Path)
}
