package session

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialStore persists the access/refresh token pair across restarts.
// Load returns (nil, nil) when no credential is stored.
type CredentialStore interface {
	Save(ctx context.Context, cred *Credential) error
	Load(ctx context.Context) (*Credential, error)
	Clear(ctx context.Context) error
}

// TokenAPI is the subset of the backend contract the Engine drives.
type TokenAPI interface {
	Login(ctx context.Context, req LoginRequest) (*Credential, *Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
	Profile(ctx context.Context) (*Identity, error)
	Logout(ctx context.Context, refreshToken string) error
}

// InviteAPI exposes the invite token primitives used by InviteFlow.
type InviteAPI interface {
	ValidateInviteToken(ctx context.Context, token string) (*InviteInfo, error)
	AcceptInvite(ctx context.Context, token, newPassword string) error
}

// PasswordResetAPI exposes the password recovery primitives used by ResetFlow.
type PasswordResetAPI interface {
	RequestPasswordReset(ctx context.Context, email, tenantID string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// TenantAPI fetches tenant metadata for the resolver.
type TenantAPI interface {
	Tenant(ctx context.Context, id string) (*TenantMetadata, error)
	PublicTenant(ctx context.Context, id string) (*PublicTenantInfo, error)
}

// SessionSource lets components observe session state without holding a
// reference to the Engine's mutable internals.
type SessionSource interface {
	Snapshot() Snapshot
}

// LoginService is the narrow Engine surface the invite flow needs for its
// best-effort auto-login after account activation.
type LoginService interface {
	Login(ctx context.Context, username, password, tenantID string) (Snapshot, error)
}

// Navigator performs the navigation side effect for a redirect decision.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function into a Navigator.
type NavigatorFunc func(path string)

// Navigate satisfies the Navigator interface.
func (f NavigatorFunc) Navigate(path string) {
	if f == nil {
		return
	}
	f(path)
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

func normalizeNavigator(n Navigator) Navigator {
	if n == nil {
		return noopNavigator{}
	}
	return n
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
