package session_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/goliatone/go-session"
)

// MockTokenAPI implements session.TokenAPI
type MockTokenAPI struct {
	mock.Mock
}

func (m *MockTokenAPI) Login(ctx context.Context, req session.LoginRequest) (*session.Credential, *session.Identity, error) {
	args := m.Called(ctx, req)
	var cred *session.Credential
	if v := args.Get(0); v != nil {
		cred = v.(*session.Credential)
	}
	var identity *session.Identity
	if v := args.Get(1); v != nil {
		identity = v.(*session.Identity)
	}
	return cred, identity, args.Error(2)
}

func (m *MockTokenAPI) Refresh(ctx context.Context, refreshToken string) (*session.Credential, error) {
	args := m.Called(ctx, refreshToken)
	var cred *session.Credential
	if v := args.Get(0); v != nil {
		cred = v.(*session.Credential)
	}
	return cred, args.Error(1)
}

func (m *MockTokenAPI) Profile(ctx context.Context) (*session.Identity, error) {
	args := m.Called(ctx)
	var identity *session.Identity
	if v := args.Get(0); v != nil {
		identity = v.(*session.Identity)
	}
	return identity, args.Error(1)
}

func (m *MockTokenAPI) Logout(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

// MockInviteAPI implements session.InviteAPI
type MockInviteAPI struct {
	mock.Mock
}

func (m *MockInviteAPI) ValidateInviteToken(ctx context.Context, token string) (*session.InviteInfo, error) {
	args := m.Called(ctx, token)
	var info *session.InviteInfo
	if v := args.Get(0); v != nil {
		info = v.(*session.InviteInfo)
	}
	return info, args.Error(1)
}

func (m *MockInviteAPI) AcceptInvite(ctx context.Context, token, newPassword string) error {
	args := m.Called(ctx, token, newPassword)
	return args.Error(0)
}

// MockResetAPI implements session.PasswordResetAPI
type MockResetAPI struct {
	mock.Mock
}

func (m *MockResetAPI) RequestPasswordReset(ctx context.Context, email, tenantID string) error {
	args := m.Called(ctx, email, tenantID)
	return args.Error(0)
}

func (m *MockResetAPI) ResetPassword(ctx context.Context, token, newPassword string) error {
	args := m.Called(ctx, token, newPassword)
	return args.Error(0)
}

// MockLoginService implements session.LoginService
type MockLoginService struct {
	mock.Mock
}

func (m *MockLoginService) Login(ctx context.Context, username, password, tenantID string) (session.Snapshot, error) {
	args := m.Called(ctx, username, password, tenantID)
	return args.Get(0).(session.Snapshot), args.Error(1)
}

// recordingNavigator captures navigation effects.
type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// capturingSink collects activity events.
type capturingSink struct {
	mu     sync.Mutex
	events []session.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, event session.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingSink) Events() []session.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.ActivityEvent(nil), c.events...)
}

// silentLogger keeps test output clean.
type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

// failingStore always errors, to exercise the fallback path.
type failingStore struct{}

func (failingStore) Save(context.Context, *session.Credential) error { return assertErr }
func (failingStore) Load(context.Context) (*session.Credential, error) {
	return nil, assertErr
}
func (failingStore) Clear(context.Context) error { return assertErr }

var assertErr = session.ErrStorageUnavailable
