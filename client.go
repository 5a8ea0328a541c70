package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// CredentialSource supplies the current credential for bearer headers. The
// Engine owns the credential; the client only reads it through this hook.
type CredentialSource func() *Credential

// Client wraps the auth backend's HTTP contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     Logger
	creds      CredentialSource
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClientLogger overrides the client logger.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCredentialSource wires the hook the client uses to attach bearer
// credentials to authenticated requests.
func WithCredentialSource(src CredentialSource) ClientOption {
	return func(c *Client) {
		c.creds = src
	}
}

// NewClient creates a token client against the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Login exchanges credentials for a token pair plus the resolved identity.
// On 401-class rejections the backend's message is surfaced verbatim.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*Credential, *Identity, error) {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Username, validation.Required),
		validation.Field(&req.Password, validation.Required),
	); err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload")
	}

	status, body, err := c.do(ctx, http.MethodPost, "/auth/login", req, false)
	if err != nil {
		return nil, nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest {
		return nil, nil, invalidCredentialsError(errorMessage(body))
	}
	if status != http.StatusOK {
		return nil, nil, c.unexpectedStatus("login", status, body)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode login response")
	}
	if resp.AccessToken == "" {
		return nil, nil, goerrors.New("login response missing access token", goerrors.CategoryInternal)
	}

	return resp.credential(), resp.identity(resp.AccessToken), nil
}

// Refresh exchanges a refresh token for a new credential. A rejected
// refresh token is terminal for the session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, false)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, ErrRefreshExpired
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("refresh", status, body)
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode refresh response")
	}

	cred := &Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
	}
	// The backend may rotate the refresh token or keep it. Keep ours when
	// the response omits it.
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}

	return cred, nil
}

// Profile fetches the identity behind the current access token.
func (c *Client) Profile(ctx context.Context) (*Identity, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/auth/profile", nil, true)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		return nil, ErrSessionExpired
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("profile", status, body)
	}

	var resp profileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode profile response")
	}

	return resp.identity(c.currentAccessToken()), nil
}

// Logout tells the backend to revoke the refresh token. Best-effort: any
// failure is logged and swallowed, the caller clears local credentials
// regardless.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	status, body, err := c.do(ctx, http.MethodPost, "/auth/logout", logoutRequest{RefreshToken: refreshToken}, true)
	if err != nil {
		c.logger.Warn("server-side logout failed: %v", err)
		return nil
	}
	if status != http.StatusOK {
		c.logger.Warn("server-side logout returned %d: %s", status, errorMessage(body))
	}
	return nil
}

// ValidateInviteToken resolves an invite token to the prospective identity
// and its tenant. Failures are classified into expired, already-used, and
// invalid.
func (c *Client) ValidateInviteToken(ctx context.Context, token string) (*InviteInfo, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	path := "/auth/invite/validate?token=" + url.QueryEscape(token)
	status, body, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, ClassifyTokenError(fmt.Errorf("%s", errorMessage(body)))
	}

	var info InviteInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode invite info")
	}

	return &info, nil
}

// AcceptInvite activates the invited account with its initial password.
func (c *Client) AcceptInvite(ctx context.Context, token, newPassword string) error {
	req := acceptInviteRequest{Token: token, NewPassword: newPassword}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Token, validation.Required),
		validation.Field(&req.NewPassword, validation.Required, validation.Length(8, 0)),
	); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid invite acceptance payload")
	}

	status, body, err := c.do(ctx, http.MethodPost, "/auth/invite/accept", req, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return ClassifyTokenError(fmt.Errorf("%s", errorMessage(body)))
	}
	return nil
}

// RequestPasswordReset asks the backend to mail a reset token.
func (c *Client) RequestPasswordReset(ctx context.Context, email, tenantID string) error {
	req := passwordResetRequest{Email: email, TenantID: tenantID}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Email, validation.Required, is.Email),
	); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset request")
	}

	status, body, err := c.do(ctx, http.MethodPost, "/auth/password-reset/request", req, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.unexpectedStatus("password reset request", status, body)
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		c.logger.Debug("password reset request acknowledged: %s", resp.Message)
	}
	return nil
}

// ResetPassword finalizes a password reset with the mailed token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	req := passwordResetConfirm{Token: token, NewPassword: newPassword}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Token, validation.Required),
		validation.Field(&req.NewPassword, validation.Required, validation.Length(8, 0)),
	); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload")
	}

	status, body, err := c.do(ctx, http.MethodPost, "/auth/password-reset/confirm", req, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return ClassifyTokenError(fmt.Errorf("%s", errorMessage(body)))
	}
	return nil
}

// Tenant fetches authenticated tenant metadata.
func (c *Client) Tenant(ctx context.Context, id string) (*TenantMetadata, error) {
	if id == "" {
		return nil, goerrors.New("tenant id is required", goerrors.CategoryValidation)
	}

	status, body, err := c.do(ctx, http.MethodGet, "/tenants/"+url.PathEscape(id), nil, true)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrSessionExpired
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("tenant", status, body)
	}

	var meta TenantMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode tenant metadata")
	}
	return &meta, nil
}

// PublicTenant fetches the unauthenticated, limited tenant payload.
func (c *Client) PublicTenant(ctx context.Context, id string) (*PublicTenantInfo, error) {
	if id == "" {
		return nil, goerrors.New("tenant id is required", goerrors.CategoryValidation)
	}

	status, body, err := c.do(ctx, http.MethodGet, "/tenants/"+url.PathEscape(id)+"/public", nil, false)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("public tenant", status, body)
	}

	var info PublicTenantInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode public tenant info")
	}
	return &info, nil
}

func (c *Client) currentAccessToken() string {
	if c.creds == nil {
		return ""
	}
	if cred := c.creds(); cred != nil {
		return cred.AccessToken
	}
	return ""
}

// do performs a request and returns status plus raw body. Transport errors
// come back as the network taxonomy; HTTP status mapping is per call site.
func (c *Client) do(ctx context.Context, method, path string, payload any, authed bool) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request payload")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if token := c.currentAccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, networkError(method+" "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, networkError(method+" "+path, err)
	}

	return resp.StatusCode, body, nil
}

func (c *Client) unexpectedStatus(op string, status int, body []byte) error {
	c.logger.Error("%s returned unexpected status %d", op, status)
	return goerrors.New(fmt.Sprintf("%s failed with status %d", op, status), goerrors.CategoryOperation).
		WithMetadata(map[string]any{
			"status":  status,
			"message": errorMessage(body),
		})
}

// errorMessage extracts a human-readable message from a backend error body.
// The backend emits {"message": ...} with {"error": ...} and {"detail": ...}
// variants on older endpoints; plain-text bodies pass through as-is.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Error != "":
			return envelope.Error
		case envelope.Detail != "":
			return envelope.Detail
		}
	}

	return strings.TrimSpace(string(body))
}
