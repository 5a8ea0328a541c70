package session

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
	TextCodeRefreshExpired     = "REFRESH_EXPIRED"
	TextCodeNetwork            = "NETWORK_ERROR"
	TextCodePermissionDenied   = "PERMISSION_DENIED"
	TextCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenAlreadyUsed   = "TOKEN_ALREADY_USED"
)

// ErrInvalidCredentials is returned when the backend rejects a login attempt.
// The backend's message is considered safe for user display and is carried
// verbatim on clones of this error.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired is returned when the access token no longer authorizes
// profile fetches. Recoverable via exactly one refresh attempt.
var ErrSessionExpired = goerrors.New("session expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshExpired is returned when the refresh token itself is rejected.
// Terminal for the session: the engine clears credentials and forces logout.
var ErrRefreshExpired = goerrors.New("refresh token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrNetwork wraps transport failures. Transient; never retried automatically.
var ErrNetwork = goerrors.New("network error", goerrors.CategoryOperation).
	WithTextCode(TextCodeNetwork)

// ErrPermissionDenied is not an auth failure; it always results in a
// redirect decision, never an inline error.
var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuth).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// ErrStorageUnavailable signals the durable credential store is unusable.
// Non-fatal: the store layer degrades to in-memory credentials.
var ErrStorageUnavailable = goerrors.New("credential storage unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeStorageUnavailable)

// ErrTokenInvalid is returned for malformed or unknown invite/reset tokens.
var ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned for expired invite/reset tokens.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenAlreadyUsed is returned for single-use tokens that were consumed.
var ErrTokenAlreadyUsed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenAlreadyUsed).
	WithCode(goerrors.CodeConflict)

// ErrInvalidTransition is returned when a requested session state change is
// not allowed by the transition graph.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryConflict).
	WithTextCode("INVALID_SESSION_TRANSITION").
	WithCode(goerrors.CodeConflict)

// HasTextCode reports whether err (or anything it wraps) carries the given
// structured text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsInvalidCredentials reports whether err represents a rejected login.
func IsInvalidCredentials(err error) bool {
	return HasTextCode(err, TextCodeInvalidCredentials)
}

// IsSessionExpired reports whether err represents an expired access token.
func IsSessionExpired(err error) bool {
	return HasTextCode(err, TextCodeSessionExpired)
}

// IsRefreshExpired reports whether err represents a dead refresh token.
func IsRefreshExpired(err error) bool {
	return HasTextCode(err, TextCodeRefreshExpired)
}

// IsNetworkError reports whether err represents a transport failure.
func IsNetworkError(err error) bool {
	return HasTextCode(err, TextCodeNetwork)
}

// IsStorageUnavailable reports whether err came from a degraded store.
func IsStorageUnavailable(err error) bool {
	return HasTextCode(err, TextCodeStorageUnavailable)
}

// ClassifyTokenError maps the backend's free-text invite/reset token errors
// onto the structured taxonomy. The backend emits prose bodies, so the
// mapping matches on the documented substrings: "expired" and
// "already been used". Anything else is an invalid token.
//
// TODO: replace the substring matching once the backend emits structured
// error codes for token validation failures.
func ClassifyTokenError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())

	var base *goerrors.Error
	switch {
	case strings.Contains(msg, "already been used"):
		base = ErrTokenAlreadyUsed
	case strings.Contains(msg, "expired"):
		base = ErrTokenExpired
	default:
		base = ErrTokenInvalid
	}

	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = err
	return clone
}

// invalidCredentialsError clones ErrInvalidCredentials carrying the backend
// message verbatim for user display.
func invalidCredentialsError(serverMessage string) error {
	if serverMessage == "" {
		return ErrInvalidCredentials
	}
	clone := ErrInvalidCredentials.Clone()
	if clone == nil {
		return ErrInvalidCredentials
	}
	clone.Message = serverMessage
	clone.Source = ErrInvalidCredentials
	return clone
}

// networkError wraps a transport failure with the operation that failed.
func networkError(op string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, fmt.Sprintf("%s request failed", op)).
		WithTextCode(TextCodeNetwork)
}
