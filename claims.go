package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims is the subset of access token claims the client inspects.
// Tokens are otherwise opaque: the signature is never verified here, that
// is the backend's job. The peek only informs expiry awareness and the
// optional permission list.
type accessClaims struct {
	jwt.RegisteredClaims
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// peekClaims decodes an access token without verifying its signature.
// Returns nil for tokens that are not JWTs.
func peekClaims(token string) *accessClaims {
	if token == "" {
		return nil
	}

	claims := &accessClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

// tokenExpired reports whether an access token is visibly expired. Opaque
// (non-JWT) tokens or tokens without an exp claim are treated as live; the
// backend remains the authority either way.
func tokenExpired(token string, now time.Time) bool {
	claims := peekClaims(token)
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(now)
}

// permissionsFromToken extracts the permission list the backend embedded in
// the access token, if any.
func permissionsFromToken(token string) []string {
	claims := peekClaims(token)
	if claims == nil || len(claims.Permissions) == 0 {
		return nil
	}
	return append([]string(nil), claims.Permissions...)
}
