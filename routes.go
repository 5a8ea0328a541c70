package session

import (
	"strings"
)

// PathSystemAdmin is the reserved maintainer area prefix.
const PathSystemAdmin = "system-admin"

// PathUnauthorized is the generic unauthorized landing page.
const PathUnauthorized = "/unauthorized"

// authSegments are the auth-bootstrap routes. Pages under these segments
// establish a session and must never be gated on one.
var authSegments = map[string]struct{}{
	"login":           {},
	"invite":          {},
	"reset-password":  {},
	"forgot-password": {},
}

// firstSegment returns the first path segment of a URL path, or "".
func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return ""
	}
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return path
}

// isReservedSegment reports whether a path segment can never be a tenant id.
// The maintainer area and the auth-bootstrap segments are reserved.
func isReservedSegment(segment string) bool {
	if segment == "" || segment == PathSystemAdmin {
		return true
	}
	_, ok := authSegments[segment]
	return ok
}

// IsAuthRoute reports whether the path is one of the auth-bootstrap routes
// (login, invite, reset-password, forgot-password) in either the maintainer
// area or a tenant area.
func IsAuthRoute(path string) bool {
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if _, ok := authSegments[segment]; ok {
			return true
		}
	}
	return false
}

// IsLoginPath reports whether the path is a login page.
func IsLoginPath(path string) bool {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	return segments[len(segments)-1] == "login"
}

// LoginPathFor derives the login page appropriate for a path: the maintainer
// login for maintainer-area or root paths, the tenant login otherwise.
func LoginPathFor(path string) string {
	segment := firstSegment(path)
	if isReservedSegment(segment) {
		return "/" + PathSystemAdmin + "/login"
	}
	return "/" + segment + "/login"
}

// LandingPathFor derives the post-login landing page for a role.
func LandingPathFor(role Role, tenantID string) string {
	if role == RoleMaintainer {
		return "/" + PathSystemAdmin + "/dashboard"
	}
	if tenantID == "" {
		return "/" + PathSystemAdmin + "/login"
	}
	if role.IsAdmin() {
		return "/" + tenantID + "/admin"
	}
	return "/" + tenantID + "/chat"
}
