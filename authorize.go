package session

// Policy is the access declaration attached to a protected page.
type Policy struct {
	RequireAuth         bool
	RequiredRoles       []Role
	RequiredPermissions []string
}

// DecisionKind tags the outcome of an authorization check.
type DecisionKind string

const (
	// DecisionPending means session or tenant resolution has not settled;
	// render a loading placeholder, never guess.
	DecisionPending DecisionKind = "pending"
	// DecisionAllow means the page may render.
	DecisionAllow DecisionKind = "allow"
	// DecisionRedirect means navigate to Path instead of rendering.
	DecisionRedirect DecisionKind = "redirect"
)

// Decision is the tagged result of Authorize. For unauthorized redirects it
// carries the identity for the diagnostic display.
type Decision struct {
	Kind     DecisionKind
	Path     string
	Reason   string
	Identity *Identity
}

// Allowed reports whether the page may render.
func (d Decision) Allowed() bool {
	return d.Kind == DecisionAllow
}

// Authorize is the pure routing decision over session, tenant, and policy
// state for the page at path. Checks run in a fixed order and the first
// matching redirect wins:
//
//  1. an authenticated user on a login page goes to their landing page
//  2. a protected page without a session goes to the matching login page
//  3. a public page renders regardless of session
//  4. a role mismatch goes to the unauthorized page
//  5. a missing permission goes to the unauthorized page
//  6. otherwise the page renders
//
// The same inputs always produce the same decision; navigation is performed
// by a separate effect layer.
func Authorize(snap Snapshot, tc TenantContext, path string, pol Policy) Decision {
	if snap.Loading() || tc.Loading {
		return Decision{Kind: DecisionPending}
	}

	if IsLoginPath(path) && snap.Authenticated() {
		tenantID := snap.Identity.TenantID
		if tenantID == "" {
			tenantID = tc.TenantID
		}
		return Decision{
			Kind:   DecisionRedirect,
			Path:   LandingPathFor(snap.Identity.Role, tenantID),
			Reason: "already authenticated",
		}
	}

	if pol.RequireAuth && !snap.Authenticated() {
		return Decision{
			Kind:   DecisionRedirect,
			Path:   LoginPathFor(path),
			Reason: "authentication required",
		}
	}

	if !pol.RequireAuth && !snap.Authenticated() {
		return Decision{Kind: DecisionAllow}
	}

	if len(pol.RequiredRoles) > 0 && !roleAllowed(snap.Identity.Role, pol.RequiredRoles) {
		return Decision{
			Kind:     DecisionRedirect,
			Path:     PathUnauthorized,
			Reason:   "role not permitted",
			Identity: snap.Identity.Clone(),
		}
	}

	if missing := missingPermission(snap.Identity, pol.RequiredPermissions); missing != "" {
		return Decision{
			Kind:     DecisionRedirect,
			Path:     PathUnauthorized,
			Reason:   "missing permission: " + missing,
			Identity: snap.Identity.Clone(),
		}
	}

	return Decision{Kind: DecisionAllow}
}

func roleAllowed(role Role, required []Role) bool {
	for _, r := range required {
		if role == r {
			return true
		}
	}
	return false
}

func missingPermission(identity *Identity, required []string) string {
	for _, p := range required {
		if !identity.HasPermission(p) {
			return p
		}
	}
	return ""
}
