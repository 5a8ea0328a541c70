// Package session provides the client-side session and tenant resolution
// engine for multi-tenant web frontends: credential persistence, a token
// client for the auth backend, URL-based tenant resolution, a session state
// machine, route authorization, and the invite/password-reset token flows
// that bootstrap a session outside of normal login.
//
// Session lifecycle:
//   - Engine owns the authentication state machine. States cover
//     uninitialized, initializing, authenticated, unauthenticated,
//     refreshing, and logged-out flows, with an explicit transition graph so
//     illegal moves fail loudly instead of corrupting state.
//   - Engine is the only writer to the CredentialStore. Every other component
//     consumes immutable Snapshot values through Snapshot() or Subscribe().
//
// Tenant resolution:
//   - TenantResolver derives a tenant identifier from the current URL
//     (subdomain or path prefix) and fetches tenant metadata once the session
//     is authenticated. Fetches are last-request-wins: a completion for a
//     superseded tenant id is discarded, never committed.
//
// Route authorization:
//   - Authorize is a pure decision function over (Snapshot, TenantContext,
//     Policy). It returns a tagged Decision (pending, allow, or redirect);
//     the actual navigation is performed by the caller's effect layer, which
//     keeps the decision logic unit-testable without a navigation stack.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the Engine and the
//     token flows to describe login, refresh, logout, and invite events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     queue or metrics pipeline without blocking authentication.
package session
