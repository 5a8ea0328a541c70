package session

import (
	"fmt"
)

// State enumerates the session lifecycle.
type State string

const (
	// StateUninitialized is the state before Init is called.
	StateUninitialized State = "uninitialized"
	// StateInitializing is in effect while stored credentials are resolved.
	StateInitializing State = "initializing"
	// StateAuthenticated means a valid identity has been established.
	StateAuthenticated State = "authenticated"
	// StateUnauthenticated means no credential, or initialization settled
	// without one.
	StateUnauthenticated State = "unauthenticated"
	// StateRefreshing is in effect while an expired access token is being
	// refreshed.
	StateRefreshing State = "refreshing"
	// StateLoggedOut is reached after a forced logout (terminal refresh
	// failure). A fresh login leaves it again.
	StateLoggedOut State = "logged_out"
)

// Snapshot is the immutable session value handed to subscribers and to the
// route authorizer. Readers never hold a reference to the Engine's mutable
// state.
type Snapshot struct {
	State    State
	Identity *Identity
}

// Authenticated reports whether the snapshot holds an established identity.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}

// Loading reports whether the session has not yet settled. The authorizer
// must render a loading placeholder, never guess an outcome, while this is
// true.
func (s Snapshot) Loading() bool {
	switch s.State {
	case StateUninitialized, StateInitializing, StateRefreshing:
		return true
	default:
		return false
	}
}

func (s Snapshot) String() string {
	who := "<anonymous>"
	if s.Identity != nil {
		who = fmt.Sprintf("%s (%s)", s.Identity.Username, s.Identity.Role)
	}
	return fmt.Sprintf("state=%s identity=%s", s.State, who)
}
