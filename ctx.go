package session

import (
	"context"
)

var identityCtxKey = &contextKey{"identity"}
var snapshotCtxKey = &contextKey{"snapshot"}

type contextKey struct {
	name string
}

// WithIdentityContext sets the Identity in the given context.
func WithIdentityContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*Identity)
	return raw, ok
}

// WithSnapshotContext sets the session Snapshot in the given context.
func WithSnapshotContext(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, snapshotCtxKey, snap)
}

// SnapshotFromContext finds the session snapshot from the context.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	raw, ok := ctx.Value(snapshotCtxKey).(Snapshot)
	return raw, ok
}

// Can is a convenience function to check a permission directly from the
// context.
func Can(ctx context.Context, permission string) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}
	return identity.HasPermission(permission)
}

// HasRole checks the context identity's role.
func HasRole(ctx context.Context, role Role) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}
	return identity.Role == role
}
