package sessiongate

import "context"

type navigationIDContextKey struct{}
type clientPathContextKey struct{}

// WithNavigationID attaches a navigation identifier to ctx. The Manager
// stamps it into audit events so a single page transition can be traced
// across the resolve, refresh, and cache subsystems.
//
//	Docs: docs/resolution.md
func WithNavigationID(ctx context.Context, navigationID string) context.Context {
	return context.WithValue(ctx, navigationIDContextKey{}, navigationID)
}

// WithClientPath attaches the path the caller is rendering to ctx. It is
// used for audit logging on operations that do not take a path argument,
// such as sign-out and device trust changes.
//
//	Docs: docs/resolution.md
func WithClientPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, clientPathContextKey{}, path)
}

func navigationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	navigationID, _ := ctx.Value(navigationIDContextKey{}).(string)
	return navigationID
}

func clientPathFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	path, _ := ctx.Value(clientPathContextKey{}).(string)
	return path
}
