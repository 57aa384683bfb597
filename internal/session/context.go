package session

import (
	"context"

	"github.com/opsboard/opsboard/internal/principal"
)

type managerContextKey struct{}

// ContextWithManager stores the request's session manager in ctx.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerContextKey{}, m)
}

// FromContext extracts the session manager from ctx.
func FromContext(ctx context.Context) *Manager {
	m, _ := ctx.Value(managerContextKey{}).(*Manager)
	return m
}

// Current returns the principal of the request's session, or nil when the
// request carries no session or it is signed out.
func Current(ctx context.Context) *principal.Principal {
	m := FromContext(ctx)
	if m == nil {
		return nil
	}
	return m.GetSession(ctx)
}
