// Package guard decides, per navigation, whether a view may render for the
// current session.
package guard

import (
	"context"
	"sync"

	"github.com/opsboard/opsboard/internal/principal"
	"github.com/opsboard/opsboard/internal/roles"
)

// Severity classifies a user notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is a message shown to the user.
type Notice struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ForbiddenMessage is shown when a route is denied for the principal's role.
const ForbiddenMessage = "No tienes permiso para acceder a esta sección"

// SessionSource yields the current principal or nil.
type SessionSource interface {
	GetSession(ctx context.Context) *principal.Principal
}

// Navigator reads and writes the addressable location.
type Navigator interface {
	CurrentRoute() string
	Redirect(route string)
}

// Notifier shows fire-and-forget notices.
type Notifier interface {
	Notify(n Notice)
}

// Observer is told about denials, e.g. for metrics. It may be nil.
type Observer interface {
	RouteDenied(route string, role roles.Role, reason string)
}

// Deny reasons reported to the Observer.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonAlreadySignedIn = "signed_in"
	ReasonForbidden       = "forbidden"
)

// Guard composes the session with the role policy.
type Guard struct {
	sessions SessionSource
	policy   *roles.Policy
	nav      Navigator
	notifier Notifier
	observer Observer

	mu   sync.Mutex
	last *decision
}

type decision struct {
	route       string
	principalID int64
	role        roles.Role
	allowed     bool
}

// New constructs a Guard. observer may be nil.
func New(sessions SessionSource, policy *roles.Policy, nav Navigator, notifier Notifier, observer Observer) *Guard {
	if policy == nil {
		policy = roles.DefaultPolicy()
	}
	return &Guard{sessions: sessions, policy: policy, nav: nav, notifier: notifier, observer: observer}
}

// EnsureAuthenticated reports whether route may render. When it may not, the
// guard redirects (and for forbidden routes notifies) at most once for a
// repeated evaluation of the same route and session. Side effects run after
// the guard's lock is released, so a Navigator may re-enter the guard.
func (g *Guard) EnsureAuthenticated(ctx context.Context, route string) bool {
	p := g.sessions.GetSession(ctx)
	d := decision{route: route}
	if p != nil {
		d.principalID = p.ID
		d.role = p.Role
	}

	g.mu.Lock()
	if last := g.last; last != nil && last.route == d.route && last.principalID == d.principalID && last.role == d.role {
		g.mu.Unlock()
		return last.allowed
	}
	var (
		target string
		notice *Notice
		reason string
	)
	switch {
	case p == nil && route != roles.RouteLogin:
		target, reason = roles.RouteLogin, ReasonUnauthenticated
	case p == nil:
		d.allowed = true
	case route == roles.RouteLogin:
		target, reason = g.policy.DefaultRouteForRole(p.Role), ReasonAlreadySignedIn
	case !g.policy.IsRouteAllowed(route, p.Role):
		target, reason = g.policy.DefaultRouteForRole(p.Role), ReasonForbidden
		if route != target {
			notice = &Notice{Severity: SeverityWarning, Message: ForbiddenMessage}
		}
	default:
		d.allowed = true
	}
	g.last = &d
	g.mu.Unlock()

	if d.allowed {
		return true
	}
	if notice != nil && g.notifier != nil {
		g.notifier.Notify(*notice)
	}
	g.redirect(target)
	if g.observer != nil {
		g.observer.RouteDenied(route, d.role, reason)
	}
	return false
}

// Reset forgets the previous evaluation.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.last = nil
	g.mu.Unlock()
}

func (g *Guard) redirect(target string) {
	if g.nav == nil || g.nav.CurrentRoute() == target {
		return
	}
	g.nav.Redirect(target)
}
