package app

import (
	"net/http"
	"strings"

	"github.com/opsboard/opsboard/internal/guard"
	"github.com/opsboard/opsboard/internal/platform/httpx"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/session"
)

// requestNavigator records the redirect chosen by the guard instead of
// performing it; the client follows it.
type requestNavigator struct {
	current  string
	redirect string
}

func (n *requestNavigator) CurrentRoute() string { return n.current }

func (n *requestNavigator) Redirect(route string) {
	n.redirect = route
	n.current = route
}

type navigationResponse struct {
	Route    string          `json:"route"`
	Allowed  bool            `json:"allowed"`
	Redirect string          `json:"redirect,omitempty"`
	Notices  []guard.Notice  `json:"notices"`
	Items    []roles.NavItem `json:"items"`
}

// NavigationHandler runs the route guard for ?route= against the request's
// session. ?from= names the route the client is showing, so a redirect to it
// is skipped. Every request is its own navigation event: the guard is built
// per request and the client always receives the redirect and notices for
// the route it asked for. Repeat suppression within one navigation stays
// with the client-side guard.
func NavigationHandler(policy *roles.Policy, observer guard.Observer) http.HandlerFunc {
	if policy == nil {
		policy = roles.DefaultPolicy()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		route := strings.TrimSpace(r.URL.Query().Get("route"))
		if route == "" {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "route requerida")
			return
		}
		m := session.FromContext(r.Context())
		if m == nil {
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		box := noticesFromContext(r.Context())
		if box == nil {
			box = &noticeBox{}
		}
		nav := &requestNavigator{current: strings.TrimSpace(r.URL.Query().Get("from"))}

		g := guard.New(m, policy, nav, box, observer)
		allowed := g.EnsureAuthenticated(r.Context(), route)

		resp := navigationResponse{
			Route:    route,
			Allowed:  allowed,
			Redirect: nav.redirect,
			Notices:  box.list(),
			Items:    []roles.NavItem{},
		}
		if p := m.GetSession(r.Context()); p != nil {
			resp.Items = policy.NavItems(p.Role)
		}
		httpx.JSON(w, http.StatusOK, resp)
	}
}
