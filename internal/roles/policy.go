package roles

// Route identifiers for the dashboard views.
const (
	RouteLogin         = "login"
	RouteDashboard     = "dashboard"
	RouteCapture       = "capture"
	RouteTargets       = "targets"
	RouteValidation    = "validation"
	RouteVisualization = "visualizacion"
	RouteAirportInfo   = "airport-info"
	RouteIndicators    = "indicators"
	RouteUsers         = "users"
	RouteAreas         = "areas"
	RouteProfile       = "profile"
)

var fallbackRoutes = []string{RouteDashboard}

// Policy maps each role to the routes it may open. Slice order is a priority
// ranking used to pick the landing route.
type Policy struct {
	table map[Role][]string
}

// NewPolicy builds a Policy from table. The slices are copied.
func NewPolicy(table map[Role][]string) *Policy {
	copied := make(map[Role][]string, len(table))
	for role, routes := range table {
		copied[role] = append([]string(nil), routes...)
	}
	return &Policy{table: copied}
}

// DefaultPolicy returns the production route table.
func DefaultPolicy() *Policy {
	return NewPolicy(map[Role][]string{
		Admin: {
			RouteDashboard, RouteVisualization, RouteCapture, RouteTargets, RouteValidation,
			RouteIndicators, RouteUsers, RouteAreas, RouteAirportInfo, RouteProfile,
		},
		Director: {
			RouteDashboard, RouteVisualization, RouteAirportInfo, RouteValidation, RouteTargets, RouteUsers, RouteProfile,
		},
		Subdirector: {
			RouteDashboard, RouteVisualization, RouteCapture, RouteTargets, RouteValidation, RouteAirportInfo, RouteUsers, RouteProfile,
		},
		Capturista: {
			RouteDashboard, RouteCapture, RouteAirportInfo, RouteProfile,
		},
	})
}

// RoutesForRole returns the ordered routes role may open. None and roles
// missing from the table get the dashboard only.
func (p *Policy) RoutesForRole(role Role) []string {
	routes, ok := p.table[role]
	if !ok || len(routes) == 0 {
		return append([]string(nil), fallbackRoutes...)
	}
	return append([]string(nil), routes...)
}

// DefaultRouteForRole returns the landing route for role.
func (p *Policy) DefaultRouteForRole(role Role) string {
	routes := p.RoutesForRole(role)
	if role == Capturista && contains(routes, RouteCapture) {
		return RouteCapture
	}
	return routes[0]
}

// IsRouteAllowed reports whether role may open route.
func (p *Policy) IsRouteAllowed(route string, role Role) bool {
	return contains(p.RoutesForRole(role), route)
}

// NavItem is one entry of the navigation menu.
type NavItem struct {
	Route string `json:"route"`
	Label string `json:"label"`
}

var labels = map[string]string{
	RouteDashboard:     "Inicio",
	RouteCapture:       "Captura",
	RouteTargets:       "Metas",
	RouteValidation:    "Validación",
	RouteVisualization: "Visualización",
	RouteAirportInfo:   "Información del aeropuerto",
	RouteIndicators:    "Indicadores",
	RouteUsers:         "Usuarios",
	RouteAreas:         "Áreas",
	RouteProfile:       "Mi perfil",
}

// NavItems returns the menu entries visible to role, in table order.
func (p *Policy) NavItems(role Role) []NavItem {
	routes := p.RoutesForRole(role)
	items := make([]NavItem, 0, len(routes))
	for _, route := range routes {
		label, ok := labels[route]
		if !ok {
			label = route
		}
		items = append(items, NavItem{Route: route, Label: label})
	}
	return items
}

func contains(routes []string, route string) bool {
	for _, r := range routes {
		if r == route {
			return true
		}
	}
	return false
}
