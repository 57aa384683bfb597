package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsboard/opsboard/internal/platform/httpx"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/session"
)

// Handler manages user directory endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	policy  *roles.Policy
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, policy *roles.Policy) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = roles.DefaultPolicy()
	}
	return &Handler{logger: logger, service: service, policy: policy}
}

// MountRoutes registers user routes. Only roles allowed on the users view may
// list the directory.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users", h.listUsers)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	p := session.Current(r.Context())
	if p == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sesión requerida")
		return
	}
	if !h.policy.IsRouteAllowed(roles.RouteUsers, p.Role) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		return
	}
	q := r.URL.Query()
	filter := Filter{
		Role:       roles.Parse(q.Get("role")),
		ActiveOnly: q.Get("active") == "true",
		Search:     q.Get("q"),
	}
	list, err := h.service.ListUsers(r.Context(), p.ID, filter)
	if err != nil {
		h.logger.Error("list users failed", slog.Int64("actor_id", p.ID), slog.Any("error", err))
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnavailable, err))
		return
	}
	if list == nil {
		list = []User{}
	}
	httpx.JSON(w, http.StatusOK, list)
}
