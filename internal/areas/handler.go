package areas

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsboard/opsboard/internal/platform/httpx"
	"github.com/opsboard/opsboard/internal/principal"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/session"
)

// Handler exposes area queries and administration over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the API routes. Every route requires a signed-in
// principal.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requirePrincipal)
		r.Get("/areas", h.listTree)
		r.Get("/areas/editable", h.listEditable)
		r.Get("/areas/capturable", h.listCapturable)
		r.With(requireRole(roles.Admin)).Post("/areas", h.createArea)
		r.With(requireRole(roles.Admin)).Post("/areas/{id}/deactivate", h.deactivateArea)
		r.Get("/roles/assignable", h.assignableRoles)
		r.Get("/users/{id}/editable", h.canEditUser)
		r.Post("/assignments/validate", h.validateAssignment)
		r.Post("/assignments", h.assign)
		r.Delete("/assignments/{userID}/{areaID}", h.unassign)
	})
}

func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session.Current(r.Context()) == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sesión requerida")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireRole(role roles.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := session.Current(r.Context())
			if p == nil || p.Role != role {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actor(r *http.Request) *principal.Principal {
	return session.Current(r.Context())
}

func (h *Handler) listTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.ActiveTree(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tree)
}

func (h *Handler) listEditable(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Authorizer().EditableAreasForUser(r.Context(), actor(r).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) listCapturable(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Authorizer().CapturableAreasForUser(r.Context(), actor(r).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) createArea(w http.ResponseWriter, r *http.Request) {
	var in NewArea
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
		return
	}
	created, err := h.service.CreateArea(r.Context(), actor(r).ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) deactivateArea(w http.ResponseWriter, r *http.Request) {
	areaID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeactivateArea(r.Context(), actor(r).ID, areaID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rolesResponse struct {
	Roles []roles.Role `json:"roles"`
}

func (h *Handler) assignableRoles(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Authorizer().AssignableRoles(r.Context(), actor(r).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rolesResponse{Roles: list})
}

type editableResponse struct {
	UserID   int64 `json:"userId"`
	Editable bool  `json:"editable"`
}

func (h *Handler) canEditUser(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	editable, err := h.service.Authorizer().CanUserEditUser(r.Context(), actor(r).ID, targetID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, editableResponse{UserID: targetID, Editable: editable})
}

type assignmentRequest struct {
	UserID     int64      `json:"userId" validate:"required,gt=0"`
	AreaID     int64      `json:"areaId" validate:"required,gt=0"`
	Role       roles.Role `json:"role"`
	CanCapture bool       `json:"canCapture"`
	CanEdit    bool       `json:"canEdit"`
	CanDelete  bool       `json:"canDelete"`
}

func (h *Handler) decodeAssignment(w http.ResponseWriter, r *http.Request) (assignmentRequest, bool) {
	var req assignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
		return req, false
	}
	return req, true
}

type validationResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) validateAssignment(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAssignment(w, r)
	if !ok {
		return
	}
	err := h.service.Authorizer().ValidateAreaAssignment(r.Context(), req.UserID, req.AreaID, req.Role)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, validationResponse{Valid: true})
	case errors.Is(err, ErrInvalidAssignment), errors.Is(err, ErrAreaInactive):
		httpx.JSON(w, http.StatusOK, validationResponse{Valid: false, Reason: err.Error()})
	default:
		h.fail(w, r, err)
	}
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAssignment(w, r)
	if !ok {
		return
	}
	err := h.service.AssignArea(r.Context(), actor(r).ID, Assignment{
		UserID:     req.UserID,
		AreaID:     req.AreaID,
		Role:       req.Role,
		CanCapture: req.CanCapture,
		CanEdit:    req.CanEdit,
		CanDelete:  req.CanDelete,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	areaID, ok := pathID(w, r, "areaID")
	if !ok {
		return
	}
	if err := h.service.UnassignArea(r.Context(), actor(r).ID, userID, areaID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return v, true
}

// fail maps domain errors to problems. Anything unrecognised is a data-fetch
// failure and answers 503 without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var kind error
	switch {
	case errors.Is(err, ErrForbidden):
		kind = httpx.ErrForbidden
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAreaNotFound), errors.Is(err, ErrAssignmentNotFound):
		kind = httpx.ErrNotFound
	case errors.Is(err, ErrDuplicatePath), errors.Is(err, ErrPathConflict):
		kind = httpx.ErrDuplicate
	case errors.Is(err, ErrInvalidSegment), errors.Is(err, ErrInvalidAssignment), errors.Is(err, ErrAreaInactive):
		kind = httpx.ErrValidation
	default:
		kind = httpx.ErrUnavailable
		h.logger.Error("area request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, httpx.Classify(kind, err))
}
