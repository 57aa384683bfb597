package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsboard/opsboard/internal/platform/httpx"
	"github.com/opsboard/opsboard/internal/principal"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/session"
	"github.com/opsboard/opsboard/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	policy      *roles.Policy
	csrfManager *shared.CSRFManager
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, policy *roles.Policy, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = roles.DefaultPolicy()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		policy:      policy,
		csrfManager: csrf,
		validator:   validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/session", h.showSession)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/password", h.handlePassword)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Authenticated bool                 `json:"authenticated"`
	Principal     *principal.Principal `json:"principal,omitempty"`
	ExpiresAt     *time.Time           `json:"expiresAt,omitempty"`
	Redirect      string               `json:"redirect,omitempty"`
	CSRFToken     string               `json:"csrfToken"`
}

func (h *Handler) csrfToken(r *http.Request) string {
	if h.csrfManager == nil {
		return ""
	}
	id := shared.SessionIDFromContext(r.Context())
	if id == "" {
		return ""
	}
	return h.csrfManager.Token(id)
}

func (h *Handler) sessionBody(r *http.Request, m *session.Manager, p *principal.Principal) sessionResponse {
	resp := sessionResponse{CSRFToken: h.csrfToken(r)}
	if p == nil {
		return resp
	}
	resp.Authenticated = true
	resp.Principal = p
	resp.Redirect = h.policy.DefaultRouteForRole(p.Role)
	if expiresAt, ok := m.ExpiresAt(); ok {
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	if m == nil {
		httpx.JSON(w, http.StatusOK, sessionResponse{})
		return
	}
	httpx.JSON(w, http.StatusOK, h.sessionBody(r, m, m.GetSession(r.Context())))
}

func (h *Handler) decodeLogin(r *http.Request) (loginForm, error) {
	var form loginForm
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			return form, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return form, httpx.Classify(httpx.ErrValidation, err)
		}
		form.Email = r.PostFormValue("email")
		form.Password = r.PostFormValue("password")
	}
	form.Email = strings.TrimSpace(form.Email)
	if err := h.validator.Struct(form); err != nil {
		return form, httpx.Classify(httpx.ErrValidation, err)
	}
	return form, nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	m := session.FromContext(r.Context())
	if m == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	form, err := h.decodeLogin(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	p, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.InvalidCredentialsMessage)
		return
	}
	if err := m.SetSession(r.Context(), p); err != nil {
		h.logger.Error("persist session", slog.Int64("user_id", p.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
		return
	}
	if id := shared.SessionIDFromContext(r.Context()); id != "" {
		expiresAt, _ := m.ExpiresAt()
		if err := h.service.RegisterSession(r.Context(), id, p.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}
	h.logger.Info("login", slog.Int64("user_id", p.ID), slog.String("role", p.Role.String()))
	httpx.JSON(w, http.StatusOK, h.sessionBody(r, m, p))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if m := session.FromContext(r.Context()); m != nil {
		if err := m.SignOut(r.Context()); err != nil {
			h.logger.Warn("sign out", slog.Any("error", err))
		}
	}
	if id := shared.SessionIDFromContext(r.Context()); id != "" {
		if err := h.service.RemoveSession(r.Context(), id); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type passwordForm struct {
	Current string `json:"current" validate:"required"`
	Next    string `json:"next" validate:"required"`
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	p := session.Current(r.Context())
	if p == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sesión requerida")
		return
	}
	var form passwordForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
		return
	}
	err := h.service.UpdatePassword(r.Context(), p.ID, form.Current, form.Next)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrWeakPassword):
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "La contraseña actual no es correcta")
	default:
		h.logger.Error("update password", slog.Int64("user_id", p.ID), slog.Any("error", err))
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnavailable, err))
	}
}
