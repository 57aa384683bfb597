package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/opsboard/opsboard/internal/areas"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/observability"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/session"
	"github.com/opsboard/opsboard/internal/shared"
	"github.com/opsboard/opsboard/internal/users"
	"github.com/opsboard/opsboard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Policy       *roles.Policy
	Sessions     *session.Provider
	CSRFManager  *shared.CSRFManager
	AuthHandler  *auth.Handler
	AreasHandler *areas.Handler
	UsersHandler *users.Handler
	JobHandler   *jobs.Handler
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with opsboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:      params.Logger,
			Config:      params.Config,
			Sessions:    params.Sessions,
			CSRFManager: params.CSRFManager,
			Metrics:     params.Metrics,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		loginLimit := 10
		if params.Config != nil && params.Config.LoginRateLimit > 0 {
			loginLimit = params.Config.LoginRateLimit
		}
		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.LimitByIP(loginLimit, time.Minute))
			params.AuthHandler.MountRoutes(r)
		})
		r.Route("/api", func(r chi.Router) {
			r.Get("/navigation", NavigationHandler(params.Policy, params.Metrics))
			if params.AreasHandler != nil {
				params.AreasHandler.MountRoutes(r)
			}
			if params.UsersHandler != nil {
				params.UsersHandler.MountRoutes(r)
			}
		})
	})

	return r
}
