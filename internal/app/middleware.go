package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/unrolled/secure"

	"github.com/opsboard/opsboard/internal/guard"
	"github.com/opsboard/opsboard/internal/observability"
	"github.com/opsboard/opsboard/internal/platform/httpx"
	"github.com/opsboard/opsboard/internal/session"
	"github.com/opsboard/opsboard/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger      *slog.Logger
	Config      *Config
	Sessions    *session.Provider
	CSRFManager *shared.CSRFManager
	Metrics     *observability.Metrics
}

func (c MiddlewareConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// MiddlewareStack installs the opsboard middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	rate := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.APIRateLimit > 0 {
			rate = cfg.Config.APIRateLimit
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.logger().Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(rate, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		SessionMiddleware(cfg),
		CSRFMiddleware(cfg),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// SessionMiddleware binds the session cookie to a per-request session.Manager.
// A missing or malformed cookie gets a fresh random id. The manager is closed
// when the request ends; the stored record outlives it.
func SessionMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	cookieName := "opsboard_session"
	if cfg.Config != nil && cfg.Config.SessionCookie != "" {
		cookieName = cfg.Config.SessionCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   cfg.Config.IsProduction(),
					SameSite: http.SameSiteLaxMode,
				})
			}

			m := cfg.Sessions.Open(id)
			defer m.Close()

			box := &noticeBox{}
			sub := m.OnExpired(func(e session.Expired) {
				box.Notify(guard.Notice{Severity: guard.SeverityWarning, Message: ExpiredMessage})
				cfg.Metrics.SessionExpired()
				cfg.logger().Info("session expired",
					slog.Int64("user_id", e.PrincipalID),
					slog.Time("expires_at", e.ExpiresAt))
			})
			defer sub.Unsubscribe()

			ctx := shared.ContextWithSessionID(r.Context(), id)
			ctx = session.ContextWithManager(ctx, m)
			ctx = contextWithNotices(ctx, box)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFMiddleware rejects mutating requests whose token does not match the
// session id.
func CSRFMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(shared.CSRFHeader)
			if token == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
				token = r.PostFormValue(shared.CSRFFormField)
			}
			if err := cfg.CSRFManager.VerifyToken(shared.SessionIDFromContext(r.Context()), token); err != nil {
				cfg.logger().Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "token CSRF inválido")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
