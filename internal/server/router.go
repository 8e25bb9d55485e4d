package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	gkmiddleware "github.com/terraconstructs/gatekeeper/internal/middleware"
	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/services/validation"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

// RouterOptions controls the construction of the gatekeeper HTTP router.
// IAMService and Validator are required; the rest have defaults.
type RouterOptions struct {
	IAMService  iam.Service
	Validator   validation.Validator
	DB          Pinger
	Logger      logrus.FieldLogger
	Metrics     *telemetry.Metrics
	Gatherer    prometheus.Gatherer
	CORSOptions *cors.Options
	Middleware  []func(http.Handler) http.Handler
	ExtraRoutes func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"WWW-Authenticate", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the gatekeeper handlers mounted. Every protected route declares the scopes
// it requires inline.
func NewRouter(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(telemetry.HTTPMetricsMiddleware(opts.Metrics))
	}

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	h := NewHandlers(opts.IAMService, opts.Validator, log)
	gate := gkmiddleware.NewGate(opts.IAMService, log)

	r.Get("/health", HandleHealth)
	r.Get("/ready", HandleReady(opts.DB))
	if opts.Gatherer != nil {
		r.Handle("/metrics", telemetry.Handler(opts.Gatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.HandleSignup)
		r.Post("/token", h.HandleToken)
		r.Post("/token/refresh", h.HandleRefresh)
		r.Post("/logout", h.HandleLogout)
		r.Post("/external/signup", h.HandleExternalSignup)
		r.Post("/external/token", h.HandleExternalToken)
		r.Post("/password/reset", h.HandlePasswordReset)
		r.Post("/password/reset/confirm", h.HandlePasswordResetConfirm)
		r.Get("/email/confirm", h.HandleEmailConfirm)

		r.With(gate.Require()).Post("/password/change", h.HandlePasswordChange)
		r.With(gate.Require()).Post("/email/verify", h.HandleEmailVerify)
	})

	r.Route("/user", func(r chi.Router) {
		r.With(gate.Require(auth.UsersGet)).Get("/me", h.HandleMe)
		r.With(gate.Require(auth.UsersUpdate)).Patch("/", h.HandleUpdateProfile)
		r.With(gate.Require(auth.UsersGetAll)).Get("/all", h.HandleListUsers)
	})

	r.Route("/admin", func(r chi.Router) {
		r.With(gate.RequireStaff(auth.RolesGetAll)).Get("/roles", h.HandleListRoles)
		r.With(gate.RequireStaff(auth.RolesCreate, auth.PermissionsGetAll)).Post("/roles", h.HandleCreateRole)
		r.With(gate.RequireStaff(auth.RolesGet)).Get("/roles/{id}", h.HandleGetRole)
		r.With(gate.RequireStaff(auth.RolesUpdate, auth.PermissionsGetAll)).Put("/roles/{id}/permissions", h.HandleSetRolePermissions)
		r.With(gate.RequireStaff(auth.RolesDelete)).Delete("/roles/{id}", h.HandleDeleteRole)
		r.With(gate.RequireStaff(auth.PermissionsGetAll)).Get("/permissions", h.HandleListPermissions)
		r.With(gate.RequireStaff(auth.UsersGetAll)).Get("/users", h.HandleListUsers)
		r.With(gate.RequireStaff(auth.UsersCreate, auth.RolesGet, auth.RolesGetAll)).Post("/users", h.HandleCreateUser)
	})

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// NewH2CHandler wraps the shared router with an h2c server to provide HTTP/2 over
// cleartext.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
