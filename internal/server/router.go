package server

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentdesk/agentdesk/internal/handler"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Root          *handler.Handler
	Health        *handler.HealthHandler
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Projects      *handler.ProjectHandler
	Conversations *handler.ConversationHandler
	MCP           *handler.MCPHandler
}

// RouterConfig holds everything needed to build the route tree.
type RouterConfig struct {
	Logger    *slog.Logger
	Handlers  Handlers
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
	Security  middleware.SecurityConfig
	CORS      middleware.CORSConfig
	Metrics   metrics.Recorder
	// MetricsHandler serves /metrics. The route is not mounted when nil.
	MetricsHandler http.Handler
	// TracingName names the otelhttp server spans. Tracing is off when empty.
	TracingName string
	// TrustedProxies may report the client address through X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// NewRouter builds the chi route tree with the global middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	h := cfg.Handlers

	r := chi.NewRouter()

	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))

	// Probes and scraping (no auth required)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}
	r.Get("/", h.Root.Index)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(cfg.RateLimit))
		r.Post("/register", h.Auth.Register)
		r.Post("/signin", h.Auth.SignIn)
		r.Post("/signout", h.Auth.SignOut)
		r.With(middleware.Auth(cfg.Auth)).Get("/session", h.Auth.Session)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth))
		r.Use(middleware.RateLimitUser(cfg.RateLimit))

		r.Route("/api/user", func(r chi.Router) {
			r.Get("/profile", h.Users.GetProfile)
			r.Patch("/profile", h.Users.UpdateProfile)
			r.Delete("/profile", h.Users.DeleteProfile)
			r.Get("/projects", h.Users.ListProjects)
			r.Get("/accounts", h.Users.ListAccounts)
			r.Delete("/accounts/{id}", h.Users.UnlinkAccount)
			r.Get("/activity", h.Users.ListActivity)
		})

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", h.Projects.List)
			r.Post("/", h.Projects.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Projects.Get)
				r.Patch("/", h.Projects.Update)
				r.Delete("/", h.Projects.Delete)
				r.Get("/metadata", h.Projects.GetMetadata)
				r.Put("/metadata", h.Projects.PutMetadata)

				r.Route("/conversations", func(r chi.Router) {
					r.Get("/", h.Conversations.List)
					r.Post("/", h.Conversations.Create)
					r.Route("/{cid}", func(r chi.Router) {
						r.Get("/", h.Conversations.Get)
						r.Delete("/", h.Conversations.Delete)
						r.Post("/messages", h.Conversations.AppendMessages)
						r.Get("/loop", h.Conversations.Loop)
						r.Post("/loop/approve", h.Conversations.ApproveLoop)
						r.Post("/loop/reset", h.Conversations.ResetLoop)
					})
				})

				r.Route("/mcp-configs", func(r chi.Router) {
					r.Get("/", h.MCP.List)
					r.Post("/", h.MCP.Create)
					r.Patch("/{mid}", h.MCP.Update)
					r.Delete("/{mid}", h.MCP.Delete)
					r.Post("/{mid}/probe", h.MCP.Probe)
				})
			})
		})
	})

	r.NotFound(h.Root.NotFound)
	r.MethodNotAllowed(h.Root.MethodNotAllowed)

	if cfg.TracingName == "" {
		return r
	}
	return otelhttp.NewHandler(r, cfg.TracingName)
}
