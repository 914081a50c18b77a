package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/httpx"
)

// RouteRegistrar adds one group's routes to r.
type RouteRegistrar func(r chi.Router)

type middlewareFunc = func(http.Handler) http.Handler

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 60 * time.Second
)

// routeGroup is a subtree under /api/v1. A group with no registrar is still mounted and answers
// 501 so clients can tell a disabled feature from a mistyped path.
type routeGroup struct {
	name        string
	path        string
	registrar   RouteRegistrar
	middlewares []middlewareFunc
}

type routerConfig struct {
	middlewares []middlewareFunc
	health      *HealthHandlers
	metrics     http.Handler

	// storefront routes sit directly under the prefix (/pricing:quote, /promotions:validate, ...)
	storefront RouteRegistrar
	groups     map[string]*routeGroup
}

type Option func(*routerConfig)

// NewRouter builds the HTTP surface: probes and metrics at the root, the storefront API below
// /api/v1 with customer identity on the context.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []middlewareFunc{middleware.RequestID, middleware.RealIP, middleware.Timeout(defaultTimeout)},
		groups: map[string]*routeGroup{
			"orders":   {name: "orders", path: "/orders"},
			"admin":    {name: "admin", path: "/admin"},
			"webhooks": {name: "webhooks", path: "/webhooks"},
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(apiPrefix, func(api chi.Router) {
		api.Use(CustomerMiddleware)

		if cfg.storefront != nil {
			api.Group(cfg.storefront)
		} else {
			for _, path := range []string{"/pricing:quote", "/promotions:validate", "/capacity/current"} {
				api.HandleFunc(path, notConfigured("storefront"))
			}
		}

		for _, name := range []string{"orders", "admin", "webhooks"} {
			group := cfg.groups[name]
			api.Route(group.path, func(sub chi.Router) {
				for _, mw := range group.middlewares {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if group.registrar != nil {
					group.registrar(sub)
					return
				}
				handler := notConfigured(group.name)
				sub.HandleFunc("/", handler)
				sub.HandleFunc("/*", handler)
			})
		}
	})
	return r
}

func notConfigured(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented",
			name+" routes are not enabled on this deployment", http.StatusNotImplemented))
	}
}

// WithMiddlewares appends global middleware, run after request id, real ip and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = h
	}
}

func WithStorefrontRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.storefront = reg
	}
}

func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups["orders"].registrar = reg
	}
}

func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups["admin"].registrar = reg
	}
}

// WithAdminMiddlewares guards the /admin group, typically with request signing.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		group := cfg.groups["admin"]
		group.middlewares = append(group.middlewares, mw...)
	}
}

func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups["webhooks"].registrar = reg
	}
}
