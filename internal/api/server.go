// Package api exposes accesskit over HTTP for the accesskitd daemon.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/unrolled/secure"

	"github.com/fernandezvara/accesskit"
)

// Options tunes the HTTP surface.
type Options struct {
	Production     bool
	TrustProxy     bool
	RequestTimeout time.Duration
	// LoginRateLimit is the number of login attempts allowed per client IP
	// and minute.
	LoginRateLimit int
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Metrics  *Metrics
}

// Server wires the service to chi handlers.
type Server struct {
	service *accesskit.Service
	mw      *accesskit.Middleware
	logger  zerolog.Logger
	opts    Options
}

// NewServer returns a server for service.
func NewServer(service *accesskit.Service, logger zerolog.Logger, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.LoginRateLimit <= 0 {
		opts.LoginRateLimit = 10
	}

	mwOpts := []accesskit.MiddlewareOption{accesskit.WithErrorHandler(writeError)}
	if opts.TrustProxy {
		mwOpts = append(mwOpts, accesskit.WithTrustedProxy())
	}

	return &Server{
		service: service,
		mw:      accesskit.NewMiddleware(service, mwOpts...),
		logger:  logger,
		opts:    opts,
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
		SSLRedirect:        s.opts.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !s.opts.Production,
	})

	r.Use(chimw.RequestID)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.opts.RequestTimeout))
	r.Use(secureMiddleware.Handler)
	r.Use(s.opts.Metrics.Middleware)
	r.Use(s.mw.InjectAuditContext())
	r.Use(requestIDToAudit)
	r.Use(s.mw.Authenticate())

	r.Get("/healthz", s.health)
	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.With(httprate.LimitByIP(s.opts.LoginRateLimit, time.Minute)).Post("/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.mw.RequireAuthenticated())
			r.Get("/me", s.me)
			r.Post("/logout", s.logout)
			r.Put("/profile", s.updateProfile)
			r.Delete("/account", s.deleteAccount)
		})
	})

	// Management endpoints are gated by the service on access_rules.
	r.Group(func(r chi.Router) {
		r.Use(s.mw.RequireAuthenticated())

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", s.listRoles)
			r.Post("/", s.createRole)
			r.Get("/{id}", s.getRole)
			r.Put("/{id}", s.updateRole)
			r.Delete("/{id}", s.deleteRole)
		})
		r.Route("/resources", func(r chi.Router) {
			r.Get("/", s.listResources)
			r.Post("/", s.createResource)
			r.Get("/{id}", s.getResource)
			r.Put("/{id}", s.updateResource)
			r.Delete("/{id}", s.deleteResource)
		})
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.listRules)
			r.Post("/", s.createRule)
			r.Get("/{id}", s.getRule)
			r.Put("/{id}", s.updateRule)
			r.Delete("/{id}", s.deleteRule)
		})
		r.Put("/principals/{id}/role", s.assignRole)
		r.Get("/audit", s.auditLog)
		r.Get("/stats", s.stats)
	})

	r.Route("/mock", s.mockRoutes)

	return r
}

// requestIDToAudit copies chi's request id into the audit context when the
// client did not send one.
func requestIDToAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if accesskit.GetRequestID(ctx) == "" {
			if id := chimw.GetReqID(ctx); id != "" {
				r = r.WithContext(accesskit.WithRequestID(ctx, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	report := s.service.Health(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// caller returns the authenticated principal of the request.
func caller(r *http.Request) *accesskit.Principal {
	return accesskit.GetPrincipal(r.Context())
}
