package accesskit

import (
	"net"
	"net/http"
	"strings"
)

// Middleware provides HTTP middleware for authentication and permission checking.
type Middleware struct {
	service        *Service
	authenticate   Authenticator
	extractToken   TokenExtractor
	errorHandler   func(http.ResponseWriter, *http.Request, error)
	trustForwarded bool
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// TokenExtractor returns the raw bearer token of a request, or "".
type TokenExtractor func(*http.Request) string

// OwnerExtractor returns the owner of the object a request targets. ok is
// false for collection level requests.
type OwnerExtractor func(*http.Request) (ownerID string, ok bool)

// NewMiddleware creates a new Middleware instance. Tokens are resolved with
// service.ResolveSession unless WithAuthenticator says otherwise.
//
// Example:
//
//	mw := accesskit.NewMiddleware(service)
//	router.Use(mw.InjectAuditContext(), mw.Authenticate())
//	router.With(mw.RequirePermission("orders", accesskit.OpRead, nil)).
//	    Get("/orders", listOrders)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		authenticate: service.Authenticator(),
		extractToken: BearerToken,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithAuthenticator replaces the token resolver.
func WithAuthenticator(fn Authenticator) MiddlewareOption {
	return func(m *Middleware) {
		m.authenticate = fn
	}
}

// WithTokenExtractor sets a custom function to read the token from a request.
func WithTokenExtractor(fn TokenExtractor) MiddlewareOption {
	return func(m *Middleware) {
		m.extractToken = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

// WithTrustedProxy makes InjectAuditContext take the client address from
// X-Forwarded-For and X-Real-IP. Only enable it behind a proxy that sets them.
func WithTrustedProxy() MiddlewareOption {
	return func(m *Middleware) {
		m.trustForwarded = true
	}
}

// BearerToken reads "Authorization: Bearer <token>". The scheme is case insensitive.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsInvalidSession(err):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case IsForbidden(err):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Authenticate resolves the bearer token and, on success, stores the
// AuthContext and a Checker in the request context. Requests without a
// usable token continue anonymously; a storage failure is answered with the
// error handler instead, so an outage is never mistaken for a logout.
//
// Example:
//
//	router.Use(mw.Authenticate())
func (m *Middleware) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := m.extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			auth, err := m.authenticate(ctx, token)
			if err != nil {
				if IsStorage(err) {
					m.errorHandler(w, r, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithAuth(ctx, auth)
			ctx = WithChecker(ctx, NewChecker(auth, m.service))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects anonymous requests with 401.
// It must run after Authenticate.
func (m *Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetAuth(r.Context()) == nil {
				m.errorHandler(w, r, ErrInvalidOrExpired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects requests whose principal may not perform op on
// resource. Anonymous requests get 401, denied ones 403. When owner is not
// nil and reports an owner, the check is object scoped.
//
// Example:
//
//	// For route /orders/{ownerID}
//	router.With(mw.RequirePermission("orders", accesskit.OpUpdate,
//	    accesskit.OwnerFromParam(chi.URLParam, "ownerID"))).
//	    Put("/orders/{ownerID}", updateOrder)
func (m *Middleware) RequirePermission(resource string, op Operation, owner OwnerExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			auth := GetAuth(ctx)
			if auth == nil {
				m.errorHandler(w, r, ErrInvalidOrExpired)
				return
			}

			var opts []DecisionOption
			if owner != nil {
				if ownerID, ok := owner(r); ok {
					opts = append(opts, WithOwner(ownerID))
				}
			}

			d, err := m.service.CheckPermission(ctx, auth.Principal, resource, op, opts...)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !d.Allowed() {
				m.errorHandler(w, r, NewError(ErrForbidden, "permission denied").
					WithResource(resource).
					WithOperation(op).
					WithPrincipal(auth.PrincipalID()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireMethodPermission is RequirePermission with the operation derived
// from the HTTP method. Unmapped methods are forbidden.
func (m *Middleware) RequireMethodPermission(resource string, owner OwnerExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := ParseOperationFromMethod(r.Method)
			if !ok {
				m.errorHandler(w, r, NewError(ErrForbidden, "method not mapped to an operation").
					WithResource(resource))
				return
			}
			m.RequirePermission(resource, op, owner)(next).ServeHTTP(w, r)
		})
	}
}

// OwnerFromParam builds an OwnerExtractor from a router's URL parameter
// accessor, e.g. chi.URLParam.
func OwnerFromParam(param func(*http.Request, string) string, name string) OwnerExtractor {
	return func(r *http.Request) (string, bool) {
		v := param(r, name)
		return v, v != ""
	}
}

// OwnerFromQuery reads the owner from a query parameter.
func OwnerFromQuery(name string) OwnerExtractor {
	return func(r *http.Request) (string, bool) {
		v := r.URL.Query().Get(name)
		return v, v != ""
	}
}

// InjectAuditContext creates middleware that extracts audit information from
// the request and adds it to the context, where sessions and audit entries
// pick it up.
//
// Example:
//
//	router.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ctx = WithIPAddress(ctx, m.clientIP(r))
			ctx = WithUserAgent(ctx, r.UserAgent())

			// Usually set by an upstream proxy
			if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *Middleware) clientIP(r *http.Request) string {
	if m.trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
