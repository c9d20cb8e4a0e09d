package accesskit

import (
	"context"
)

type ctxKey int

const (
	contextKeyAuth ctxKey = iota
	contextKeyActorID
	contextKeyIPAddress
	contextKeyUserAgent
	contextKeyRequestID
	contextKeyChecker
)

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// AuthContext is the result of resolving a bearer token: who the caller is,
// which role they hold (nil when none is assigned) and the session used.
type AuthContext struct {
	Principal *Principal
	Role      *Role
	Session   *Session
	Token     string
}

// PrincipalID returns the authenticated principal id, or "" for a nil context.
func (a *AuthContext) PrincipalID() string {
	if a == nil || a.Principal == nil {
		return ""
	}
	return a.Principal.ID
}

// RoleName returns the role name, or "" when no role is assigned.
func (a *AuthContext) RoleName() string {
	if a == nil || a.Role == nil {
		return ""
	}
	return a.Role.Name
}

// WithAuth adds an AuthContext to the context.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, contextKeyAuth, auth)
}

// GetAuth returns the resolved caller, nil for anonymous requests.
func GetAuth(ctx context.Context) *AuthContext {
	a, _ := ctx.Value(contextKeyAuth).(*AuthContext)
	return a
}

// GetPrincipal retrieves the authenticated principal from context.
func GetPrincipal(ctx context.Context) *Principal {
	if a := GetAuth(ctx); a != nil {
		return a.Principal
	}
	return nil
}

// WithActorID records who performs a mutation when it differs from the
// authenticated principal (system jobs, impersonation).
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeyActorID, actorID)
}

// GetActorID returns the explicit actor, or the authenticated principal id.
func GetActorID(ctx context.Context) string {
	if actor := stringValue(ctx, contextKeyActorID); actor != "" {
		return actor
	}
	return GetAuth(ctx).PrincipalID()
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyIPAddress, ip)
}

func GetIPAddress(ctx context.Context) string { return stringValue(ctx, contextKeyIPAddress) }

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

func GetUserAgent(ctx context.Context) string { return stringValue(ctx, contextKeyUserAgent) }

// WithRequestID tags audit entries and sessions created under ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

func GetRequestID(ctx context.Context) string { return stringValue(ctx, contextKeyRequestID) }

// WithChecker stores the request-bound Checker; Authenticate sets it.
func WithChecker(ctx context.Context, checker *Checker) context.Context {
	return context.WithValue(ctx, contextKeyChecker, checker)
}

// FromContext returns the request's Checker, nil for anonymous requests.
func FromContext(ctx context.Context) *Checker {
	c, _ := ctx.Value(contextKeyChecker).(*Checker)
	return c
}

// AuditContext is the request metadata copied onto audit entries.
type AuditContext struct {
	ActorID   string
	IPAddress string
	UserAgent string
	RequestID string
}

// GetAuditContext collects the audit metadata carried by ctx.
func GetAuditContext(ctx context.Context) AuditContext {
	return AuditContext{
		ActorID:   GetActorID(ctx),
		IPAddress: GetIPAddress(ctx),
		UserAgent: GetUserAgent(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// WithAuditContext stores the non-empty fields of ac.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	set := []struct {
		key   ctxKey
		value string
	}{
		{contextKeyActorID, ac.ActorID},
		{contextKeyIPAddress, ac.IPAddress},
		{contextKeyUserAgent, ac.UserAgent},
		{contextKeyRequestID, ac.RequestID},
	}
	for _, kv := range set {
		if kv.value != "" {
			ctx = context.WithValue(ctx, kv.key, kv.value)
		}
	}
	return ctx
}
