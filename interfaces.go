package accesskit

import (
	"context"
	"time"
)

// PrincipalStore persists principals (the credential store).
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	UpdatePrincipal(ctx context.Context, p *Principal) error
	TouchPrincipal(ctx context.Context, id string, at time.Time) error
	ClearRole(ctx context.Context, roleID string) error
	CountPrincipals(ctx context.Context, activeOnly bool) (int, error)
	// RoleInUse reports whether any principal references roleID.
	RoleInUse(ctx context.Context, roleID string) (bool, error)
}

// RoleStore persists roles.
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id string) error
}

// ResourceStore persists the resource catalog.
type ResourceStore interface {
	CreateResource(ctx context.Context, r *Resource) error
	GetResource(ctx context.Context, id string) (*Resource, error)
	GetResourceByName(ctx context.Context, name string) (*Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	UpdateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id string) error
}

// RuleStore persists permission rules.
type RuleStore interface {
	CreateRule(ctx context.Context, r *PermissionRule) error
	// InsertRuleIfAbsent inserts r unless a rule for the same role and
	// resource exists. It reports whether a row was inserted.
	InsertRuleIfAbsent(ctx context.Context, r *PermissionRule) (bool, error)
	GetRule(ctx context.Context, id string) (*PermissionRule, error)
	FindRule(ctx context.Context, roleID, resourceID string) (*PermissionRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]PermissionRule, error)
	UpdateRule(ctx context.Context, r *PermissionRule) error
	DeleteRule(ctx context.Context, id string) error
	DeleteRulesForRole(ctx context.Context, roleID string) error
	DeleteRulesForResource(ctx context.Context, resourceID string) error
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	// GetSessionByToken returns the session with its Principal loaded.
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	ExtendSession(ctx context.Context, id string, expiresAt time.Time) error
	DeleteSessionByToken(ctx context.Context, token string) (int64, error)
	DeleteSessionsForPrincipal(ctx context.Context, principalID string) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	ListSessions(ctx context.Context, principalID string) ([]Session, error)
}

// AuditStore persists the audit log.
type AuditStore interface {
	InsertAudit(ctx context.Context, entry *AuditLog) error
	ListAudit(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error)
}

// Store is the persistence contract of the service. BunStore backs it with
// PostgreSQL through dbkit; MemoryStore keeps everything in process.
type Store interface {
	PrincipalStore
	RoleStore
	ResourceStore
	RuleStore
	SessionStore
	AuditStore

	// Transaction runs fn against a store bound to a single transaction.
	// The transaction is rolled back when fn returns an error.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error
}

// PasswordHasher hashes and verifies secrets.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	// Verify reports whether secret matches digest. A malformed digest is a
	// mismatch, never an error.
	Verify(secret, digest string) bool
}

// RuleCache caches permission rule lookups keyed by role id and resource name.
// A cached entry may record that no rule exists.
type RuleCache interface {
	Get(ctx context.Context, roleID, resource string) (entry CachedRule, ok bool)
	Set(ctx context.Context, roleID, resource string, entry CachedRule)
	Invalidate(ctx context.Context) error
}

// CachedRule is a cache entry. Rule is nil when the lookup found nothing.
type CachedRule struct {
	Rule *PermissionRule `json:"rule,omitempty"`
}

// Authenticator resolves a raw bearer token into an AuthContext.
// Service.ResolveSession satisfies it.
type Authenticator func(ctx context.Context, rawToken string) (*AuthContext, error)
