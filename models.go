package accesskit

import (
	"time"

	"github.com/uptrace/bun"
)

// Principal is an account that can authenticate and be granted a role.
// Principals are never hard deleted; deactivation sets IsActive to false.
type Principal struct {
	bun.BaseModel `bun:"table:principals,alias:p"`

	ID           string     `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Email        string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash string     `bun:"password_hash,notnull" json:"-"`
	FirstName    string     `bun:"first_name,notnull" json:"first_name"`
	LastName     string     `bun:"last_name,notnull" json:"last_name"`
	Patronymic   string     `bun:"patronymic" json:"patronymic,omitempty"`
	RoleID       *string    `bun:"role_id,type:uuid" json:"role_id"`
	IsActive     bool       `bun:"is_active,notnull" json:"is_active"`
	LastLoginAt  *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// HasRole reports whether a role is assigned.
func (p *Principal) HasRole() bool {
	return p != nil && p.RoleID != nil && *p.RoleID != ""
}

// FullName returns "First Last" as shown in listings.
func (p *Principal) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Role is a named permission grouping referenced by principals and rules.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID          string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name        string    `bun:"name,notnull,unique" json:"name"`
	Description string    `bun:"description" json:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Resource is a protected business element, e.g. "orders".
type Resource struct {
	bun.BaseModel `bun:"table:resources,alias:res"`

	ID          string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name        string    `bun:"name,notnull,unique" json:"name"`
	Description string    `bun:"description" json:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// PermissionRule grants a role a set of flags on one resource.
// There is at most one rule per (role, resource); a missing rule denies everything.
type PermissionRule struct {
	bun.BaseModel `bun:"table:permission_rules,alias:pr"`

	ID         string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	RoleID     string    `bun:"role_id,notnull,type:uuid" json:"role_id"`
	ResourceID string    `bun:"resource_id,notnull,type:uuid" json:"resource_id"`
	Read       bool      `bun:"read_permission,notnull" json:"read_permission"`
	ReadAll    bool      `bun:"read_all_permission,notnull" json:"read_all_permission"`
	Create     bool      `bun:"create_permission,notnull" json:"create_permission"`
	Update     bool      `bun:"update_permission,notnull" json:"update_permission"`
	UpdateAll  bool      `bun:"update_all_permission,notnull" json:"update_all_permission"`
	Delete     bool      `bun:"delete_permission,notnull" json:"delete_permission"`
	DeleteAll  bool      `bun:"delete_all_permission,notnull" json:"delete_all_permission"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Has returns the value of a single flag.
func (r *PermissionRule) Has(p Permission) bool {
	if r == nil {
		return false
	}
	switch p {
	case PermRead:
		return r.Read
	case PermReadAll:
		return r.ReadAll
	case PermCreate:
		return r.Create
	case PermUpdate:
		return r.Update
	case PermUpdateAll:
		return r.UpdateAll
	case PermDelete:
		return r.Delete
	case PermDeleteAll:
		return r.DeleteAll
	}
	return false
}

// Set changes a single flag.
func (r *PermissionRule) Set(p Permission, value bool) {
	switch p {
	case PermRead:
		r.Read = value
	case PermReadAll:
		r.ReadAll = value
	case PermCreate:
		r.Create = value
	case PermUpdate:
		r.Update = value
	case PermUpdateAll:
		r.UpdateAll = value
	case PermDelete:
		r.Delete = value
	case PermDeleteAll:
		r.DeleteAll = value
	}
}

// Grant sets the given flags to true.
func (r *PermissionRule) Grant(perms ...Permission) *PermissionRule {
	for _, p := range perms {
		r.Set(p, true)
	}
	return r
}

// Granted returns the flags that are set, in storage column order.
func (r *PermissionRule) Granted() []Permission {
	var out []Permission
	for _, p := range AllPermissions {
		if r.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Session tracks an issued token server side so it can be revoked before
// the token itself expires.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID          string     `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PrincipalID string     `bun:"principal_id,notnull,type:uuid" json:"principal_id"`
	Principal   *Principal `bun:"rel:belongs-to,join:principal_id=id" json:"-"`
	Token       string     `bun:"token,notnull,unique" json:"-"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	ExpiresAt   time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	IPAddress   string     `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent   string     `bun:"user_agent" json:"user_agent,omitempty"`
}

// IsValid reports whether the session is still usable at now: it has not
// expired and its principal is loaded and active.
func (s *Session) IsValid(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.ExpiresAt.After(now) && s.Principal != nil && s.Principal.IsActive
}

// AuditLog records changes to roles, resources, rules and role assignments.
type AuditLog struct {
	bun.BaseModel `bun:"table:access_audit_log,alias:aal"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Timestamp time.Time `bun:"timestamp,notnull,default:current_timestamp" json:"timestamp"`

	// Who performed the action
	ActorID string `bun:"actor_id,notnull" json:"actor_id"`

	// What was done to which entity
	Action   string `bun:"action,notnull" json:"action"`
	Entity   string `bun:"entity,notnull" json:"entity"`
	EntityID string `bun:"entity_id,notnull" json:"entity_id"`
	Summary  string `bun:"summary" json:"summary,omitempty"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent string `bun:"user_agent" json:"user_agent,omitempty"`
	RequestID string `bun:"request_id" json:"request_id,omitempty"`
}

// AuditAction represents the type of action in the audit log.
type AuditAction string

const (
	AuditActionCreated  AuditAction = "created"
	AuditActionUpdated  AuditAction = "updated"
	AuditActionDeleted  AuditAction = "deleted"
	AuditActionAssigned AuditAction = "assigned"
)

// Audited entity kinds.
const (
	EntityRole      = "role"
	EntityResource  = "resource"
	EntityRule      = "rule"
	EntityPrincipal = "principal"
)

// AuditEntry is used to create new audit log entries.
type AuditEntry struct {
	ActorID   string
	Action    AuditAction
	Entity    string
	EntityID  string
	Summary   string
	IPAddress string
	UserAgent string
	RequestID string
}

// ToModel converts an AuditEntry to an AuditLog model.
func (e *AuditEntry) ToModel(now time.Time) *AuditLog {
	return &AuditLog{
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Summary:   e.Summary,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		RequestID: e.RequestID,
		Timestamp: now,
	}
}
