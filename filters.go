package accesskit

import "time"

// AuditLogFilter provides options for filtering audit log queries.
type AuditLogFilter struct {
	// Filter by actor who performed the action
	ActorID string

	// Filter by entity kind ("role", "resource", "rule", "principal")
	Entity string

	// Filter by entity ID
	EntityID string

	// Filter by action type
	Action string

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// DefaultAuditLimit caps audit queries that do not set a limit.
const DefaultAuditLimit = 100

// NewAuditLogFilter creates a new AuditLogFilter with default values.
func NewAuditLogFilter() AuditLogFilter {
	return AuditLogFilter{
		Limit: DefaultAuditLimit,
	}
}

// WithActor sets the actor ID filter.
func (f AuditLogFilter) WithActor(actorID string) AuditLogFilter {
	f.ActorID = actorID
	return f
}

// WithEntity sets the entity filter. An empty id matches every entity of the kind.
func (f AuditLogFilter) WithEntity(entity, entityID string) AuditLogFilter {
	f.Entity = entity
	f.EntityID = entityID
	return f
}

// WithAction sets the action filter.
func (f AuditLogFilter) WithAction(action AuditAction) AuditLogFilter {
	f.Action = string(action)
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditLogFilter) WithTimeRange(since, until time.Time) AuditLogFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithPagination sets both limit and offset.
func (f AuditLogFilter) WithPagination(limit, offset int) AuditLogFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}

func (f AuditLogFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultAuditLimit
	}
	return f.Limit
}

func (f AuditLogFilter) matches(entry *AuditLog) bool {
	if f.ActorID != "" && entry.ActorID != f.ActorID {
		return false
	}
	if f.Entity != "" && entry.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && entry.EntityID != f.EntityID {
		return false
	}
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && entry.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && entry.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// RuleFilter narrows ListRules. Empty fields match everything.
type RuleFilter struct {
	RoleID     string
	ResourceID string
}

// WithRole sets the role filter.
func (f RuleFilter) WithRole(roleID string) RuleFilter {
	f.RoleID = roleID
	return f
}

// WithResource sets the resource filter.
func (f RuleFilter) WithResource(resourceID string) RuleFilter {
	f.ResourceID = resourceID
	return f
}

func (f RuleFilter) matches(rule *PermissionRule) bool {
	if f.RoleID != "" && rule.RoleID != f.RoleID {
		return false
	}
	if f.ResourceID != "" && rule.ResourceID != f.ResourceID {
		return false
	}
	return true
}
