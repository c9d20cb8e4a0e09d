package accesskit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Migrations returns all database migrations required by BunStore.
// Use store.Migrate(ctx) or dbkit's Migrate with this list.
func Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "accesskit-001",
			Description: "Create roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name VARCHAR(50) NOT NULL UNIQUE,
                    description TEXT NOT NULL DEFAULT '',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "accesskit-002",
			Description: "Create resources table",
			SQL: `
                CREATE TABLE IF NOT EXISTS resources (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name VARCHAR(100) NOT NULL UNIQUE,
                    description TEXT NOT NULL DEFAULT '',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "accesskit-003",
			Description: "Create principals table",
			SQL: `
                CREATE TABLE IF NOT EXISTS principals (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    email VARCHAR(254) NOT NULL UNIQUE,
                    password_hash TEXT NOT NULL,
                    first_name VARCHAR(50) NOT NULL,
                    last_name VARCHAR(50) NOT NULL,
                    patronymic VARCHAR(50) NOT NULL DEFAULT '',
                    role_id UUID REFERENCES roles(id) ON DELETE SET NULL,
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    last_login_at TIMESTAMPTZ,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "accesskit-004",
			Description: "Create permission_rules table",
			SQL: `
                CREATE TABLE IF NOT EXISTS permission_rules (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
                    resource_id UUID NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
                    read_permission BOOLEAN NOT NULL DEFAULT FALSE,
                    read_all_permission BOOLEAN NOT NULL DEFAULT FALSE,
                    create_permission BOOLEAN NOT NULL DEFAULT FALSE,
                    update_permission BOOLEAN NOT NULL DEFAULT FALSE,
                    update_all_permission BOOLEAN NOT NULL DEFAULT FALSE,
                    delete_permission BOOLEAN NOT NULL DEFAULT FALSE,
                    delete_all_permission BOOLEAN NOT NULL DEFAULT FALSE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (role_id, resource_id)
                )`,
		},
		{
			ID:          "accesskit-005",
			Description: "Create sessions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS sessions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    principal_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
                    token VARCHAR(500) NOT NULL UNIQUE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    expires_at TIMESTAMPTZ NOT NULL,
                    ip_address TEXT NOT NULL DEFAULT '',
                    user_agent TEXT NOT NULL DEFAULT ''
                )`,
		},
		{
			ID:          "accesskit-006",
			Description: "Create access_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS access_audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    entity TEXT NOT NULL,
                    entity_id TEXT NOT NULL,
                    summary TEXT NOT NULL DEFAULT '',
                    ip_address TEXT NOT NULL DEFAULT '',
                    user_agent TEXT NOT NULL DEFAULT '',
                    request_id TEXT NOT NULL DEFAULT ''
                )`,
		},
		{
			ID:          "accesskit-007",
			Description: "Create lookup indexes",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_principals_role_id ON principals(role_id);
                CREATE INDEX IF NOT EXISTS idx_sessions_principal_id ON sessions(principal_id);
                CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
                CREATE INDEX IF NOT EXISTS idx_access_audit_log_timestamp ON access_audit_log(timestamp DESC);
                CREATE INDEX IF NOT EXISTS idx_access_audit_log_entity ON access_audit_log(entity, entity_id)`,
		},
	}
}

// Migrate applies pending migrations and returns the IDs it applied.
func (s *BunStore) Migrate(ctx context.Context) ([]string, error) {
	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return nil, NewError(ErrStorage, "migrations require a dbkit.DBKit instance")
	}
	result, err := db.Migrate(ctx, Migrations())
	if err != nil {
		return nil, classify("Migrate", err, ErrConflict)
	}
	applied := make([]string, 0, len(result.Applied))
	for _, m := range result.Applied {
		applied = append(applied, m.ID)
	}
	return applied, nil
}
