package accesskit

import (
	"context"
	"strings"
)

// RoleInput creates or replaces a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description"`
}

// ============================================================================
// ROLE MANAGEMENT
// ============================================================================

// ListRoles returns every role ordered by name. Requires access_rules/read.
func (s *Service) ListRoles(ctx context.Context, caller *Principal) ([]Role, error) {
	if err := s.authorize(ctx, caller, OpRead); err != nil {
		return nil, err
	}
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, storageError("ListRoles", err)
	}
	return roles, nil
}

// GetRole returns one role. Requires access_rules/read.
func (s *Service) GetRole(ctx context.Context, caller *Principal, id string) (*Role, error) {
	if err := s.authorize(ctx, caller, OpRead); err != nil {
		return nil, err
	}
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, storageError("GetRole", err)
	}
	return role, nil
}

// CreateRole adds a role. Requires access_rules/update.
//
// Example:
//
//	role, err := service.CreateRole(ctx, admin, accesskit.RoleInput{Name: "manager"})
func (s *Service) CreateRole(ctx context.Context, caller *Principal, in RoleInput) (*Role, error) {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if verr := s.validateStruct(in); !verr.Empty() {
		return nil, verr
	}

	role := &Role{Name: in.Name, Description: in.Description}
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateRole(ctx, role); err != nil {
			return storageError("CreateRole", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionCreated, EntityRole, role.ID, role.Name)
		return nil
	})
	if err != nil {
		return nil, withRole(err, in.Name)
	}
	return role, nil
}

// UpdateRole replaces name and description. Requires access_rules/update.
func (s *Service) UpdateRole(ctx context.Context, caller *Principal, id string, in RoleInput) (*Role, error) {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if verr := s.validateStruct(in); !verr.Empty() {
		return nil, verr
	}

	var out *Role
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return storageError("GetRole", err)
		}
		role.Name = in.Name
		role.Description = in.Description
		if err := tx.UpdateRole(ctx, role); err != nil {
			return storageError("UpdateRole", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionUpdated, EntityRole, role.ID, role.Name)
		out = role
		return nil
	})
	if err != nil {
		return nil, withRole(err, in.Name)
	}
	return out, nil
}

// DeleteRole removes a role together with its rules. Principals holding the
// role keep their account and lose the role. Requires access_rules/update.
func (s *Service) DeleteRole(ctx context.Context, caller *Principal, id string) error {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return err
	}
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return storageError("GetRole", err)
		}
		inUse, err := tx.RoleInUse(ctx, id)
		if err != nil {
			return storageError("RoleInUse", err)
		}
		summary := role.Name
		if inUse {
			if err := tx.ClearRole(ctx, id); err != nil {
				return storageError("ClearRole", err)
			}
			summary += " (principals detached)"
		}
		if err := tx.DeleteRulesForRole(ctx, id); err != nil {
			return storageError("DeleteRulesForRole", err)
		}
		if err := tx.DeleteRole(ctx, id); err != nil {
			return storageError("DeleteRole", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionDeleted, EntityRole, id, summary)
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateRules(ctx)
	return nil
}

// withRole adds the role name to conflict errors.
func withRole(err error, name string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok && e.Role == "" {
		return e.WithRole(name)
	}
	return err
}
