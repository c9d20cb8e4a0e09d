package accesskit

import (
	"context"
	"strings"
)

// RuleInput creates or replaces a permission rule.
type RuleInput struct {
	RoleID     string `json:"role_id" validate:"required"`
	ResourceID string `json:"resource_id" validate:"required"`
	Read       bool   `json:"read_permission"`
	ReadAll    bool   `json:"read_all_permission"`
	Create     bool   `json:"create_permission"`
	Update     bool   `json:"update_permission"`
	UpdateAll  bool   `json:"update_all_permission"`
	Delete     bool   `json:"delete_permission"`
	DeleteAll  bool   `json:"delete_all_permission"`
}

func (in RuleInput) apply(r *PermissionRule) {
	r.RoleID = in.RoleID
	r.ResourceID = in.ResourceID
	r.Read = in.Read
	r.ReadAll = in.ReadAll
	r.Create = in.Create
	r.Update = in.Update
	r.UpdateAll = in.UpdateAll
	r.Delete = in.Delete
	r.DeleteAll = in.DeleteAll
}

// ruleSummary renders the granted flags, e.g. "read,update".
func ruleSummary(r *PermissionRule) string {
	granted := r.Granted()
	if len(granted) == 0 {
		return "none"
	}
	names := make([]string, len(granted))
	for i, p := range granted {
		names[i] = p.String()
	}
	return strings.Join(names, ",")
}

// ============================================================================
// PERMISSION RULES
// ============================================================================

// ListRules returns the rules matching filter. Requires access_rules/read.
func (s *Service) ListRules(ctx context.Context, caller *Principal, filter RuleFilter) ([]PermissionRule, error) {
	if err := s.authorize(ctx, caller, OpRead); err != nil {
		return nil, err
	}
	rules, err := s.store.ListRules(ctx, filter)
	if err != nil {
		return nil, storageError("ListRules", err)
	}
	return rules, nil
}

// GetRule returns one rule. Requires access_rules/read.
func (s *Service) GetRule(ctx context.Context, caller *Principal, id string) (*PermissionRule, error) {
	if err := s.authorize(ctx, caller, OpRead); err != nil {
		return nil, err
	}
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, storageError("GetRule", err)
	}
	return rule, nil
}

// CreateRule grants a role flags on a resource. The role and resource must
// exist and must not already have a rule. Requires access_rules/update.
//
// Example:
//
//	rule, err := service.CreateRule(ctx, admin, accesskit.RuleInput{
//	    RoleID: manager.ID, ResourceID: orders.ID,
//	    Read: true, ReadAll: true, Update: true,
//	})
func (s *Service) CreateRule(ctx context.Context, caller *Principal, in RuleInput) (*PermissionRule, error) {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return nil, err
	}
	if verr := s.validateStruct(in); !verr.Empty() {
		return nil, verr
	}

	rule := &PermissionRule{}
	in.apply(rule)
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		if err := s.checkRuleRefs(ctx, tx, in); err != nil {
			return err
		}
		if err := tx.CreateRule(ctx, rule); err != nil {
			return storageError("CreateRule", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionCreated, EntityRule, rule.ID, ruleSummary(rule))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateRules(ctx)
	return rule, nil
}

// UpdateRule replaces every field of a rule. Requires access_rules/update.
func (s *Service) UpdateRule(ctx context.Context, caller *Principal, id string, in RuleInput) (*PermissionRule, error) {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return nil, err
	}
	if verr := s.validateStruct(in); !verr.Empty() {
		return nil, verr
	}

	var out *PermissionRule
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		rule, err := tx.GetRule(ctx, id)
		if err != nil {
			return storageError("GetRule", err)
		}
		if err := s.checkRuleRefs(ctx, tx, in); err != nil {
			return err
		}
		in.apply(rule)
		if err := tx.UpdateRule(ctx, rule); err != nil {
			return storageError("UpdateRule", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionUpdated, EntityRule, rule.ID, ruleSummary(rule))
		out = rule
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateRules(ctx)
	return out, nil
}

// DeleteRule removes a rule. Requires access_rules/update.
func (s *Service) DeleteRule(ctx context.Context, caller *Principal, id string) error {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return err
	}
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.DeleteRule(ctx, id); err != nil {
			return storageError("DeleteRule", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionDeleted, EntityRule, id, "")
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateRules(ctx)
	return nil
}

func (s *Service) checkRuleRefs(ctx context.Context, tx Store, in RuleInput) error {
	if _, err := tx.GetRole(ctx, in.RoleID); err != nil {
		if IsNotFound(err) {
			return NewError(ErrNotFound, "role").WithRole(in.RoleID)
		}
		return storageError("GetRole", err)
	}
	if _, err := tx.GetResource(ctx, in.ResourceID); err != nil {
		if IsNotFound(err) {
			return NewError(ErrNotFound, "resource").WithResource(in.ResourceID)
		}
		return storageError("GetResource", err)
	}
	return nil
}
