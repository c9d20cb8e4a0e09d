package accesskit

import (
	"context"
	"strings"
)

// ResourceInput creates or replaces a resource.
type ResourceInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

// ============================================================================
// RESOURCE CATALOG
// ============================================================================

// ListResources returns the catalog ordered by name. Requires access_rules/read.
func (s *Service) ListResources(ctx context.Context, caller *Principal) ([]Resource, error) {
	if err := s.authorize(ctx, caller, OpRead); err != nil {
		return nil, err
	}
	resources, err := s.store.ListResources(ctx)
	if err != nil {
		return nil, storageError("ListResources", err)
	}
	return resources, nil
}

// GetResource returns one resource. Requires access_rules/read.
func (s *Service) GetResource(ctx context.Context, caller *Principal, id string) (*Resource, error) {
	if err := s.authorize(ctx, caller, OpRead); err != nil {
		return nil, err
	}
	res, err := s.store.GetResource(ctx, id)
	if err != nil {
		return nil, storageError("GetResource", err)
	}
	return res, nil
}

// CreateResource adds a resource. Requires access_rules/update.
func (s *Service) CreateResource(ctx context.Context, caller *Principal, in ResourceInput) (*Resource, error) {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if verr := s.validateStruct(in); !verr.Empty() {
		return nil, verr
	}

	res := &Resource{Name: in.Name, Description: in.Description}
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateResource(ctx, res); err != nil {
			return storageError("CreateResource", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionCreated, EntityResource, res.ID, res.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// a cached "unknown resource" entry may exist for this name
	s.invalidateRules(ctx)
	return res, nil
}

// UpdateResource replaces name and description. Requires access_rules/update.
func (s *Service) UpdateResource(ctx context.Context, caller *Principal, id string, in ResourceInput) (*Resource, error) {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if verr := s.validateStruct(in); !verr.Empty() {
		return nil, verr
	}

	var out *Resource
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		res, err := tx.GetResource(ctx, id)
		if err != nil {
			return storageError("GetResource", err)
		}
		res.Name = in.Name
		res.Description = in.Description
		if err := tx.UpdateResource(ctx, res); err != nil {
			return storageError("UpdateResource", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionUpdated, EntityResource, res.ID, res.Name)
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateRules(ctx)
	return out, nil
}

// DeleteResource removes a resource and every rule on it. Requires access_rules/update.
func (s *Service) DeleteResource(ctx context.Context, caller *Principal, id string) error {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return err
	}
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		res, err := tx.GetResource(ctx, id)
		if err != nil {
			return storageError("GetResource", err)
		}
		if err := tx.DeleteRulesForResource(ctx, id); err != nil {
			return storageError("DeleteRulesForResource", err)
		}
		if err := tx.DeleteResource(ctx, id); err != nil {
			return storageError("DeleteResource", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionDeleted, EntityResource, id, res.Name)
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateRules(ctx)
	return nil
}
