package accesskit

import (
	"context"
)

// BootstrapActor is the actor recorded in the audit log for seeded rows.
const BootstrapActor = "bootstrap"

// BootstrapResult lists what EnsureBootstrap had to create.
type BootstrapResult struct {
	RolesCreated     []string `json:"roles_created"`
	ResourcesCreated []string `json:"resources_created"`
	RulesCreated     []string `json:"rules_created"`
}

// Changed reports whether anything was created.
func (r BootstrapResult) Changed() bool {
	return len(r.RolesCreated)+len(r.ResourcesCreated)+len(r.RulesCreated) > 0
}

// EnsureBootstrap makes sure every role, resource and rule of seed exists.
// Rows are matched by name (rules by role and resource); existing rows,
// including rules whose flags differ from the seed, are never modified, so
// calling it on every start is safe. Transient storage failures are retried.
//
// Example:
//
//	res, err := service.EnsureBootstrap(ctx, accesskit.DefaultSeed())
func (s *Service) EnsureBootstrap(ctx context.Context, seed *Seed) (BootstrapResult, error) {
	if seed == nil {
		seed = DefaultSeed()
	}
	if err := seed.Validate(); err != nil {
		return BootstrapResult{}, err
	}

	var result BootstrapResult
	err := s.withRetry(ctx, 3, func() error {
		result = BootstrapResult{}
		return s.Transaction(ctx, func(ctx context.Context, tx Store) error {
			return s.applySeed(WithActorID(ctx, BootstrapActor), tx, seed, &result)
		})
	})
	if err != nil {
		return BootstrapResult{}, err
	}

	if result.Changed() {
		s.invalidateRules(ctx)
		s.logger.Info().
			Strs("roles", result.RolesCreated).
			Strs("resources", result.ResourcesCreated).
			Strs("rules", result.RulesCreated).
			Msg("bootstrap data created")
	}
	return result, nil
}

func (s *Service) applySeed(ctx context.Context, tx Store, seed *Seed, result *BootstrapResult) error {
	roleIDs := make(map[string]string, len(seed.roles))
	for _, entry := range seed.roles {
		role, err := tx.GetRoleByName(ctx, entry.Name)
		switch {
		case err == nil:
		case IsNotFound(err):
			role = &Role{Name: entry.Name, Description: entry.Description}
			if err := tx.CreateRole(ctx, role); err != nil {
				return storageError("CreateRole", err)
			}
			s.logAudit(ctx, tx, nil, AuditActionCreated, EntityRole, role.ID, role.Name)
			result.RolesCreated = append(result.RolesCreated, role.Name)
		default:
			return storageError("GetRoleByName", err)
		}
		roleIDs[entry.Name] = role.ID
	}

	resourceIDs := make(map[string]string, len(seed.resources))
	for _, entry := range seed.resources {
		res, err := tx.GetResourceByName(ctx, entry.Name)
		switch {
		case err == nil:
		case IsNotFound(err):
			res = &Resource{Name: entry.Name, Description: entry.Description}
			if err := tx.CreateResource(ctx, res); err != nil {
				return storageError("CreateResource", err)
			}
			s.logAudit(ctx, tx, nil, AuditActionCreated, EntityResource, res.ID, res.Name)
			result.ResourcesCreated = append(result.ResourcesCreated, res.Name)
		default:
			return storageError("GetResourceByName", err)
		}
		resourceIDs[entry.Name] = res.ID
	}

	for _, g := range seed.grants {
		rule := (&PermissionRule{
			RoleID:     roleIDs[g.Role],
			ResourceID: resourceIDs[g.Resource],
		}).Grant(g.Permissions...)
		inserted, err := tx.InsertRuleIfAbsent(ctx, rule)
		if err != nil {
			return storageError("InsertRuleIfAbsent", err)
		}
		if inserted {
			s.logAudit(ctx, tx, nil, AuditActionCreated, EntityRule, rule.ID, ruleSummary(rule))
			result.RulesCreated = append(result.RulesCreated, g.Role+"/"+g.Resource)
		}
	}
	return nil
}
