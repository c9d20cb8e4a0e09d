package accesskit

import "context"

// Stats counts the rows managed by the service.
type Stats struct {
	Principals       int `json:"principals"`
	ActivePrincipals int `json:"active_principals"`
	Roles            int `json:"roles"`
	Resources        int `json:"resources"`
	Rules            int `json:"rules"`
}

type readOnlyStore interface {
	ReadOnly(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Stats returns row counts taken from a single consistent snapshot where the
// store supports read-only transactions. Requires access_rules/read.
func (s *Service) Stats(ctx context.Context, caller *Principal) (Stats, error) {
	if err := s.authorize(ctx, caller, OpRead); err != nil {
		return Stats{}, err
	}

	var out Stats
	collect := func(ctx context.Context, tx Store) error {
		var err error
		if out.Principals, err = tx.CountPrincipals(ctx, false); err != nil {
			return storageError("CountPrincipals", err)
		}
		if out.ActivePrincipals, err = tx.CountPrincipals(ctx, true); err != nil {
			return storageError("CountPrincipals", err)
		}
		roles, err := tx.ListRoles(ctx)
		if err != nil {
			return storageError("ListRoles", err)
		}
		resources, err := tx.ListResources(ctx)
		if err != nil {
			return storageError("ListResources", err)
		}
		rules, err := tx.ListRules(ctx, RuleFilter{})
		if err != nil {
			return storageError("ListRules", err)
		}
		out.Roles, out.Resources, out.Rules = len(roles), len(resources), len(rules)
		return nil
	}

	var err error
	if ro, ok := s.store.(readOnlyStore); ok {
		err = ro.ReadOnly(ctx, collect)
	} else {
		err = collect(ctx, s.store)
	}
	if err != nil {
		return Stats{}, err
	}
	return out, nil
}
