package accesskit

import (
	"context"
	"strconv"
)

// ============================================================================
// PERMISSION CHECKING
// ============================================================================

// CheckPermission decides whether principal may perform op on resource.
// Deny is a normal outcome; the error is reserved for storage failures.
// Unknown resources and missing rules deny without surfacing ErrNotFound.
//
// Example:
//
//	d, err := service.CheckPermission(ctx, principal, "orders", accesskit.OpUpdate,
//	    accesskit.WithOwner(order.OwnerID))
//	if err != nil {
//	    return err
//	}
//	if !d.Allowed() {
//	    // 403
//	}
func (s *Service) CheckPermission(ctx context.Context, principal *Principal, resource string, op Operation, opts ...DecisionOption) (Decision, error) {
	d, err := s.decide(ctx, principal, resource, op, opts)
	if err != nil {
		return Deny, err
	}
	s.metrics.observeDecision(resource, op, d)
	if d == Deny {
		ev := s.logger.Debug().Str("resource", resource).Str("operation", op.String())
		if principal != nil {
			ev = ev.Str("principal_id", principal.ID)
		}
		ev.Msg("permission denied")
	}
	return d, nil
}

func (s *Service) decide(ctx context.Context, principal *Principal, resource string, op Operation, opts []DecisionOption) (Decision, error) {
	if principal == nil || !principal.IsActive {
		return Deny, nil
	}
	if !op.Valid() || !principal.HasRole() {
		return Deny, nil
	}
	rule, err := s.lookupRule(ctx, *principal.RoleID, resource)
	if err != nil {
		return Deny, err
	}
	o := collectDecisionOptions(opts)
	var owner *string
	if o.hasOwner {
		owner = &o.owner
	}
	return Evaluate(rule, principal.ID, op, owner), nil
}

// Can is CheckPermission collapsed to a bool. Storage failures deny.
func (s *Service) Can(ctx context.Context, principal *Principal, resource string, op Operation, opts ...DecisionOption) bool {
	d, err := s.CheckPermission(ctx, principal, resource, op, opts...)
	return err == nil && d.Allowed()
}

// lookupRule returns the rule for (roleID, resource name), or nil when the
// resource is unknown or no rule exists. Concurrent misses for the same key
// share one store round trip, which outlives the cancellation of whichever
// caller started it.
func (s *Service) lookupRule(ctx context.Context, roleID, resource string) (*PermissionRule, error) {
	if entry, ok := s.cache.Get(ctx, roleID, resource); ok {
		s.metrics.observeCache(true)
		return entry.Rule, nil
	}
	s.metrics.observeCache(false)

	gen := s.ruleGeneration()
	key := strconv.FormatUint(gen, 10) + ":" + ruleCacheKey(roleID, resource)
	v, err, _ := s.lookups.Do(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		rule, err := s.loadRule(loadCtx, roleID, resource)
		if err != nil {
			return nil, err
		}
		s.storeRule(loadCtx, gen, roleID, resource, rule)
		return rule, nil
	})
	if err != nil {
		return nil, err
	}
	rule, _ := v.(*PermissionRule)
	if rule == nil {
		return nil, nil
	}
	cp := *rule
	return &cp, nil
}

func (s *Service) ruleGeneration() uint64 {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	return s.rulesGen
}

// storeRule caches rule unless a mutation invalidated the cache after the
// load began.
func (s *Service) storeRule(ctx context.Context, gen uint64, roleID, resource string, rule *PermissionRule) {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	if s.rulesGen != gen {
		return
	}
	s.cache.Set(ctx, roleID, resource, CachedRule{Rule: rule})
}

func (s *Service) loadRule(ctx context.Context, roleID, resource string) (*PermissionRule, error) {
	res, err := s.store.GetResourceByName(ctx, resource)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, storageError("GetResourceByName", err)
	}
	rule, err := s.store.FindRule(ctx, roleID, res.ID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, storageError("FindRule", err)
	}
	return rule, nil
}

// EffectivePermissions returns the flags the principal holds on resource,
// or nil when it holds none.
func (s *Service) EffectivePermissions(ctx context.Context, principal *Principal, resource string) ([]Permission, error) {
	if principal == nil || !principal.IsActive || !principal.HasRole() {
		return nil, nil
	}
	rule, err := s.lookupRule(ctx, *principal.RoleID, resource)
	if err != nil || rule == nil {
		return nil, err
	}
	return rule.Granted(), nil
}
