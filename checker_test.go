package accesskit

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// TestEvaluate covers the decision table for every operation.
func TestEvaluate(t *testing.T) {
	const me = "p1"
	other := strPtr("p2")
	mine := strPtr(me)

	tests := []struct {
		name  string
		perms []Permission
		op    Operation
		owner *string
		want  Decision
	}{
		{"nil rule", nil, OpRead, nil, Deny},
		{"read collection with read", []Permission{PermRead}, OpRead, nil, Allow},
		{"read collection without read", []Permission{PermReadAll}, OpRead, nil, Deny},
		{"read own object", []Permission{PermRead}, OpRead, mine, Allow},
		{"read foreign object without read_all", []Permission{PermRead}, OpRead, other, Deny},
		{"read foreign object with read_all", []Permission{PermRead, PermReadAll}, OpRead, other, Allow},
		{"read_all alone does not grant read", []Permission{PermReadAll}, OpRead, other, Deny},
		{"create ignores owner", []Permission{PermCreate}, OpCreate, other, Allow},
		{"create without flag", []Permission{PermRead}, OpCreate, nil, Deny},
		{"update own object", []Permission{PermUpdate}, OpUpdate, mine, Allow},
		{"update foreign object", []Permission{PermUpdate}, OpUpdate, other, Deny},
		{"update foreign object with update_all", []Permission{PermUpdate, PermUpdateAll}, OpUpdate, other, Allow},
		{"update_all without update", []Permission{PermUpdateAll}, OpUpdate, mine, Deny},
		{"delete own object", []Permission{PermDelete}, OpDelete, mine, Allow},
		{"delete foreign object", []Permission{PermDelete}, OpDelete, other, Deny},
		{"delete foreign object with delete_all", []Permission{PermDelete, PermDeleteAll}, OpDelete, other, Allow},
		{"unknown operation", AllPermissions, Operation(99), nil, Deny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rule *PermissionRule
			if tt.perms != nil {
				rule = (&PermissionRule{}).Grant(tt.perms...)
			}
			assert.Equal(t, tt.want, Evaluate(rule, me, tt.op, tt.owner))
		})
	}
}

// TestEvaluateOwnershipTieBreak checks that the "-all" flag decides before
// ownership, so an owner never loses access it would otherwise have.
func TestEvaluateOwnershipTieBreak(t *testing.T) {
	rule := (&PermissionRule{}).Grant(PermUpdate, PermUpdateAll)
	assert.Equal(t, Allow, Evaluate(rule, "p1", OpUpdate, strPtr("p1")))
	assert.Equal(t, Allow, Evaluate(rule, "p1", OpUpdate, strPtr("p2")))

	// Empty owner ids are still object scoped.
	only := (&PermissionRule{}).Grant(PermDelete)
	assert.Equal(t, Deny, Evaluate(only, "p1", OpDelete, strPtr("")))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "deny", Deny.String())
	assert.True(t, Allow.Allowed())
	assert.False(t, Deny.Allowed())
}

// TestChecker exercises the per-principal checker against a seeded store.
func TestChecker(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newBootstrappedService(t)

	manager := mustRole(t, store, "manager")
	orders, err := store.GetResourceByName(ctx, ResourceOrders)
	require.NoError(t, err)
	mustRule(t, store, manager, orders, PermRead, PermUpdate, PermUpdateAll, PermDelete)

	p := mustRegister(t, service, "m@x.com", "manager")
	checker := NewChecker(&AuthContext{Principal: p}, service)

	assert.Equal(t, p.ID, checker.PrincipalID())
	assert.True(t, checker.Can(ctx, ResourceOrders, OpRead))
	assert.False(t, checker.Can(ctx, ResourceOrders, OpCreate))
	assert.True(t, checker.Can(ctx, ResourceOrders, OpDelete, WithOwner(p.ID)))
	assert.False(t, checker.Can(ctx, ResourceOrders, OpDelete, WithOwner("someone-else")))

	assert.True(t, checker.CanAny(ctx, ResourceOrders, []Operation{OpCreate, OpRead}))
	assert.False(t, checker.CanAll(ctx, ResourceOrders, []Operation{OpCreate, OpRead}))
	assert.True(t, checker.CanAll(ctx, ResourceOrders, []Operation{OpRead, OpUpdate}))

	t.Run("Scope", func(t *testing.T) {
		assert.Equal(t, ScopeAll, checker.Scope(ctx, ResourceOrders, OpUpdate))
		assert.Equal(t, ScopeOwn, checker.Scope(ctx, ResourceOrders, OpDelete))
		assert.Equal(t, ScopeOwn, checker.Scope(ctx, ResourceOrders, OpRead))
		assert.Equal(t, "", checker.Scope(ctx, ResourceOrders, OpCreate))
		assert.Equal(t, "", checker.Scope(ctx, ResourceProducts, OpRead))
	})

	t.Run("anonymous checker denies", func(t *testing.T) {
		anon := NewChecker(nil, service)
		assert.Equal(t, "", anon.PrincipalID())
		assert.False(t, anon.Can(ctx, ResourceOrders, OpRead))
	})
}

// TestCheckerScopeSingleDecision checks that computing a listing scope is
// recorded as one decision, whatever the scope turns out to be.
func TestCheckerScopeSingleDecision(t *testing.T) {
	ctx := context.Background()
	metrics := NewMetrics(nil)
	service, store, _ := newBootstrappedService(t, WithMetrics(metrics))

	clerk := mustRole(t, store, "clerk")
	orders, err := store.GetResourceByName(ctx, ResourceOrders)
	require.NoError(t, err)
	mustRule(t, store, clerk, orders, PermRead)

	p := mustRegister(t, service, "c@x.com", "clerk")
	checker := NewChecker(&AuthContext{Principal: p}, service)

	assert.Equal(t, ScopeOwn, checker.Scope(ctx, ResourceOrders, OpRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.decisions.WithLabelValues(ResourceOrders, "read", Allow.String())))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.decisions.WithLabelValues(ResourceOrders, "read", Deny.String())))
}
