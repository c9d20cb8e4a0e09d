package accesskit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOperationFlags tests the operation to flag mapping
func TestOperationFlags(t *testing.T) {
	tests := []struct {
		op   Operation
		base Permission
		all  Permission
	}{
		{OpRead, PermRead, PermReadAll},
		{OpCreate, PermCreate, 0},
		{OpUpdate, PermUpdate, PermUpdateAll},
		{OpDelete, PermDelete, PermDeleteAll},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			assert.True(t, tt.op.Valid())
			assert.Equal(t, tt.base, tt.op.BaseFlag())
			assert.Equal(t, tt.all, tt.op.AllFlag())
		})
	}

	invalid := Operation(0)
	assert.False(t, invalid.Valid())
	assert.Equal(t, Permission(0), invalid.BaseFlag())
	assert.Equal(t, "unknown", invalid.String())
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation(" Update ")
	require.NoError(t, err)
	assert.Equal(t, OpUpdate, op)

	_, err = ParseOperation("publish")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("update_all")
	require.NoError(t, err)
	assert.Equal(t, PermUpdateAll, p)

	p, err = ParsePermission("delete_all_permission")
	require.NoError(t, err)
	assert.Equal(t, PermDeleteAll, p)

	_, err = ParsePermission("write")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestParseOperationFromMethod(t *testing.T) {
	cases := map[string]Operation{
		"GET":    OpRead,
		"HEAD":   OpRead,
		"POST":   OpCreate,
		"PUT":    OpUpdate,
		"patch":  OpUpdate,
		"DELETE": OpDelete,
	}
	for method, want := range cases {
		got, ok := ParseOperationFromMethod(method)
		assert.True(t, ok, method)
		assert.Equal(t, want, got, method)
	}

	_, ok := ParseOperationFromMethod("OPTIONS")
	assert.False(t, ok)
}

// TestPermissionRuleFlags tests Has, Set, Grant and Granted
func TestPermissionRuleFlags(t *testing.T) {
	rule := &PermissionRule{}
	assert.Empty(t, rule.Granted())

	rule.Grant(PermRead, PermDeleteAll)
	assert.True(t, rule.Has(PermRead))
	assert.True(t, rule.DeleteAll)
	assert.False(t, rule.Has(PermCreate))
	assert.Equal(t, []Permission{PermRead, PermDeleteAll}, rule.Granted())

	rule.Set(PermRead, false)
	assert.False(t, rule.Read)
	assert.Equal(t, "delete_all", ruleSummary(rule))

	var nilRule *PermissionRule
	assert.False(t, nilRule.Has(PermRead))
}
