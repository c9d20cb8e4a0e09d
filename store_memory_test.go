package accesskit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryStoreTransactionRollback tests that a failed transaction leaves no trace
func TestMemoryStoreTransactionRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(ctx context.Context, tx Store) error {
		require.NoError(t, tx.CreateRole(ctx, &Role{Name: "temp"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetRoleByName(ctx, "temp")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Transaction(ctx, func(ctx context.Context, tx Store) error {
		return tx.CreateRole(ctx, &Role{Name: "kept"})
	})
	require.NoError(t, err)
	_, err = store.GetRoleByName(ctx, "kept")
	assert.NoError(t, err)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	roleID := "r1"
	p := &Principal{Email: "a@x.com", RoleID: &roleID, IsActive: true}
	require.NoError(t, store.CreatePrincipal(ctx, p))

	roleID = "changed"
	got, err := store.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", *got.RoleID)

	*got.RoleID = "mutated"
	again, err := store.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", *again.RoleID)
}

func TestMemoryStoreUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreatePrincipal(ctx, &Principal{Email: "a@x.com"}))
	assert.ErrorIs(t, store.CreatePrincipal(ctx, &Principal{Email: "a@x.com"}), ErrEmailTaken)

	role := mustRole(t, store, "admin")
	assert.ErrorIs(t, store.CreateRole(ctx, &Role{Name: "admin"}), ErrConflict)

	res := mustResource(t, store, "orders")
	assert.ErrorIs(t, store.CreateResource(ctx, &Resource{Name: "orders"}), ErrConflict)

	mustRule(t, store, role, res, PermRead)
	assert.ErrorIs(t, store.CreateRule(ctx, &PermissionRule{RoleID: role.ID, ResourceID: res.ID}), ErrConflict)

	inserted, err := store.InsertRuleIfAbsent(ctx, &PermissionRule{RoleID: role.ID, ResourceID: res.ID, DeleteAll: true})
	require.NoError(t, err)
	assert.False(t, inserted)

	rule, err := store.FindRule(ctx, role.ID, res.ID)
	require.NoError(t, err)
	assert.False(t, rule.DeleteAll)
}

func TestMemoryStoreRoleUsage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	role := mustRole(t, store, "user")

	inUse, err := store.RoleInUse(ctx, role.ID)
	require.NoError(t, err)
	assert.False(t, inUse)

	require.NoError(t, store.CreatePrincipal(ctx, &Principal{Email: "a@x.com", RoleID: &role.ID, IsActive: true}))
	require.NoError(t, store.CreatePrincipal(ctx, &Principal{Email: "b@x.com"}))

	inUse, err = store.RoleInUse(ctx, role.ID)
	require.NoError(t, err)
	assert.True(t, inUse)

	n, err := store.CountPrincipals(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.CountPrincipals(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.ClearRole(ctx, role.ID))
	inUse, err = store.RoleInUse(ctx, role.ID)
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestMemoryStoreAuditPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertAudit(ctx, &AuditLog{
			ActorID:   "a",
			Action:    string(AuditActionCreated),
			Entity:    EntityRole,
			EntityID:  string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := store.ListAudit(ctx, NewAuditLogFilter())
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "e", all[0].EntityID)

	page, err := store.ListAudit(ctx, NewAuditLogFilter().WithPagination(2, 1))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].EntityID)
	assert.Equal(t, "c", page[1].EntityID)

	ranged, err := store.ListAudit(ctx, NewAuditLogFilter().WithTimeRange(base.Add(time.Hour), base.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	empty, err := store.ListAudit(ctx, NewAuditLogFilter().WithPagination(10, 10))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreSessionPrincipalLoaded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := &Principal{Email: "a@x.com", IsActive: true}
	require.NoError(t, store.CreatePrincipal(ctx, p))

	require.NoError(t, store.CreateSession(ctx, &Session{PrincipalID: p.ID, Token: "t", ExpiresAt: time.Now().Add(time.Hour)}))
	assert.ErrorIs(t, store.CreateSession(ctx, &Session{PrincipalID: p.ID, Token: "t"}), ErrConflict)

	s, err := store.GetSessionByToken(ctx, "t")
	require.NoError(t, err)
	require.NotNil(t, s.Principal)
	assert.Equal(t, "a@x.com", s.Principal.Email)
}

// TestMemoryStoreRollbackKeepsOutsideWrites checks that a failed
// transaction only discards its own writes: a logout and a login made
// while it ran stay in effect.
func TestMemoryStoreRollbackKeepsOutsideWrites(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newBootstrappedService(t)
	token, p := loginToken(t, service, "u@x.com", RoleUser)

	err := service.Transaction(ctx, func(ctx context.Context, tx Store) error {
		require.NoError(t, tx.CreateResource(ctx, &Resource{Name: "invoices"}))
		require.NoError(t, service.Logout(ctx, token))
		require.NoError(t, store.CreateSession(ctx, &Session{
			PrincipalID: p.ID, Token: "concurrent", ExpiresAt: time.Now().Add(time.Hour),
		}))
		return tx.CreateRole(ctx, &Role{Name: RoleAdmin})
	})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = service.ResolveSession(ctx, token)
	assert.True(t, IsInvalidSession(err))

	_, err = store.GetSessionByToken(ctx, "concurrent")
	assert.NoError(t, err)

	_, err = store.GetResourceByName(ctx, "invoices")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCommitKeepsOutsideWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := &Principal{Email: "a@x.com", IsActive: true}
	require.NoError(t, store.CreatePrincipal(ctx, p))
	require.NoError(t, store.CreateSession(ctx, &Session{PrincipalID: p.ID, Token: "old", ExpiresAt: time.Now().Add(time.Hour)}))

	err := store.Transaction(ctx, func(ctx context.Context, tx Store) error {
		_, err := store.DeleteSessionByToken(ctx, "old")
		require.NoError(t, err)
		require.NoError(t, store.CreateSession(ctx, &Session{PrincipalID: p.ID, Token: "new", ExpiresAt: time.Now().Add(time.Hour)}))
		return tx.CreateRole(ctx, &Role{Name: "manager"})
	})
	require.NoError(t, err)

	_, err = store.GetRoleByName(ctx, "manager")
	assert.NoError(t, err)
	_, err = store.GetSessionByToken(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSessionByToken(ctx, "new")
	assert.NoError(t, err)
}
