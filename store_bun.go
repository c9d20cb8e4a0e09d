package accesskit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunStore is the PostgreSQL Store, built on bun through dbkit.
//
// Error Handling:
// Database errors are wrapped with dbkit's chainable error wrapping so the
// operation name and constraint survive, then classified into the package
// sentinels: missing rows become ErrNotFound, unique violations ErrConflict
// (ErrEmailTaken for principals) and everything else ErrStorage.
//
//	err := store.CreateRole(ctx, role)
//	if errors.Is(err, accesskit.ErrConflict) {
//	    // name already used
//	}
//	var dbErr *dbkit.Error
//	if errors.As(err, &dbErr) {
//	    fmt.Printf("Operation: %s, Constraint: %s\n", dbErr.Operation, dbErr.Constraint)
//	}
type BunStore struct {
	db dbkit.IDB
}

// NewBunStore creates a store on top of a dbkit connection.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	store := accesskit.NewBunStore(db)
func NewBunStore(db *dbkit.DBKit) *BunStore {
	return &BunStore{db: db}
}

// DB returns the underlying handle (a *dbkit.DBKit or a *dbkit.Tx).
func (s *BunStore) DB() dbkit.IDB {
	return s.db
}

// classify wraps err with op and maps it onto the package sentinels.
// duplicate is the sentinel used for unique violations.
func classify(op string, err error, duplicate error) error {
	if err == nil {
		return nil
	}
	err = dbkit.WithErr1(err, op).Err()
	switch {
	case dbkit.IsNotFound(err):
		return NewError(ErrNotFound, op).WithCause(err)
	case dbkit.IsDuplicate(err):
		return NewError(duplicate, op).WithCause(err)
	}
	return NewError(ErrStorage, op).WithCause(err)
}

// execAffected wraps an Exec result and reports ErrNotFound when no row changed.
func execAffected(op string, result interface{ RowsAffected() (int64, error) }, err error, duplicate error) error {
	if err != nil {
		return classify(op, err, duplicate)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(op, err, duplicate)
	}
	if n == 0 {
		return NewError(ErrNotFound, op)
	}
	return nil
}

func prepareInsert(id *string, created, updated *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

// Transaction runs fn inside a database transaction, or inside a savepoint
// when the store is already bound to one.
func (s *BunStore) Transaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	run := func(tx *dbkit.Tx) error {
		return fn(ctx, &BunStore{db: tx})
	}
	switch db := s.db.(type) {
	case *dbkit.Tx:
		return db.Transaction(ctx, run)
	case *dbkit.DBKit:
		return db.Transaction(ctx, run)
	}
	return NewError(ErrStorage, "transaction support requires a dbkit.DBKit or dbkit.Tx instance")
}

// ReadOnly runs fn inside a read-only transaction so every read sees the same snapshot.
func (s *BunStore) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return s.Transaction(ctx, fn)
	}
	return db.TransactionWithOptions(ctx, dbkit.ReadOnlyTxOptions(), func(tx *dbkit.Tx) error {
		return fn(ctx, &BunStore{db: tx})
	})
}

// Ping checks connectivity.
func (s *BunStore) Ping(ctx context.Context) error {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return classify("Ping", db.PingContext(ctx), ErrConflict)
	}
	var one int
	return classify("Ping", s.db.NewRaw("SELECT 1").Scan(ctx, &one), ErrConflict)
}

// ============================================================================
// PRINCIPALS
// ============================================================================

func (s *BunStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	prepareInsert(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	_, err := s.db.NewInsert().Model(p).Exec(ctx)
	return classify("CreatePrincipal", err, ErrEmailTaken)
}

func (s *BunStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	var p Principal
	err := s.db.NewSelect().Model(&p).Where("p.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, classify("GetPrincipal", err, ErrConflict)
	}
	return &p, nil
}

func (s *BunStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	var p Principal
	err := s.db.NewSelect().Model(&p).Where("p.email = ?", email).Limit(1).Scan(ctx)
	if err != nil {
		return nil, classify("GetPrincipalByEmail", err, ErrConflict)
	}
	return &p, nil
}

func (s *BunStore) UpdatePrincipal(ctx context.Context, p *Principal) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.NewUpdate().Model(p).WherePK().
		Column("email", "password_hash", "first_name", "last_name", "patronymic", "role_id", "is_active", "updated_at").
		Exec(ctx)
	return execAffected("UpdatePrincipal", result, err, ErrEmailTaken)
}

func (s *BunStore) TouchPrincipal(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.NewUpdate().Model((*Principal)(nil)).
		Set("last_login_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return execAffected("TouchPrincipal", result, err, ErrConflict)
}

func (s *BunStore) ClearRole(ctx context.Context, roleID string) error {
	result, err := s.db.NewUpdate().Model((*Principal)(nil)).
		Set("role_id = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("role_id = ?", roleID).
		Exec(ctx)
	return dbkit.WithErr(result, err, "ClearRole").Err()
}

// ============================================================================
// ROLES
// ============================================================================

func (s *BunStore) CreateRole(ctx context.Context, r *Role) error {
	prepareInsert(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	_, err := s.db.NewInsert().Model(r).Exec(ctx)
	return classify("CreateRole", err, ErrConflict)
}

func (s *BunStore) GetRole(ctx context.Context, id string) (*Role, error) {
	var r Role
	if err := s.db.NewSelect().Model(&r).Where("r.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, classify("GetRole", err, ErrConflict)
	}
	return &r, nil
}

func (s *BunStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var r Role
	if err := s.db.NewSelect().Model(&r).Where("r.name = ?", name).Limit(1).Scan(ctx); err != nil {
		return nil, classify("GetRoleByName", err, ErrConflict)
	}
	return &r, nil
}

func (s *BunStore) ListRoles(ctx context.Context) ([]Role, error) {
	roles := make([]Role, 0)
	if err := s.db.NewSelect().Model(&roles).Order("r.name ASC").Scan(ctx); err != nil {
		return nil, classify("ListRoles", err, ErrConflict)
	}
	return roles, nil
}

func (s *BunStore) UpdateRole(ctx context.Context, r *Role) error {
	r.UpdatedAt = time.Now().UTC()
	result, err := s.db.NewUpdate().Model(r).WherePK().Column("name", "description", "updated_at").Exec(ctx)
	return execAffected("UpdateRole", result, err, ErrConflict)
}

func (s *BunStore) DeleteRole(ctx context.Context, id string) error {
	result, err := s.db.NewDelete().Model((*Role)(nil)).Where("id = ?", id).Exec(ctx)
	return execAffected("DeleteRole", result, err, ErrConflict)
}

// ============================================================================
// RESOURCES
// ============================================================================

func (s *BunStore) CreateResource(ctx context.Context, r *Resource) error {
	prepareInsert(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	_, err := s.db.NewInsert().Model(r).Exec(ctx)
	return classify("CreateResource", err, ErrConflict)
}

func (s *BunStore) GetResource(ctx context.Context, id string) (*Resource, error) {
	var r Resource
	if err := s.db.NewSelect().Model(&r).Where("res.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, classify("GetResource", err, ErrConflict)
	}
	return &r, nil
}

func (s *BunStore) GetResourceByName(ctx context.Context, name string) (*Resource, error) {
	var r Resource
	if err := s.db.NewSelect().Model(&r).Where("res.name = ?", name).Limit(1).Scan(ctx); err != nil {
		return nil, classify("GetResourceByName", err, ErrConflict)
	}
	return &r, nil
}

func (s *BunStore) ListResources(ctx context.Context) ([]Resource, error) {
	resources := make([]Resource, 0)
	if err := s.db.NewSelect().Model(&resources).Order("res.name ASC").Scan(ctx); err != nil {
		return nil, classify("ListResources", err, ErrConflict)
	}
	return resources, nil
}

func (s *BunStore) UpdateResource(ctx context.Context, r *Resource) error {
	r.UpdatedAt = time.Now().UTC()
	result, err := s.db.NewUpdate().Model(r).WherePK().Column("name", "description", "updated_at").Exec(ctx)
	return execAffected("UpdateResource", result, err, ErrConflict)
}

func (s *BunStore) DeleteResource(ctx context.Context, id string) error {
	result, err := s.db.NewDelete().Model((*Resource)(nil)).Where("id = ?", id).Exec(ctx)
	return execAffected("DeleteResource", result, err, ErrConflict)
}

// ============================================================================
// PERMISSION RULES
// ============================================================================

func (s *BunStore) CreateRule(ctx context.Context, r *PermissionRule) error {
	prepareInsert(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	_, err := s.db.NewInsert().Model(r).Exec(ctx)
	return classify("CreateRule", err, ErrConflict)
}

func (s *BunStore) InsertRuleIfAbsent(ctx context.Context, r *PermissionRule) (bool, error) {
	prepareInsert(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	result, err := s.db.NewInsert().
		Model(r).
		On("CONFLICT (role_id, resource_id) DO NOTHING").
		Exec(ctx)
	if err = dbkit.WithErr(result, err, "InsertRuleIfAbsent").Err(); err != nil {
		return false, classify("InsertRuleIfAbsent", err, ErrConflict)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, classify("InsertRuleIfAbsent", err, ErrConflict)
	}
	return n > 0, nil
}

func (s *BunStore) GetRule(ctx context.Context, id string) (*PermissionRule, error) {
	var r PermissionRule
	if err := s.db.NewSelect().Model(&r).Where("pr.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, classify("GetRule", err, ErrConflict)
	}
	return &r, nil
}

func (s *BunStore) FindRule(ctx context.Context, roleID, resourceID string) (*PermissionRule, error) {
	var r PermissionRule
	err := s.db.NewSelect().Model(&r).
		Where("pr.role_id = ? AND pr.resource_id = ?", roleID, resourceID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify("FindRule", err, ErrConflict)
	}
	return &r, nil
}

func (s *BunStore) ListRules(ctx context.Context, filter RuleFilter) ([]PermissionRule, error) {
	rules := make([]PermissionRule, 0)
	q := s.db.NewSelect().Model(&rules)
	if filter.RoleID != "" {
		q = q.Where("pr.role_id = ?", filter.RoleID)
	}
	if filter.ResourceID != "" {
		q = q.Where("pr.resource_id = ?", filter.ResourceID)
	}
	if err := q.Order("pr.created_at ASC").Scan(ctx); err != nil {
		return nil, classify("ListRules", err, ErrConflict)
	}
	return rules, nil
}

func (s *BunStore) UpdateRule(ctx context.Context, r *PermissionRule) error {
	r.UpdatedAt = time.Now().UTC()
	result, err := s.db.NewUpdate().Model(r).WherePK().
		Column("role_id", "resource_id",
			"read_permission", "read_all_permission", "create_permission",
			"update_permission", "update_all_permission",
			"delete_permission", "delete_all_permission", "updated_at").
		Exec(ctx)
	return execAffected("UpdateRule", result, err, ErrConflict)
}

func (s *BunStore) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.NewDelete().Model((*PermissionRule)(nil)).Where("id = ?", id).Exec(ctx)
	return execAffected("DeleteRule", result, err, ErrConflict)
}

func (s *BunStore) DeleteRulesForRole(ctx context.Context, roleID string) error {
	result, err := s.db.NewDelete().Model((*PermissionRule)(nil)).Where("role_id = ?", roleID).Exec(ctx)
	return dbkit.WithErr(result, err, "DeleteRulesForRole").Err()
}

func (s *BunStore) DeleteRulesForResource(ctx context.Context, resourceID string) error {
	result, err := s.db.NewDelete().Model((*PermissionRule)(nil)).Where("resource_id = ?", resourceID).Exec(ctx)
	return dbkit.WithErr(result, err, "DeleteRulesForResource").Err()
}

// ============================================================================
// SESSIONS
// ============================================================================

func (s *BunStore) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().Model(sess).Exec(ctx)
	return classify("CreateSession", err, ErrConflict)
}

func (s *BunStore) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	var sess Session
	err := s.db.NewSelect().Model(&sess).
		Relation("Principal").
		Where("s.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify("GetSessionByToken", err, ErrConflict)
	}
	return &sess, nil
}

func (s *BunStore) ExtendSession(ctx context.Context, id string, expiresAt time.Time) error {
	result, err := s.db.NewUpdate().Model((*Session)(nil)).
		Set("expires_at = ?", expiresAt).
		Where("id = ?", id).
		Exec(ctx)
	return execAffected("ExtendSession", result, err, ErrConflict)
}

func (s *BunStore) deleteSessions(ctx context.Context, op string, where func(q *bun.DeleteQuery) *bun.DeleteQuery) (int64, error) {
	result, err := where(s.db.NewDelete().Model((*Session)(nil))).Exec(ctx)
	if err = dbkit.WithErr(result, err, op).Err(); err != nil {
		return 0, classify(op, err, ErrConflict)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, classify(op, err, ErrConflict)
	}
	return n, nil
}

func (s *BunStore) DeleteSessionByToken(ctx context.Context, token string) (int64, error) {
	return s.deleteSessions(ctx, "DeleteSessionByToken", func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("token = ?", token)
	})
}

func (s *BunStore) DeleteSessionsForPrincipal(ctx context.Context, principalID string) (int64, error) {
	return s.deleteSessions(ctx, "DeleteSessionsForPrincipal", func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("principal_id = ?", principalID)
	})
}

func (s *BunStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteSessions(ctx, "DeleteExpiredSessions", func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("expires_at <= ?", now)
	})
}

func (s *BunStore) ListSessions(ctx context.Context, principalID string) ([]Session, error) {
	sessions := make([]Session, 0)
	err := s.db.NewSelect().Model(&sessions).
		Where("s.principal_id = ?", principalID).
		Order("s.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, classify("ListSessions", err, ErrConflict)
	}
	return sessions, nil
}

// ============================================================================
// AUDIT LOG
// ============================================================================

func (s *BunStore) InsertAudit(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	insert := func(db dbkit.IDB) error {
		_, err := db.NewInsert().Model(entry).Exec(ctx)
		return err
	}
	// Inside a transaction a failed insert would abort the whole
	// transaction, so it runs in a savepoint of its own.
	if tx, ok := s.db.(*dbkit.Tx); ok {
		return classify("InsertAudit", tx.Transaction(ctx, func(sp *dbkit.Tx) error {
			return insert(sp)
		}), ErrConflict)
	}
	return classify("InsertAudit", insert(s.db), ErrConflict)
}

func (s *BunStore) ListAudit(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	logs := make([]AuditLog, 0)
	q := s.db.NewSelect().Model(&logs)
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Entity != "" {
		q = q.Where("entity = ?", filter.Entity)
	}
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}
	q = q.Limit(filter.limit())
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	q = q.Order("timestamp DESC")

	if err := dbkit.WithErr1(q.Scan(ctx), "ListAudit").Err(); err != nil {
		return nil, classify("ListAudit", err, ErrConflict)
	}
	return logs, nil
}

// CountPrincipals returns how many principals exist, optionally only active ones.
func (s *BunStore) CountPrincipals(ctx context.Context, activeOnly bool) (int, error) {
	n, err := dbkit.Count[Principal](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		if activeOnly {
			return q.Where("is_active = TRUE")
		}
		return q
	})
	if err != nil {
		return 0, classify("CountPrincipals", err, ErrConflict)
	}
	return n, nil
}

// RoleInUse reports whether any principal references roleID.
func (s *BunStore) RoleInUse(ctx context.Context, roleID string) (bool, error) {
	ok, err := dbkit.Exists[Principal](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("role_id = ?", roleID)
	})
	if err != nil {
		return false, classify("RoleInUse", err, ErrConflict)
	}
	return ok, nil
}

var _ Store = (*BunStore)(nil)
