package accesskit

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept entirely in process. It backs the tests and
// embedded deployments that do not need PostgreSQL. Values are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data memoryData
}

type memoryData struct {
	principals map[string]Principal
	roles      map[string]Role
	resources  map[string]Resource
	rules      map[string]PermissionRule
	sessions   map[string]Session
	audit      []AuditLog
}

func newMemoryData() memoryData {
	return memoryData{
		principals: make(map[string]Principal),
		roles:      make(map[string]Role),
		resources:  make(map[string]Resource),
		rules:      make(map[string]PermissionRule),
		sessions:   make(map[string]Session),
	}
}

func (d memoryData) clone() memoryData {
	c := newMemoryData()
	for k, v := range d.principals {
		c.principals[k] = v
	}
	for k, v := range d.roles {
		c.roles[k] = v
	}
	for k, v := range d.resources {
		c.resources[k] = v
	}
	for k, v := range d.rules {
		c.rules[k] = v
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	c.audit = append([]AuditLog(nil), d.audit...)
	return c
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

func stamp(id *string, created, updated *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

// Transaction runs fn against a private copy of the data and, when fn
// succeeds, applies only the rows fn changed. A failed fn leaves the store
// untouched, so writes made outside the transaction meanwhile (logins,
// logouts) survive its rollback. Transactions are serialized.
func (m *MemoryStore) Transaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	before := m.data.clone()
	m.mu.RUnlock()

	work := &MemoryStore{data: before.clone()}
	if err := fn(ctx, work); err != nil {
		return err
	}

	work.mu.RLock()
	defer work.mu.RUnlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.apply(before, work.data)
	return nil
}

// apply writes the difference between before and after into d. Rows nobody
// touched inside the transaction keep whatever value d holds now.
func (d *memoryData) apply(before, after memoryData) {
	applyChanges(d.principals, before.principals, after.principals)
	applyChanges(d.roles, before.roles, after.roles)
	applyChanges(d.resources, before.resources, after.resources)
	applyChanges(d.rules, before.rules, after.rules)
	applyChanges(d.sessions, before.sessions, after.sessions)
	if len(after.audit) > len(before.audit) {
		d.audit = append(d.audit, after.audit[len(before.audit):]...)
	}
}

func applyChanges[V any](dst, before, after map[string]V) {
	for k, v := range after {
		if old, ok := before[k]; !ok || !reflect.DeepEqual(old, v) {
			dst[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			delete(dst, k)
		}
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// ---------------------------------------------------------------------------
// principals

func (m *MemoryStore) CreatePrincipal(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data.principals {
		if existing.Email == p.Email {
			return ErrEmailTaken
		}
	}
	stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if _, ok := m.data.principals[p.ID]; ok {
		return ErrConflict
	}
	m.data.principals[p.ID] = copyPrincipal(p)
	return nil
}

func (m *MemoryStore) GetPrincipal(_ context.Context, id string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyPrincipal(&p)
	return &out, nil
}

func (m *MemoryStore) GetPrincipalByEmail(_ context.Context, email string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.data.principals {
		if p.Email == email {
			out := copyPrincipal(&p)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdatePrincipal(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.principals[p.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range m.data.principals {
		if id != p.ID && existing.Email == p.Email {
			return ErrEmailTaken
		}
	}
	p.UpdatedAt = time.Now()
	m.data.principals[p.ID] = copyPrincipal(p)
	return nil
}

func (m *MemoryStore) TouchPrincipal(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.principals[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	p.LastLoginAt = &t
	m.data.principals[id] = p
	return nil
}

func (m *MemoryStore) ClearRole(_ context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.data.principals {
		if p.RoleID != nil && *p.RoleID == roleID {
			p.RoleID = nil
			p.UpdatedAt = time.Now()
			m.data.principals[id] = p
		}
	}
	return nil
}

func (m *MemoryStore) CountPrincipals(_ context.Context, activeOnly bool) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !activeOnly {
		return len(m.data.principals), nil
	}
	n := 0
	for _, p := range m.data.principals {
		if p.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RoleInUse(_ context.Context, roleID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.data.principals {
		if p.RoleID != nil && *p.RoleID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func copyPrincipal(p *Principal) Principal {
	out := *p
	if p.RoleID != nil {
		id := *p.RoleID
		out.RoleID = &id
	}
	if p.LastLoginAt != nil {
		t := *p.LastLoginAt
		out.LastLoginAt = &t
	}
	return out
}

// ---------------------------------------------------------------------------
// roles

func (m *MemoryStore) CreateRole(_ context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data.roles {
		if existing.Name == r.Name {
			return ErrConflict
		}
	}
	stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	m.data.roles[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRole(_ context.Context, id string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) GetRoleByName(_ context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.data.roles {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListRoles(context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Role, 0, len(m.data.roles))
	for _, r := range m.data.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) UpdateRole(_ context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.roles[r.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range m.data.roles {
		if id != r.ID && existing.Name == r.Name {
			return ErrConflict
		}
	}
	r.UpdatedAt = time.Now()
	m.data.roles[r.ID] = *r
	return nil
}

func (m *MemoryStore) DeleteRole(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.data.roles, id)
	return nil
}

// ---------------------------------------------------------------------------
// resources

func (m *MemoryStore) CreateResource(_ context.Context, r *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data.resources {
		if existing.Name == r.Name {
			return ErrConflict
		}
	}
	stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	m.data.resources[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetResource(_ context.Context, id string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) GetResourceByName(_ context.Context, name string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.data.resources {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListResources(context.Context) ([]Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Resource, 0, len(m.data.resources))
	for _, r := range m.data.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) UpdateResource(_ context.Context, r *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.resources[r.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range m.data.resources {
		if id != r.ID && existing.Name == r.Name {
			return ErrConflict
		}
	}
	r.UpdatedAt = time.Now()
	m.data.resources[r.ID] = *r
	return nil
}

func (m *MemoryStore) DeleteResource(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.resources[id]; !ok {
		return ErrNotFound
	}
	delete(m.data.resources, id)
	return nil
}

// ---------------------------------------------------------------------------
// rules

func (m *MemoryStore) ruleExistsLocked(roleID, resourceID string) bool {
	for _, existing := range m.data.rules {
		if existing.RoleID == roleID && existing.ResourceID == resourceID {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateRule(_ context.Context, r *PermissionRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ruleExistsLocked(r.RoleID, r.ResourceID) {
		return ErrConflict
	}
	stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	m.data.rules[r.ID] = *r
	return nil
}

func (m *MemoryStore) InsertRuleIfAbsent(_ context.Context, r *PermissionRule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ruleExistsLocked(r.RoleID, r.ResourceID) {
		return false, nil
	}
	stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	m.data.rules[r.ID] = *r
	return true, nil
}

func (m *MemoryStore) GetRule(_ context.Context, id string) (*PermissionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) FindRule(_ context.Context, roleID, resourceID string) (*PermissionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.data.rules {
		if r.RoleID == roleID && r.ResourceID == resourceID {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListRules(_ context.Context, filter RuleFilter) ([]PermissionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PermissionRule, 0)
	for _, r := range m.data.rules {
		if filter.matches(&r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateRule(_ context.Context, r *PermissionRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data.rules[r.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.RoleID != r.RoleID || existing.ResourceID != r.ResourceID {
		for id, other := range m.data.rules {
			if id != r.ID && other.RoleID == r.RoleID && other.ResourceID == r.ResourceID {
				return ErrConflict
			}
		}
	}
	r.UpdatedAt = time.Now()
	m.data.rules[r.ID] = *r
	return nil
}

func (m *MemoryStore) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.data.rules, id)
	return nil
}

func (m *MemoryStore) DeleteRulesForRole(_ context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.data.rules {
		if r.RoleID == roleID {
			delete(m.data.rules, id)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteRulesForResource(_ context.Context, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.data.rules {
		if r.ResourceID == resourceID {
			delete(m.data.rules, id)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// sessions

func (m *MemoryStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.principals[s.PrincipalID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.data.sessions {
		if existing.Token == s.Token {
			return ErrConflict
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	stored := *s
	stored.Principal = nil
	m.data.sessions[s.ID] = stored
	return nil
}

func (m *MemoryStore) GetSessionByToken(_ context.Context, token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.data.sessions {
		if s.Token != token {
			continue
		}
		out := s
		if p, ok := m.data.principals[s.PrincipalID]; ok {
			cp := copyPrincipal(&p)
			out.Principal = &cp
		}
		return &out, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ExtendSession(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.ExpiresAt = expiresAt
	m.data.sessions[id] = s
	return nil
}

func (m *MemoryStore) DeleteSessionByToken(_ context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.data.sessions {
		if s.Token == token {
			delete(m.data.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteSessionsForPrincipal(_ context.Context, principalID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.data.sessions {
		if s.PrincipalID == principalID {
			delete(m.data.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.data.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.data.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, principalID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0)
	for _, s := range m.data.sessions {
		if s.PrincipalID == principalID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---------------------------------------------------------------------------
// audit

func (m *MemoryStore) InsertAudit(_ context.Context, entry *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.data.audit = append(m.data.audit, *entry)
	return nil
}

// ListAudit returns matching entries, newest first.
func (m *MemoryStore) ListAudit(_ context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]AuditLog, 0)
	for i := len(m.data.audit) - 1; i >= 0; i-- {
		if filter.matches(&m.data.audit[i]) {
			matched = append(matched, m.data.audit[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	if filter.Offset >= len(matched) {
		return []AuditLog{}, nil
	}
	matched = matched[max(filter.Offset, 0):]
	if limit := filter.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

var _ Store = (*MemoryStore)(nil)
