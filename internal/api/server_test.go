package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fernandezvara/accesskit"
)

type testEnv struct {
	t       *testing.T
	service *accesskit.Service
	handler http.Handler
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	service := accesskit.NewService(accesskit.NewMemoryStore(), accesskit.NewTokenIssuer("test-secret", 0),
		accesskit.WithHasher(accesskit.NewBcryptHasher(bcrypt.MinCost)),
		accesskit.WithDefaultRole(accesskit.RoleUser),
	)
	_, err := service.EnsureBootstrap(context.Background(), accesskit.DefaultSeed())
	require.NoError(t, err)

	server := NewServer(service, zerolog.Nop(), opts)
	return &testEnv{t: t, service: service, handler: server.Router()}
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers email and logs in, returning the principal id and token.
func (e *testEnv) signup(email string) (string, string) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": "pw1", "password_confirm": "pw1",
		"first_name": "Ann", "last_name": "Lee",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var p accesskit.Principal
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &p))

	rec = e.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "pw1"})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	var login loginResponse
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &login))
	return p.ID, login.Token
}

// promote assigns roleName directly in the store.
func (e *testEnv) promote(principalID, roleName string) {
	e.t.Helper()
	ctx := context.Background()
	store := e.service.Store()
	role, err := store.GetRoleByName(ctx, roleName)
	require.NoError(e.t, err)
	p, err := store.GetPrincipal(ctx, principalID)
	require.NoError(e.t, err)
	p.RoleID = &role.ID
	require.NoError(e.t, store.UpdatePrincipal(ctx, p))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// TestAuthFlow walks register, login, profile, logout and account removal.
func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, Options{})
	id, token := env.signup("ann@x.com")

	rec := env.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me meResponse
	decodeBody(t, rec, &me)
	assert.Equal(t, id, me.Principal.ID)
	require.NotNil(t, me.Role)
	assert.Equal(t, accesskit.RoleUser, me.Role.Name)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(http.MethodPut, "/auth/profile", token, map[string]string{"first_name": "Anna"})
	require.Equal(t, http.StatusOK, rec.Code)
	var p accesskit.Principal
	decodeBody(t, rec, &p)
	assert.Equal(t, "Anna", p.FirstName)

	rec = env.do(http.MethodPost, "/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/auth/me", token, nil).Code)

	rec = env.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ann@x.com", "password": "pw1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login loginResponse
	decodeBody(t, rec, &login)

	assert.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/auth/account", login.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/auth/me", login.Token, nil).Code)

	rec = env.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ann@x.com", "password": "pw1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterErrors(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.signup("dup@x.com")

	rec := env.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "dup@X.COM", "password": "pw1", "password_confirm": "pw1",
		"first_name": "A", "last_name": "B",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "bad", "password": "pw1", "password_confirm": "pw2",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "password_confirm")
	assert.Contains(t, body.Fields, "first_name")

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":`))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.signup("a@x.com")

	wrong := env.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "a@x.com", "password": "nope"})
	unknown := env.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "b@x.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)

	var a, b errorBody
	decodeBody(t, wrong, &a)
	decodeBody(t, unknown, &b)
	assert.Equal(t, a.Error, b.Error)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{LoginRateLimit: 2})
	creds := map[string]string{"email": "x@x.com", "password": "nope"}

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/auth/login", "", creds).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/auth/login", "", creds).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/auth/login", "", creds).Code)
}

// TestManagementAPI drives role, resource and rule CRUD as an admin.
func TestManagementAPI(t *testing.T) {
	env := newTestEnv(t, Options{})
	adminID, admin := env.signup("admin@x.com")
	env.promote(adminID, accesskit.RoleAdmin)
	userID, user := env.signup("user@x.com")

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/roles", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/roles", user, nil).Code)

	rec := env.do(http.MethodPost, "/roles", admin, accesskit.RoleInput{Name: "manager"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var role accesskit.Role
	decodeBody(t, rec, &role)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/roles", admin, accesskit.RoleInput{Name: "manager"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/roles/missing", admin, nil).Code)

	rec = env.do(http.MethodGet, "/resources", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resources []accesskit.Resource
	decodeBody(t, rec, &resources)
	var ordersID string
	for _, r := range resources {
		if r.Name == accesskit.ResourceOrders {
			ordersID = r.ID
		}
	}
	require.NotEmpty(t, ordersID)

	rec = env.do(http.MethodPost, "/rules", admin, accesskit.RuleInput{
		RoleID: role.ID, ResourceID: ordersID, Read: true, Update: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule accesskit.PermissionRule
	decodeBody(t, rec, &rule)

	rec = env.do(http.MethodGet, "/rules?role_id="+role.ID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rules []accesskit.PermissionRule
	decodeBody(t, rec, &rules)
	assert.Len(t, rules, 1)

	rec = env.do(http.MethodPut, "/principals/"+userID+"/role", admin, map[string]*string{"role_id": &role.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the manager now reaches its own orders only
	assert.Equal(t, http.StatusOK, env.do(http.MethodPut, "/mock/orders/"+userID, user, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPut, "/mock/orders/"+adminID, user, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodDelete, "/mock/orders/"+userID, user, nil).Code)

	rec = env.do(http.MethodGet, "/audit?entity=rule&actor="+adminID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []accesskit.AuditLog
	decodeBody(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, adminID, entries[0].ActorID)
	assert.Equal(t, "192.0.2.10", entries[0].IPAddress)
	assert.NotEmpty(t, entries[0].RequestID)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/audit?limit=x", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/audit?since=yesterday", admin, nil).Code)

	rec = env.do(http.MethodGet, "/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats accesskit.Stats
	decodeBody(t, rec, &stats)
	assert.Equal(t, 2, stats.Principals)
	assert.Equal(t, 3, stats.Roles)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/rules/"+rule.ID, admin, nil).Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/roles/"+role.ID, admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPut, "/mock/orders/"+userID, user, nil).Code)
}

func TestMockEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	adminID, admin := env.signup("admin@x.com")
	env.promote(adminID, accesskit.RoleAdmin)
	_, user := env.signup("user@x.com")

	tests := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/mock/users", "", http.StatusUnauthorized},
		{http.MethodGet, "/mock/users", admin, http.StatusOK},
		{http.MethodGet, "/mock/users", user, http.StatusForbidden},
		{http.MethodGet, "/mock/products", admin, http.StatusForbidden},
		{http.MethodPost, "/mock/products", user, http.StatusForbidden},
		{http.MethodGet, "/mock/orders", user, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, env.do(tt.method, tt.path, tt.token, nil).Code)
		})
	}

	rec := env.do(http.MethodGet, "/mock/users", admin, nil)
	var body mockResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, accesskit.ScopeAll, body.Scope)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, Options{Gatherer: reg, Metrics: NewMetrics(reg)})

	rec := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report accesskit.HealthReport
	decodeBody(t, rec, &report)
	assert.True(t, report.Healthy)

	rec = env.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `accesskit_http_requests_total{code="200",method="GET",route="/healthz"} 1`)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, Options{})
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/metrics", "", nil).Code)
}
