package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fernandezvara/accesskit"
)

// ============================================================================
// ROLES
// ============================================================================

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.service.ListRoles(r.Context(), caller(r))
	respond(w, r, http.StatusOK, roles, err)
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.service.GetRole(r.Context(), caller(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, role, err)
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var in accesskit.RoleInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := s.service.CreateRole(r.Context(), caller(r), in)
	respond(w, r, http.StatusCreated, role, err)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	var in accesskit.RoleInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := s.service.UpdateRole(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	respond(w, r, http.StatusOK, role, err)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteRole(r.Context(), caller(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusNoContent, nil, err)
}

// ============================================================================
// RESOURCES
// ============================================================================

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.service.ListResources(r.Context(), caller(r))
	respond(w, r, http.StatusOK, resources, err)
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.GetResource(r.Context(), caller(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, res, err)
}

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	var in accesskit.ResourceInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.service.CreateResource(r.Context(), caller(r), in)
	respond(w, r, http.StatusCreated, res, err)
}

func (s *Server) updateResource(w http.ResponseWriter, r *http.Request) {
	var in accesskit.ResourceInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.service.UpdateResource(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	respond(w, r, http.StatusOK, res, err)
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteResource(r.Context(), caller(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusNoContent, nil, err)
}

// ============================================================================
// RULES
// ============================================================================

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := accesskit.RuleFilter{}.
		WithRole(q.Get("role_id")).
		WithResource(q.Get("resource_id"))
	rules, err := s.service.ListRules(r.Context(), caller(r), filter)
	respond(w, r, http.StatusOK, rules, err)
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.service.GetRule(r.Context(), caller(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, rule, err)
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var in accesskit.RuleInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.service.CreateRule(r.Context(), caller(r), in)
	respond(w, r, http.StatusCreated, rule, err)
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	var in accesskit.RuleInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.service.UpdateRule(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	respond(w, r, http.StatusOK, rule, err)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteRule(r.Context(), caller(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusNoContent, nil, err)
}

// ============================================================================
// PRINCIPALS, AUDIT, STATS
// ============================================================================

type assignRoleRequest struct {
	RoleID *string `json:"role_id"`
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	var in assignRoleRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.service.AssignRole(r.Context(), caller(r), chi.URLParam(r, "id"), in.RoleID)
	respond(w, r, http.StatusOK, p, err)
}

func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.service.AuditLog(r.Context(), caller(r), filter)
	respond(w, r, http.StatusOK, entries, err)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context(), caller(r))
	respond(w, r, http.StatusOK, stats, err)
}

// auditFilterFromQuery reads actor, entity, entity_id, action, since, until,
// limit and offset. Times are RFC 3339.
func auditFilterFromQuery(r *http.Request) (accesskit.AuditLogFilter, error) {
	q := r.URL.Query()
	filter := accesskit.NewAuditLogFilter().
		WithActor(q.Get("actor")).
		WithEntity(q.Get("entity"), q.Get("entity_id")).
		WithAction(accesskit.AuditAction(q.Get("action")))

	var since, until time.Time
	for name, dst := range map[string]*time.Time{"since": &since, "until": &until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, badQuery(name, err)
		}
		*dst = t
	}
	filter = filter.WithTimeRange(since, until)

	limit, offset := filter.Limit, 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, badQuery("limit", err)
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, badQuery("offset", err)
		}
		offset = n
	}
	return filter.WithPagination(limit, offset), nil
}

func badQuery(param string, cause error) error {
	e := accesskit.NewError(accesskit.ErrInvalidOperation, "invalid query parameter "+param)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

// respond writes v with status, or the error when err is set.
func respond(w http.ResponseWriter, r *http.Request, status int, v interface{}, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}
