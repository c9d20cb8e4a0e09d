package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fernandezvara/accesskit"
)

type mockResponse struct {
	Data  string `json:"data"`
	Scope string `json:"scope,omitempty"`
}

// mockRoutes serves placeholder business endpoints that only demonstrate the
// access checks. Every decision comes from the rules table.
func (s *Server) mockRoutes(r chi.Router) {
	r.With(s.mw.RequirePermission(accesskit.ResourceUsers, accesskit.OpRead, nil)).
		Get("/users", s.mockList("users list", accesskit.ResourceUsers))

	r.With(s.mw.RequirePermission(accesskit.ResourceProducts, accesskit.OpRead, nil)).
		Get("/products", s.mockList("products list", accesskit.ResourceProducts))
	r.With(s.mw.RequirePermission(accesskit.ResourceProducts, accesskit.OpCreate, nil)).
		Post("/products", mockMessage(http.StatusCreated, "product created"))

	r.With(s.mw.RequirePermission(accesskit.ResourceOrders, accesskit.OpRead, nil)).
		Get("/orders", s.mockList("orders list", accesskit.ResourceOrders))

	r.Route("/orders/{ownerID}", func(r chi.Router) {
		r.Use(s.mw.RequireMethodPermission(accesskit.ResourceOrders,
			accesskit.OwnerFromParam(chi.URLParam, "ownerID")))
		r.Get("/", mockMessage(http.StatusOK, "orders of owner"))
		r.Put("/", mockMessage(http.StatusOK, "order updated"))
		r.Delete("/", mockMessage(http.StatusOK, "order deleted"))
	})
}

// mockList reports whether the caller sees every row or only its own.
func (s *Server) mockList(data, resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checker := accesskit.FromContext(r.Context())
		writeJSON(w, http.StatusOK, mockResponse{
			Data:  data,
			Scope: checker.Scope(r.Context(), resource, accesskit.OpRead),
		})
	}
}

func mockMessage(status int, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, mockResponse{Data: data})
	}
}
