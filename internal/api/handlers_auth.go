package api

import (
	"net/http"
	"time"

	"github.com/fernandezvara/accesskit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type meResponse struct {
	Principal *accesskit.Principal `json:"principal"`
	Role      *accesskit.Role      `json:"role,omitempty"`
	ExpiresAt time.Time            `json:"session_expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in accesskit.RegisterInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.service.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	token, session, err := s.service.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: session.ExpiresAt})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	auth := accesskit.GetAuth(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		Principal: auth.Principal,
		Role:      auth.Role,
		ExpiresAt: auth.Session.ExpiresAt,
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	auth := accesskit.GetAuth(r.Context())
	if err := s.service.Logout(r.Context(), auth.Token); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in accesskit.ProfileUpdate
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.service.UpdateProfile(r.Context(), caller(r).ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// deleteAccount deactivates the caller. The account row is kept.
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Deactivate(r.Context(), caller(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "account deactivated"})
}
