package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/fernandezvara/accesskit"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case accesskit.IsValidation(err), errors.Is(err, accesskit.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, accesskit.ErrInvalidCredentials), accesskit.IsInvalidSession(err):
		return http.StatusUnauthorized
	case accesskit.IsForbidden(err):
		return http.StatusForbidden
	case accesskit.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, accesskit.ErrEmailTaken), errors.Is(err, accesskit.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError answers with the status matching err. Internal errors are
// logged and their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{
		Error:     http.StatusText(status),
		RequestID: middleware.GetReqID(r.Context()),
	}

	var verr *accesskit.ValidationError
	switch {
	case errors.As(err, &verr):
		body.Fields = verr.Fields
	case status == http.StatusInternalServerError:
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	case status == http.StatusBadRequest:
		body.Error = err.Error()
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return accesskit.NewError(accesskit.ErrInvalidOperation, "malformed request body").WithCause(err)
	}
	return nil
}
