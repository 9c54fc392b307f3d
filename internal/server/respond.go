package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"maestro/internal/api"
	"maestro/pkg/logging"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error(serverSubsystem, err, "Encoding response body")
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.Error(serverSubsystem, err, "Request failed")
	} else {
		logging.Debug(serverSubsystem, "Request rejected: %v", err)
	}

	body := errorBody{Error: err.Error()}
	if cause := errors.Unwrap(err); cause != nil {
		body.Detail = cause.Error()
	}
	respondJSON(w, status, body)
}

// statusForError maps the api error kinds onto HTTP status codes.
// Platform and transport failures both come back as 502: from the
// caller's side the control plane could not get an answer out of the
// layer below it.
func statusForError(err error) int {
	switch {
	case api.IsNotFound(err):
		return http.StatusNotFound
	case api.IsValidation(err):
		return http.StatusBadRequest
	case api.IsConflict(err):
		return http.StatusConflict
	case api.IsTimeout(err):
		return http.StatusGatewayTimeout
	case api.IsTransport(err), api.IsPlatformError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
