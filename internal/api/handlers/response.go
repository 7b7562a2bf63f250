package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/isdelr/keeper-notes-be/internal/apperr"
	"github.com/rs/zerolog/hlog"
)

// InvalidBodyMessage is returned when a request body cannot be decoded.
const InvalidBodyMessage = "invalid request body"

type errorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a {"error": msg} body.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorResponse{Error: msg})
}

// respondError maps a service error onto a response. Internal failures are
// logged and replaced with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	WriteError(w, status, apperr.PublicMessage(err))
}

// decodeJSON reads the request body into dst. Size limits are enforced by
// the router's RequestSize middleware.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			hlog.FromRequest(r).Warn().Int64("limit", tooLarge.Limit).Msg("Request body too large")
		}
		WriteError(w, http.StatusBadRequest, InvalidBodyMessage)
		return false
	}
	return true
}
