// Package apiutil carries the JSON request/response helpers shared by both
// services.
package apiutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/apperr"
)

// DecodeJSON parses a request body strictly: unknown fields and trailing
// garbage are caller errors.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

// WriteJSON encodes the payload to a buffer first, so an encoding failure
// never produces a half-written response.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}

// WriteError maps a service error onto the wire. Taxonomy errors carry their
// own status; anything untyped becomes a logged 500 with a generic body.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Msg("Unhandled error")
		WriteJSON(w, r, status, map[string]string{"error": "Internal Server Error"})
		return
	}
	WriteJSON(w, r, status, map[string]string{"error": err.Error()})
}
