package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mistakeknot/hivewatch/internal/core"
)

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeInvalidPayload reports a structurally malformed request body. Distinct
// from field-level validation failures and from not-found.
func writeInvalidPayload(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

// writeStoreError maps a store failure onto the error taxonomy: validation
// errors carry field detail, not-found is 404, anything else is a server error.
func writeStoreError(w http.ResponseWriter, err error) {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Field:   ve.Field,
			Code:    ve.Code,
			Message: ve.Message,
		})
		return
	}
	if errors.Is(err, core.ErrNotFound) {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
