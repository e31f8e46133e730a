package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// readJSON reads and decodes a JSON request body
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return err
	}
	return nil
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindTemplateNotFound, errors.KindDatasetNotFound, errors.KindJobNotFound:
		return http.StatusNotFound
	case errors.KindJobNotComplete, errors.KindInvalidInput, errors.KindInvalidRowIndex:
		return http.StatusBadRequest
	case errors.KindNameCollision:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeKindError classifies err and writes it with the matching status.
// Server errors are logged with their details; client errors are not.
func writeKindError(w http.ResponseWriter, log *zap.SugaredLogger, err error, context string) {
	kind := errors.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		log.Errorw(context,
			logger.FieldError, err,
			logger.FieldErrorKind, kind,
			"details", errors.FlattenDetails(err))
		writeJSON(w, status, errorResponse{Error: fmt.Sprintf("%s: %v", context, err), Kind: string(kind)})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}
