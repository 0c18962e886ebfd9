package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fpang/litter-report/internal/blob"
	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// respondError maps engine errors to a status and a body carrying the error
// kind and cause, so the client can pick its message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, blob.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	kind, ok := report.KindOf(err)
	if !ok {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Unclassified error")
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	cause := report.CauseOf(err)
	respondJSON(w, statusFor(kind, cause), map[string]string{
		"error": err.Error(),
		"kind":  kind.String(),
		"cause": string(cause),
	})
}

func statusFor(kind report.ErrorKind, cause report.Cause) int {
	switch kind {
	case report.ErrInvalidInput:
		return http.StatusBadRequest
	case report.ErrInvalidMedia:
		if cause == report.CauseTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		if cause == report.CauseUnsupportedType {
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case report.ErrOutOfSequence, report.ErrSubmissionInProgress:
		return http.StatusConflict
	case report.ErrRegionViolation, report.ErrIncompleteDraft:
		return http.StatusUnprocessableEntity
	case report.ErrCameraUnavailable, report.ErrPositionUnavailable:
		if cause == report.CausePermissionDenied {
			return http.StatusForbidden
		}
		return http.StatusServiceUnavailable
	case report.ErrSubmissionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
