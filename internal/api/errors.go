package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/yarbo-bridge/internal/bridges/yarbo"
	"github.com/nerrad567/yarbo-bridge/internal/cloud"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeTimeout     = "timeout"
	ErrCodeUpstream    = "upstream_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

func writeTimeout(w http.ResponseWriter, message string) {
	writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, message)
}

// writeCommandError maps a SendCommand failure to a response.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, yarbo.ErrInvalidCommand):
		writeBadRequest(w, err.Error())
	case errors.Is(err, yarbo.ErrNotConnected):
		writeUnavailable(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// writeCloudError maps a cloud client failure to a response.
func writeCloudError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cloud.ErrNotConfigured):
		writeUnavailable(w, err.Error())
	case errors.Is(err, cloud.ErrNoDevices):
		writeNotFound(w, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	}
}
