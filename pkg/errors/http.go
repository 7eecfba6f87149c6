package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTP status code mappings
var errorStatusCodes = map[error]int{
	ErrNotFound:       http.StatusNotFound,
	ErrInvalidInput:   http.StatusBadRequest,
	ErrInternalError:  http.StatusInternalServerError,
	ErrUnavailable:    http.StatusServiceUnavailable,
	ErrNotImplemented: http.StatusNotImplemented,
	ErrCanceled:       http.StatusRequestTimeout,

	// Domain-specific error mappings
	ErrInvalidDirectory:  http.StatusInternalServerError,
	ErrInvalidWindow:     http.StatusBadRequest,
	ErrInvalidRecordFile: http.StatusBadGateway,
	ErrSourceUnavailable: http.StatusBadGateway,
	ErrPublishFailed:     http.StatusBadGateway,
	ErrRateLimited:       http.StatusTooManyRequests,
}

// WriteError writes a standardized error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error) {
	var statusCode int
	var response map[string]interface{}

	var serr *Error
	if err == nil {
		statusCode = http.StatusInternalServerError
		response = map[string]interface{}{
			"error": "Unknown error",
		}
	} else if errors.As(err, &serr) {
		statusCode = HTTPStatusFromError(err)
		response = serr.AsJSON()
	} else {
		statusCode = HTTPStatusFromError(err)
		response = map[string]interface{}{
			"error": err.Error(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(response)
}

// HTTPStatusFromError determines the appropriate HTTP status code for an error
func HTTPStatusFromError(err error) int {
	if code, ok := errorCodeStatusMap[GetErrorCode(err)]; ok {
		return code
	}

	// Find the nearest mapped error in the chain
	for err != nil {
		if code, ok := errorStatusCodes[err]; ok {
			return code
		}
		err = errors.Unwrap(err)
	}

	return http.StatusInternalServerError
}

// Error code to HTTP status mapping, checked before walking the chain
var errorCodeStatusMap = map[string]int{
	"NOT_FOUND":           http.StatusNotFound,
	"INVALID_INPUT":       http.StatusBadRequest,
	"INTERNAL_ERROR":      http.StatusInternalServerError,
	"UNAVAILABLE":         http.StatusServiceUnavailable,
	"INVALID_WINDOW":      http.StatusBadRequest,
	"SOURCE_UNAVAILABLE":  http.StatusBadGateway,
	"INVALID_RECORD_FILE": http.StatusBadGateway,
	"PUBLISH_FAILED":      http.StatusBadGateway,
	"RATE_LIMITED":        http.StatusTooManyRequests,
}
