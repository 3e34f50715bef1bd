package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xtrntr/ccx/internal/exchange"
)

// ErrorCode is the machine readable half of an error response
type ErrorCode string

const (
	ErrorCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeOrderNotFound   ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrorCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrorCodeTooLarge        ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrorCodeUnavailable     ErrorCode = "UNAVAILABLE"
	ErrorCodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// MapErrorToHTTP maps engine errors to HTTP status codes and error responses
func MapErrorToHTTP(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, exchange.ErrInvalidOrder), errors.Is(err, exchange.ErrInvalidDepth):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: ErrorCodeInvalidArgument}
	case errors.Is(err, exchange.ErrOrderNotFound), errors.Is(err, exchange.ErrNotOwner):
		// ownership is not disclosed: someone else's order looks like a missing one
		return http.StatusNotFound, ErrorResponse{Error: exchange.ErrOrderNotFound.Error(), Code: ErrorCodeOrderNotFound}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: ErrorCodeInternalError}
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, body := MapErrorToHTTP(err)
	writeJSON(w, status, body)
}
