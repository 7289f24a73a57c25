// Package shared holds the JSON response helpers every handler uses,
// keeping the domain-error to status mapping in one place.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "upline/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a domain error to its HTTP status and writes the
// error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := err.Error()
	if code == dErrors.CodeInternal {
		// Internal details stay in the logs.
		message = "internal server error"
	}
	WriteJSON(w, statusFor(code), ErrorResponse{Code: string(code), Message: message})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeAlreadyPaid:
		return http.StatusConflict
	case dErrors.CodeInvalidState, dErrors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
