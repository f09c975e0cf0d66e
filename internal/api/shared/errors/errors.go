package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/store"
)

// ErrorCode is the machine readable part of an API error
type ErrorCode string

const (
	ErrCodeBadRequest       ErrorCode = "bad_request"
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeValidationFailed ErrorCode = "validation_failed"
	ErrCodeUnauthorized     ErrorCode = "unauthorized"
	ErrCodeReverted         ErrorCode = "reverted"
	ErrCodeInternalError    ErrorCode = "internal_error"
)

// APIError is the body of every non-2xx response
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

func newAPIError(code ErrorCode, message string, details []string) *APIError {
	return &APIError{Code: code, Message: message, Details: strings.Join(details, ", ")}
}

func NewBadRequestError(message string, details ...string) *APIError {
	return newAPIError(ErrCodeBadRequest, message, details)
}

func NewNotFoundError(message string, details ...string) *APIError {
	return newAPIError(ErrCodeNotFound, message, details)
}

func NewValidationError(details ...string) *APIError {
	return newAPIError(ErrCodeValidationFailed, "Validation failed", details)
}

func NewUnauthorizedError(message string, details ...string) *APIError {
	return newAPIError(ErrCodeUnauthorized, message, details)
}

// NewRevertedError carries the revert reason of a rejected transaction
func NewRevertedError(reason string) *APIError {
	return newAPIError(ErrCodeReverted, "Transaction reverted", []string{reason})
}

func NewInternalError(message string, details ...string) *APIError {
	return newAPIError(ErrCodeInternalError, message, details)
}

// FromError maps err to a status and body. A revert is always 422 with its
// reason in Details, whatever its kind.
func FromError(err error) (int, *APIError) {
	switch {
	case domain.IsRevert(err):
		return http.StatusUnprocessableEntity, NewRevertedError(domain.RevertReason(err))
	case errors.Is(err, store.ErrBridgeMessageNotFound):
		return http.StatusNotFound, NewNotFoundError("Bridge message not found", err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidCollection):
		return http.StatusBadRequest, NewBadRequestError("Invalid request", err.Error())
	}
	return http.StatusInternalServerError, NewInternalError("Internal server error")
}
