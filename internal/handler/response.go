package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fare/internal/repository"
	"fare/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrSimulationNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrUnknownServiceType),
		errors.Is(err, service.ErrInvalidCoordinates),
		errors.Is(err, service.ErrInvalidDistance),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrInvalidOverrideType),
		errors.Is(err, service.ErrReasonTooShort),
		errors.Is(err, service.ErrInvalidScope),
		errors.Is(err, service.ErrNoServiceTypes),
		errors.Is(err, service.ErrCapOutOfRange),
		errors.Is(err, service.ErrAdjustmentOutOfRange),
		errors.Is(err, service.ErrInvalidEmergencyMultiplier),
		errors.Is(err, service.ErrUnknownApprovalLevel),
		errors.Is(err, service.ErrSimulationBounds):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrOverrideNotActive),
		errors.Is(err, service.ErrOverrideAlreadyRevoked),
		errors.Is(err, service.ErrSimulationNotRunning):
		return http.StatusConflict

	// Forbidden/Business rule errors
	case errors.Is(err, service.ErrInsufficientApproval):
		return http.StatusForbidden

	// Service unavailable
	case errors.Is(err, service.ErrServiceSuspended):
		return http.StatusServiceUnavailable

	// Too many concurrent simulations
	case errors.Is(err, service.ErrTooManySimulations):
		return http.StatusTooManyRequests

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
