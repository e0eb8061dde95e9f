package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/recyclesim/internal/audit/domain"
	creditsdomain "github.com/smallbiznis/recyclesim/internal/credits/domain"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	"github.com/smallbiznis/recyclesim/internal/settlement"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"github.com/smallbiznis/recyclesim/internal/truck/guard"
	"github.com/smallbiznis/recyclesim/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog returns the error type and code logged per request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isTruckValidationError(err),
		isDeliveryValidationError(err),
		errors.Is(err, recyclerdomain.ErrInvalidID),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, creditsdomain.ErrInvalidPlayer):
		return true
	default:
		return false
	}
}

func isTruckValidationError(err error) bool {
	return errors.Is(err, truckdomain.ErrInvalidID) ||
		errors.Is(err, truckdomain.ErrInvalidStatus) ||
		errors.Is(err, truckdomain.ErrInvalidLoad)
}

func isDeliveryValidationError(err error) bool {
	return errors.Is(err, deliverydomain.ErrInvalidID) ||
		errors.Is(err, deliverydomain.ErrInvalidReportID) ||
		errors.Is(err, deliverydomain.ErrInvalidTruck) ||
		errors.Is(err, deliverydomain.ErrInvalidPlant) ||
		errors.Is(err, deliverydomain.ErrInvalidRecycler) ||
		errors.Is(err, deliverydomain.ErrInvalidLoad) ||
		errors.Is(err, deliverydomain.ErrInvalidStatus)
}

func isConflictError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, guard.ErrInvalidTransition) ||
		errors.Is(err, truckdomain.ErrStaleStatus) ||
		errors.Is(err, deliverydomain.ErrNotFailed) ||
		errors.Is(err, deliverydomain.ErrNotSettled)
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, guard.ErrInvalidTransition):
		return "truck transition not allowed"
	case errors.Is(err, truckdomain.ErrStaleStatus):
		return "truck status changed concurrently"
	case errors.Is(err, deliverydomain.ErrNotFailed):
		return "delivery is not failed"
	case errors.Is(err, deliverydomain.ErrNotSettled):
		return "delivery is not settled"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, truckdomain.ErrNotFound),
		errors.Is(err, deliverydomain.ErrNotFound),
		errors.Is(err, recyclerdomain.ErrNotFound),
		errors.Is(err, creditsdomain.ErrNotFound),
		errors.Is(err, settlement.ErrDeliveryNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token"
	default:
		return sentinelCode(err.Error())
	}
}

// sentinelCode keeps the leading sentinel of a wrapped "code: detail" error.
func sentinelCode(msg string) string {
	if idx := strings.Index(msg, ":"); idx > 0 {
		return msg[:idx]
	}
	return msg
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_load":
		return "load must be a map of material to non-negative quantity"
	case "invalid_page_token":
		return "page token is malformed"
	default:
		return "invalid value"
	}
}
