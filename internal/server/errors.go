package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	directorydomain "github.com/palcoscenico/agibilita/internal/directory/domain"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/palcoscenico/agibilita/internal/inpsxml"
	"github.com/palcoscenico/agibilita/internal/reconcile"
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
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

	if fErr := asFilingValidationError(err); fErr != nil {
		payload := errorPayload{
			Type:    "validation_error",
			Message: "validation error",
		}
		for _, issue := range fErr.Fields {
			payload.Errors = append(payload.Errors, ValidationError{
				Field:   issue.Field,
				Code:    issue.Code,
				Message: issue.Message,
			})
		}
		return http.StatusBadRequest, payload
	}

	switch {
	case isInvalidRequestError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
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

func asFilingValidationError(err error) *filingdomain.ValidationError {
	var fErr *filingdomain.ValidationError
	if errors.As(err, &fErr) && fErr != nil {
		return fErr
	}
	return nil
}

func isInvalidRequestError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, filingdomain.ErrNoAssignments),
		errors.Is(err, inpsxml.ErrMalformedDocument):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, filingdomain.ErrFilingInvoiced),
		errors.Is(err, filingdomain.ErrFilingSubmitted),
		errors.Is(err, filingdomain.ErrFilingNotReady),
		errors.Is(err, filingdomain.ErrAlreadyProcessed):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, filingdomain.ErrFilingNotFound),
		errors.Is(err, directorydomain.ErrVenueNotFound),
		errors.Is(err, directorydomain.ErrClientNotFound),
		errors.Is(err, directorydomain.ErrPerformerNotFound),
		errors.Is(err, reconcile.ErrNoMatch),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
