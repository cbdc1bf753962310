package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	archivedomain "github.com/smallbiznis/atelier/internal/archive/domain"
	"github.com/smallbiznis/atelier/internal/billing"
	clientdomain "github.com/smallbiznis/atelier/internal/client/domain"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	expensedomain "github.com/smallbiznis/atelier/internal/expense/domain"
	"github.com/smallbiznis/atelier/internal/fiscal"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
	quotedomain "github.com/smallbiznis/atelier/internal/quote/domain"
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

var validationErrs = []error{
	billing.ErrInvalidLineKind,
	billing.ErrMissingLineReference,
	billing.ErrAmbiguousLineReference,
	billing.ErrInvalidLinePrice,
	invoicedomain.ErrInvalidDiscount,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidInvoiceDue,
	quotedomain.ErrInvalidDiscount,
	quotedomain.ErrInvalidStatus,
	expensedomain.ErrInvalidAmount,
	clientdomain.ErrInvalidDefaultDiscount,
	companydomain.ErrInvalidName,
	fiscal.ErrInvalidEndMonth,
	fiscal.ErrInvalidEndDay,
}

var notFoundErrs = []error{
	invoicedomain.ErrInvoiceNotFound,
	invoicedomain.ErrItemNotFound,
	quotedomain.ErrQuoteNotFound,
	quotedomain.ErrItemNotFound,
	clientdomain.ErrClientNotFound,
	expensedomain.ErrExpenseNotFound,
	archivedomain.ErrArchiveNotFound,
	gorm.ErrRecordNotFound,
}

// State errors: the request was well formed but the document or archive
// is in a state that forbids it.
var conflictErrs = []error{
	quotedomain.ErrAlreadyConverted,
	quotedomain.ErrInvalidStateForConversion,
	quotedomain.ErrConvertedQuoteImmutable,
	invoicedomain.ErrInvoiceArchived,
	archivedomain.ErrAlreadyArchived,
	archivedomain.ErrFiscalYearNotElapsed,
	archivedomain.ErrArchiveLocked,
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErrs.Errors,
		}
	}

	switch {
	case matchesAny(err, validationErrs):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case matchesAny(err, notFoundErrs):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case matchesAny(err, conflictErrs):
		return http.StatusConflict, errorPayload{
			Type:    "state_error",
			Message: err.Error(),
		}
	case errors.Is(err, archivedomain.ErrNotPrivileged):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: err.Error(),
		}
	case errors.Is(err, companydomain.ErrNoProfileConfigured):
		// Administrative setup is missing, not a data problem.
		return http.StatusConflict, errorPayload{
			Type:    "configuration_error",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
