package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	gracedomain "github.com/smallbiznis/premia/internal/graceperiod/domain"
	paymentdomain "github.com/smallbiznis/premia/internal/payment/domain"
	"github.com/smallbiznis/premia/internal/policy"
)

var ErrInvalidRequest = errors.New("invalid_request")

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware maps domain sentinel errors onto HTTP statuses so
// handlers can surface errors with c.Error and stay thin.
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

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: err.Error(),
		}
	case isUnavailableError(err):
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

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrAmountMismatch),
		errors.Is(err, billingdomain.ErrInvalidAmount),
		errors.Is(err, billingdomain.ErrInvalidFrequency),
		errors.Is(err, billingdomain.ErrInvalidPeriod),
		errors.Is(err, gracedomain.ErrInvalidDays):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, billingdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, gracedomain.ErrNotFound),
		errors.Is(err, policy.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, billingdomain.ErrInvalidTransition),
		errors.Is(err, billingdomain.ErrCancelled),
		errors.Is(err, paymentdomain.ErrBillingNotPayable),
		errors.Is(err, paymentdomain.ErrAttemptInFlight),
		errors.Is(err, paymentdomain.ErrNotRefundable),
		errors.Is(err, paymentdomain.ErrRetriesExhausted),
		errors.Is(err, policy.ErrInactive):
		return true
	default:
		return false
	}
}

func isUnavailableError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable),
		errors.Is(err, paymentdomain.ErrStorage),
		errors.Is(err, billingdomain.ErrStorage),
		errors.Is(err, gracedomain.ErrConfigLookup),
		errors.Is(err, policy.ErrUnavailable):
		return true
	default:
		return false
	}
}
