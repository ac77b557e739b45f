package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	attendancedomain "github.com/smallbiznis/attendly/internal/attendance/domain"
	eventdomain "github.com/smallbiznis/attendly/internal/event/domain"
	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	"github.com/smallbiznis/attendly/internal/processor"
	settlementdomain "github.com/smallbiznis/attendly/internal/settlement/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClassifyError maps a domain error to its HTTP status and wire code.
// Unknown errors are reported as internal without leaking the cause.
func ClassifyError(err error) (int, string) {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidAttendance),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, paymentdomain.ErrAttendanceNotFound),
		errors.Is(err, attendancedomain.ErrNotFound):
		return http.StatusNotFound, "attendance_not_found"

	case errors.Is(err, paymentdomain.ErrPaymentNotFound):
		return http.StatusNotFound, "payment_not_found"

	case errors.Is(err, eventdomain.ErrNotFound),
		errors.Is(err, settlementdomain.ErrEventNotFound):
		return http.StatusNotFound, "event_not_found"

	case errors.Is(err, settlementdomain.ErrForbidden):
		return http.StatusForbidden, "forbidden"

	case errors.Is(err, paymentdomain.ErrPaymentAlreadyExists):
		return http.StatusConflict, "payment_already_exists"

	case errors.Is(err, paymentdomain.ErrConcurrentUpdate):
		return http.StatusConflict, "concurrent_update"

	case errors.Is(err, paymentdomain.ErrInvalidStatusTransition):
		return http.StatusUnprocessableEntity, "invalid_status_transition"

	case errors.Is(err, processor.ErrProcessor):
		return http.StatusBadGateway, "processor_api_error"

	case errors.Is(err, paymentdomain.ErrDatabase),
		errors.Is(err, settlementdomain.ErrDatabase):
		return http.StatusInternalServerError, "database_error"

	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// classifierForLogs adapts ClassifyError to the request logger's
// (type, code) shape.
func classifierForLogs(err error) (string, string) {
	status, code := ClassifyError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", code
	case status == http.StatusConflict:
		return "conflict", code
	case status == http.StatusUnprocessableEntity:
		return "transition", code
	case status == http.StatusNotFound:
		return "not_found", code
	default:
		return "client", code
	}
}

// ErrorHandlingMiddleware renders the last error a handler attached to
// the context. Handlers abort with c.Error and leave rendering here.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		lastErr := c.Errors.Last()
		if lastErr == nil || c.Writer.Written() {
			return
		}

		status, code := ClassifyError(lastErr.Err)
		message := lastErr.Err.Error()
		if status >= http.StatusInternalServerError {
			message = "internal error"
		}
		c.JSON(status, errorBody{Error: errorDetail{Code: code, Message: message}})
	}
}
