package server

import (
	"errors"
	"net/http"
	"testing"

	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	"github.com/smallbiznis/attendly/internal/processor"
	settlementdomain "github.com/smallbiznis/attendly/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid amount", paymentdomain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{"attendance not found", paymentdomain.ErrAttendanceNotFound, http.StatusNotFound, "attendance_not_found"},
		{"payment not found", paymentdomain.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
		{"already exists", paymentdomain.ErrPaymentAlreadyExists, http.StatusConflict, "payment_already_exists"},
		{"concurrent update", paymentdomain.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
		{
			"invalid transition",
			&paymentdomain.InvalidTransitionError{Method: paymentdomain.MethodCash, From: paymentdomain.StatusRefunded, To: paymentdomain.StatusPending},
			http.StatusUnprocessableEntity,
			"invalid_status_transition",
		},
		{"event not found", settlementdomain.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
		{"forbidden", settlementdomain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"processor", processor.ErrProcessor, http.StatusBadGateway, "processor_api_error"},
		{"database", paymentdomain.DatabaseError(errors.New("boom")), http.StatusInternalServerError, "database_error"},
		{"unknown", errors.New("mystery"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := ClassifyError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestClassifyError_WrappedProcessorErrorsKeepClass(t *testing.T) {
	// Retry exhaustion wraps the classified error; the HTTP mapping must
	// still see it.
	wrapped := processor.ErrProcessor
	status, code := ClassifyError(errors.Join(errors.New("create_checkout: retries exhausted"), wrapped))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "processor_api_error", code)
}
