package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewHTTPClient(HTTPClientConfig{
		BaseURL: server.URL,
		APIKey:  "sk_test",
	}, zap.NewNop())
	return client, server
}

func TestCreateCheckoutSession_SendsKeyHeaderAndAuth(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1"})
	})

	session, err := client.CreateCheckoutSession(context.Background(), CreateCheckoutRequest{
		Amount:               2000,
		Currency:             "usd",
		DestinationAccountID: "acct_1",
		ApplicationFeeAmount: 200,
		IdempotencyKey:       "checkout:100:tok:2000",
		Metadata: CheckoutMetadata{
			PaymentID:    "100",
			AttendanceID: "200",
			EventTitle:   "Spring Conference",
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "checkout:100:tok:2000", gotKey)
	assert.Equal(t, "Bearer sk_test", gotAuth)

	// The key travels as a header, never in the body.
	_, inBody := gotBody["IdempotencyKey"]
	assert.False(t, inBody)
	assert.Equal(t, float64(2000), gotBody["amount"])
}

func TestHTTPClient_ConflictClassifiedRetryable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"idempotency_key_in_use","message":"key in flight"}}`))
	})

	_, err := client.CreateCheckoutSession(context.Background(), CreateCheckoutRequest{Amount: 2000})
	assert.ErrorIs(t, err, ErrProcessor)
	assert.True(t, IsRetryable(err))

	var perr *Error
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, KindIdempotencyConflict, perr.Kind)
	assert.Equal(t, http.StatusConflict, perr.StatusCode)
}

func TestHTTPClient_ClientErrorClassifiedAPI(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"amount_too_small","message":"minimum is 50"}}`))
	})

	_, err := client.CreateRefund(context.Background(), CreateRefundRequest{PaymentReference: "pi_1"})
	assert.ErrorIs(t, err, ErrProcessor)
	assert.False(t, IsRetryable(err))

	var perr *Error
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, KindAPI, perr.Kind)
	assert.Contains(t, perr.Message, "minimum is 50")
}

func TestHTTPClient_ServerErrorClassifiedConnection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.ReportedFees(context.Background(), "event-1")
	assert.True(t, IsRetryable(err))

	var perr *Error
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, KindConnection, perr.Kind)
}

func TestHTTPClient_RefusedConnectionClassifiedConnection(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewHTTPClient(HTTPClientConfig{
		BaseURL: server.URL,
		APIKey:  "sk_test",
	}, zap.NewNop())

	_, err := client.ReportedFees(context.Background(), "event-1")
	assert.True(t, IsRetryable(err))

	var perr *Error
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, KindConnection, perr.Kind)
}

func TestReportedFees_QueriesTransferGroup(t *testing.T) {
	var gotGroup string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotGroup = r.URL.Query().Get("transfer_group")
		_ = json.NewEncoder(w).Encode(FeeReport{TransferGroup: gotGroup, TotalFee: 88})
	})

	report, err := client.ReportedFees(context.Background(), "event-42")
	assert.NoError(t, err)
	assert.Equal(t, "event-42", gotGroup)
	assert.Equal(t, int64(88), report.TotalFee)
}
