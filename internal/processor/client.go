package processor

import "context"

// CheckoutMetadata travels with a checkout session so webhook payloads
// can be correlated back to our rows.
type CheckoutMetadata struct {
	PaymentID    string `json:"payment_id"`
	AttendanceID string `json:"attendance_id"`
	EventTitle   string `json:"event_title"`
}

type CreateCheckoutRequest struct {
	Amount               int64            `json:"amount"`
	Currency             string           `json:"currency"`
	DestinationAccountID string           `json:"destination_account_id"`
	ApplicationFeeAmount int64            `json:"application_fee_amount"`
	TransferGroup        string           `json:"transfer_group,omitempty"`
	Metadata             CheckoutMetadata `json:"metadata"`

	// IdempotencyKey is sent as a header, not in the body.
	IdempotencyKey string `json:"-"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type CreateRefundRequest struct {
	PaymentReference     string `json:"payment_reference"`
	Amount               *int64 `json:"amount,omitempty"`
	ReverseTransfer      bool   `json:"reverse_transfer"`
	RefundApplicationFee bool   `json:"refund_application_fee"`

	IdempotencyKey string `json:"-"`
}

type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// FeeReport is the processor's own accounting of transaction fees for a
// transfer group. Fee schedules are external truth; we never re-derive
// them from local rows.
type FeeReport struct {
	TransferGroup string `json:"transfer_group"`
	TotalFee      int64  `json:"total_fee"`
}

// Client is the externally idempotent processor surface the engine
// consumes. Every mutating call is bound to a caller-chosen idempotency
// key before it reaches the wire.
type Client interface {
	CreateCheckoutSession(ctx context.Context, req CreateCheckoutRequest) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error)
	ReportedFees(ctx context.Context, transferGroup string) (*FeeReport, error)
}
