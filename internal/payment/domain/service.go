package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ReserveRequest struct {
	AttendanceID snowflake.ID
	Amount       int64
	Method       Method

	// ApplicationFeeAmount is the platform's cut, recorded on a freshly
	// created row. Reuse of an existing pending row keeps the fee the row
	// was created with.
	ApplicationFeeAmount int64
}

type UpdateStatusRequest struct {
	PaymentID          snowflake.ID
	To                 Status
	ProcessorReference string
	PaidAt             *time.Time
}

type RecordRefundRequest struct {
	PaymentID              snowflake.ID
	RefundedAmount         int64
	ApplicationFeeRefunded int64
}

type Service interface {
	// Reserve hands out the (paymentID, idempotencyKey, revision) triple
	// for a checkout attempt. Safe under arbitrary concurrent invocation
	// for the same attendance.
	Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error)

	// UpdateStatus drives a payment through the state machine, typically
	// from a processor confirmation.
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Payment, error)

	// Cancel moves a pending payment to canceled. Any later attempt gets
	// a brand-new row.
	Cancel(ctx context.Context, paymentID snowflake.ID) (*Payment, error)

	// RecordRefund books refund amounts onto a terminal payment and, when
	// the full amount is refunded, transitions it to refunded.
	RecordRefund(ctx context.Context, req RecordRefundRequest) (*Payment, error)

	GetByID(ctx context.Context, paymentID snowflake.ID) (*Payment, error)
}
