package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Method is how a participant pays.
type Method string

const (
	MethodProcessor Method = "processor"
	MethodCash      Method = "cash"
)

func (m Method) Valid() bool {
	switch m {
	case MethodProcessor, MethodCash:
		return true
	default:
		return false
	}
}

// Status is the payment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusReceived  Status = "received"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
	StatusWaived    Status = "waived"
	StatusCanceled  Status = "canceled"
)

// IsOpen reports whether a payment in this status still accepts checkout
// reservations.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusFailed
}

// IsTerminal reports whether this status is a final financial outcome.
// Terminal rows are never mutated afterwards except refund bookkeeping.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusReceived, StatusRefunded, StatusWaived, StatusCompleted:
		return true
	default:
		return false
	}
}

// Payment is a single payment attempt for an attendance.
type Payment struct {
	ID                     snowflake.ID   `json:"id" gorm:"primaryKey"`
	AttendanceID           snowflake.ID   `json:"attendance_id" gorm:"not null;index"`
	Method                 Method         `json:"method" gorm:"type:text;not null"`
	Amount                 int64          `json:"amount" gorm:"not null"`
	Status                 Status         `json:"status" gorm:"type:text;not null"`
	CheckoutIdempotencyKey string         `json:"checkout_idempotency_key" gorm:"type:text;not null"`
	CheckoutKeyRevision    int64          `json:"checkout_key_revision" gorm:"not null"`
	ProcessorReference     string         `json:"processor_reference" gorm:"type:text;not null"`
	ApplicationFeeAmount   int64          `json:"application_fee_amount" gorm:"not null"`
	RefundedAmount         int64          `json:"refunded_amount" gorm:"not null"`
	ApplicationFeeRefunded int64          `json:"application_fee_refunded" gorm:"not null"`
	Metadata               datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	PaidAt                 *time.Time     `json:"paid_at"`
	CreatedAt              time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time      `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Reservation is the triple handed to a checkout caller. All concurrent
// callers for the same attendance and amount observe the same values.
type Reservation struct {
	PaymentID      snowflake.ID `json:"payment_id"`
	IdempotencyKey string       `json:"idempotency_key"`
	Revision       int64        `json:"revision"`
	Amount         int64        `json:"amount"`
}
