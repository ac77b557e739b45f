package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ClaimCheckoutKey parameters. The update is guarded: it applies only if
// the row is still pending at the expected revision.
type CheckoutKeyClaim struct {
	PaymentID        snowflake.ID
	ExpectedRevision int64
	NewKey           string
	NewRevision      int64
	Now              time.Time
}

// StatusTransition parameters for the guarded status update.
type StatusTransition struct {
	PaymentID          snowflake.ID
	From               Status
	To                 Status
	ProcessorReference string
	PaidAt             *time.Time
	// ClearCheckoutKey drops the outstanding checkout key; set when the
	// payment leaves the open statuses.
	ClearCheckoutKey bool
	Now              time.Time
}

// RefundMark records refund bookkeeping on a terminal row. This is the
// only mutation a terminal payment accepts.
type RefundMark struct {
	PaymentID              snowflake.ID
	RefundedAmount         int64
	ApplicationFeeRefunded int64
	Now                    time.Time
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindOpenByAttendance(ctx context.Context, db *gorm.DB, attendanceID snowflake.ID) ([]Payment, error)
	FindTerminalByAttendance(ctx context.Context, db *gorm.DB, attendanceID snowflake.ID) ([]Payment, error)
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	ClaimCheckoutKey(ctx context.Context, db *gorm.DB, claim CheckoutKeyClaim) (bool, error)
	TransitionStatus(ctx context.Context, db *gorm.DB, transition StatusTransition) (bool, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, mark RefundMark) (bool, error)
}
