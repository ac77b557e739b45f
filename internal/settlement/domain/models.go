package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Snapshot is one frozen settlement report for an event. Snapshots are
// append only; regeneration writes a new version instead of rewriting
// history.
type Snapshot struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	EventID     snowflake.ID `json:"event_id" gorm:"not null;index"`
	OrganizerID snowflake.ID `json:"organizer_id" gorm:"not null"`

	// SnapshotDate is the UTC calendar date the snapshot covers,
	// formatted YYYY-MM-DD.
	SnapshotDate string `json:"snapshot_date" gorm:"type:date;not null"`
	Version      int64  `json:"version" gorm:"not null"`

	EventTitle string `json:"event_title" gorm:"type:text;not null"`

	GrossSales     int64 `json:"gross_sales" gorm:"not null"`
	ProcessorFee   int64 `json:"processor_fee" gorm:"not null"`
	PlatformFee    int64 `json:"platform_fee" gorm:"not null"`
	NetPayout      int64 `json:"net_payout" gorm:"not null"`
	PaymentCount   int64 `json:"payment_count" gorm:"not null"`
	RefundedAmount int64 `json:"refunded_amount" gorm:"not null"`
	RefundedCount  int64 `json:"refunded_count" gorm:"not null"`
	DisputeAmount  int64 `json:"dispute_amount" gorm:"not null"`

	SettlementMode       string `json:"settlement_mode" gorm:"type:text;not null"`
	TransferGroup        string `json:"transfer_group" gorm:"type:text;not null"`
	DestinationAccountID string `json:"destination_account_id" gorm:"type:text;not null"`

	GeneratedAt time.Time `json:"generated_at" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
}

func (Snapshot) TableName() string { return "settlement_snapshots" }

// PaymentAggregate is the rollup of an event's payment rows that feeds a
// snapshot. All figures come from one query so they describe a single
// point in time.
type PaymentAggregate struct {
	GrossSales     int64
	PlatformFee    int64
	PaymentCount   int64
	RefundedAmount int64
	RefundedCount  int64
}

// Repository persists and reads snapshots.
type Repository interface {
	FindLatest(ctx context.Context, db *gorm.DB, eventID snowflake.ID, snapshotDate string) (*Snapshot, error)
	MaxVersion(ctx context.Context, db *gorm.DB, eventID snowflake.ID, snapshotDate string) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, snapshot *Snapshot) error
	ListByEvent(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]Snapshot, error)
	AggregatePayments(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (PaymentAggregate, error)
}

type GenerateRequest struct {
	EventID snowflake.ID

	// OrganizerID, when set, must match the event's organizer. Zero skips
	// the ownership check (internal callers).
	OrganizerID snowflake.ID

	// Force writes a new version even when a snapshot already exists for
	// today. Without it, same-day regeneration returns the existing
	// snapshot unchanged.
	Force bool
}

// GenerateResult reports the snapshot a Generate call landed on and
// whether it was freshly written.
type GenerateResult struct {
	Snapshot       *Snapshot `json:"snapshot"`
	AlreadyExisted bool      `json:"already_existed"`
}

// Service builds and serves settlement snapshots.
type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	ListByEvent(ctx context.Context, eventID snowflake.ID) ([]Snapshot, error)
	ExportCSV(ctx context.Context, eventID snowflake.ID) ([]byte, error)
}
