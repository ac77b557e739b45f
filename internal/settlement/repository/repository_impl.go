package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	"github.com/smallbiznis/attendly/internal/settlement/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type repo struct {
	log *zap.Logger
}

func Provide(log *zap.Logger) domain.Repository {
	return &repo{log: log.Named("settlement.repository")}
}

const snapshotColumns = `id, event_id, organizer_id, snapshot_date, version,
	event_title, gross_sales, processor_fee, platform_fee, net_payout,
	payment_count, refunded_amount, refunded_count, dispute_amount,
	settlement_mode, transfer_group, destination_account_id,
	generated_at, created_at`

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, eventID snowflake.ID, snapshotDate string) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+`
		 FROM settlement_snapshots
		 WHERE event_id = ? AND snapshot_date = ?
		 ORDER BY version DESC
		 LIMIT 1`,
		eventID,
		snapshotDate,
	).Scan(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}

func (r *repo) MaxVersion(ctx context.Context, db *gorm.DB, eventID snowflake.ID, snapshotDate string) (int64, error) {
	var version int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(version), 0)
		 FROM settlement_snapshots
		 WHERE event_id = ? AND snapshot_date = ?`,
		eventID,
		snapshotDate,
	).Scan(&version).Error
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snapshot *domain.Snapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO settlement_snapshots (`+snapshotColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ID,
		snapshot.EventID,
		snapshot.OrganizerID,
		snapshot.SnapshotDate,
		snapshot.Version,
		snapshot.EventTitle,
		snapshot.GrossSales,
		snapshot.ProcessorFee,
		snapshot.PlatformFee,
		snapshot.NetPayout,
		snapshot.PaymentCount,
		snapshot.RefundedAmount,
		snapshot.RefundedCount,
		snapshot.DisputeAmount,
		snapshot.SettlementMode,
		snapshot.TransferGroup,
		snapshot.DestinationAccountID,
		snapshot.GeneratedAt,
		snapshot.CreatedAt,
	).Error
}

func (r *repo) ListByEvent(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]domain.Snapshot, error) {
	var snapshots []domain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+`
		 FROM settlement_snapshots
		 WHERE event_id = ?
		 ORDER BY snapshot_date DESC, version DESC`,
		eventID,
	).Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// AggregatePayments rolls up an event's payment rows in one pass.
// Gross figures count only processor payments that reached paid; cash
// collections settle outside the processor and never enter a payout.
func (r *repo) AggregatePayments(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (domain.PaymentAggregate, error) {
	var agg struct {
		GrossSales     int64
		PlatformFee    int64
		PaymentCount   int64
		RefundedAmount int64
		RefundedCount  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
		     COALESCE(SUM(CASE WHEN p.method = ? AND p.status = ? THEN p.amount ELSE 0 END), 0) AS gross_sales,
		     COALESCE(SUM(CASE WHEN p.method = ? AND p.status = ? THEN p.application_fee_amount ELSE 0 END), 0) AS platform_fee,
		     COALESCE(SUM(CASE WHEN p.method = ? AND p.status = ? THEN 1 ELSE 0 END), 0) AS payment_count,
		     COALESCE(SUM(p.refunded_amount), 0) AS refunded_amount,
		     COALESCE(SUM(CASE WHEN p.refunded_amount > 0 THEN 1 ELSE 0 END), 0) AS refunded_count
		 FROM payments p
		 JOIN attendances a ON a.id = p.attendance_id
		 WHERE a.event_id = ?`,
		paymentdomain.MethodProcessor, paymentdomain.StatusPaid,
		paymentdomain.MethodProcessor, paymentdomain.StatusPaid,
		paymentdomain.MethodProcessor, paymentdomain.StatusPaid,
		eventID,
	).Scan(&agg).Error
	if err != nil {
		return domain.PaymentAggregate{}, err
	}

	return domain.PaymentAggregate{
		GrossSales:     agg.GrossSales,
		PlatformFee:    agg.PlatformFee,
		PaymentCount:   agg.PaymentCount,
		RefundedAmount: agg.RefundedAmount,
		RefundedCount:  agg.RefundedCount,
	}, nil
}
