package repository

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/attendly/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct {
	log *zap.Logger
}

func Provide(log *zap.Logger) domain.Repository {
	return &repo{log: log.Named("payment.repository")}
}

const paymentColumns = `id, attendance_id, method, amount, status,
	checkout_idempotency_key, checkout_key_revision, processor_reference,
	application_fee_amount, refunded_amount, application_fee_refunded,
	metadata, paid_at, created_at, updated_at`

// paymentRow is the untyped shape rows are scanned into. Stored rows are
// treated as untrusted; normalization coerces malformed numerics instead
// of propagating ambiguous types.
type paymentRow struct {
	ID                     int64
	AttendanceID           int64
	Method                 string
	Amount                 int64
	Status                 string
	CheckoutIdempotencyKey string
	CheckoutKeyRevision    string
	ProcessorReference     string
	ApplicationFeeAmount   int64
	RefundedAmount         int64
	ApplicationFeeRefunded int64
	Metadata               []byte
	PaidAt                 *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var row paymentRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	payment := r.normalize(row)
	return &payment, nil
}

func (r *repo) FindOpenByAttendance(ctx context.Context, db *gorm.DB, attendanceID snowflake.ID) ([]domain.Payment, error) {
	return r.findByAttendanceAndStatuses(ctx, db, attendanceID, []domain.Status{
		domain.StatusPending,
		domain.StatusFailed,
	})
}

func (r *repo) FindTerminalByAttendance(ctx context.Context, db *gorm.DB, attendanceID snowflake.ID) ([]domain.Payment, error) {
	return r.findByAttendanceAndStatuses(ctx, db, attendanceID, []domain.Status{
		domain.StatusPaid,
		domain.StatusReceived,
		domain.StatusRefunded,
		domain.StatusWaived,
		domain.StatusCompleted,
	})
}

func (r *repo) findByAttendanceAndStatuses(ctx context.Context, db *gorm.DB, attendanceID snowflake.ID, statuses []domain.Status) ([]domain.Payment, error) {
	var rows []paymentRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE attendance_id = ? AND status IN ?
		 ORDER BY created_at DESC`,
		attendanceID,
		statuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, r.normalize(row))
	}
	return payments, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.AttendanceID,
		payment.Method,
		payment.Amount,
		payment.Status,
		payment.CheckoutIdempotencyKey,
		payment.CheckoutKeyRevision,
		payment.ProcessorReference,
		payment.ApplicationFeeAmount,
		payment.RefundedAmount,
		payment.ApplicationFeeRefunded,
		payment.Metadata,
		payment.PaidAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

// ClaimCheckoutKey is the compare-and-swap the reservation protocol rides
// on. It succeeds only if the row is still pending at the expected
// revision; a lost race affects zero rows.
func (r *repo) ClaimCheckoutKey(ctx context.Context, db *gorm.DB, claim domain.CheckoutKeyClaim) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET checkout_idempotency_key = ?, checkout_key_revision = ?, updated_at = ?
		 WHERE id = ? AND checkout_key_revision = ? AND status = ?`,
		claim.NewKey,
		claim.NewRevision,
		claim.Now,
		claim.PaymentID,
		claim.ExpectedRevision,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// TransitionStatus applies a status change guarded by the expected
// current status. Legality of the transition is the caller's concern;
// this only enforces that nobody moved the row in between.
func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, transition domain.StatusTransition) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
		     processor_reference = CASE WHEN ? != '' THEN ? ELSE processor_reference END,
		     checkout_idempotency_key = CASE WHEN ? THEN '' ELSE checkout_idempotency_key END,
		     paid_at = COALESCE(?, paid_at),
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		transition.To,
		transition.ProcessorReference,
		transition.ProcessorReference,
		transition.ClearCheckoutKey,
		transition.PaidAt,
		transition.Now,
		transition.PaymentID,
		transition.From,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, mark domain.RefundMark) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET refunded_amount = refunded_amount + ?,
		     application_fee_refunded = application_fee_refunded + ?,
		     updated_at = ?
		 WHERE id = ?`,
		mark.RefundedAmount,
		mark.ApplicationFeeRefunded,
		mark.Now,
		mark.PaymentID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) normalize(row paymentRow) domain.Payment {
	revision, err := parseRevision(row.CheckoutKeyRevision)
	if err != nil {
		r.log.Warn("coercing malformed checkout_key_revision",
			zap.Int64("payment_id", row.ID),
			zap.String("raw", row.CheckoutKeyRevision),
		)
		revision = 0
	}

	return domain.Payment{
		ID:                     snowflake.ID(row.ID),
		AttendanceID:           snowflake.ID(row.AttendanceID),
		Method:                 domain.Method(row.Method),
		Amount:                 row.Amount,
		Status:                 domain.Status(row.Status),
		CheckoutIdempotencyKey: row.CheckoutIdempotencyKey,
		CheckoutKeyRevision:    revision,
		ProcessorReference:     row.ProcessorReference,
		ApplicationFeeAmount:   row.ApplicationFeeAmount,
		RefundedAmount:         row.RefundedAmount,
		ApplicationFeeRefunded: row.ApplicationFeeRefunded,
		Metadata:               datatypes.JSON(row.Metadata),
		PaidAt:                 row.PaidAt,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}
}

func parseRevision(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	revision, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, err
	}
	if revision < 0 {
		return 0, strconv.ErrRange
	}
	return revision, nil
}
